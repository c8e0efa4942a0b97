package model

import "time"

// POIKind classifies a point of interest reported by the remote service.
type POIKind string

const (
	POIKindPokemon  POIKind = "pokemon"
	POIKindPokestop POIKind = "pokestop"
	POIKindGym      POIKind = "gym"
)

// PointOfInterest is one entity seen in a map-objects response.
type PointOfInterest struct {
	ID        string
	Kind      POIKind
	Latitude  float64
	Longitude float64

	// PokemonID is set for wild encounters, TeamID and GymPoints for gyms.
	PokemonID    int
	SpawnPointID string
	TeamID       int
	GymPoints    int
	Enabled      bool
	Lured        bool

	LastModified time.Time
	// DisappearsAt is zero for permanent points (forts).
	DisappearsAt time.Time
}

// Expired reports whether the point has a disappearance time at or before now.
func (p PointOfInterest) Expired(now time.Time) bool {
	return !p.DisappearsAt.IsZero() && !p.DisappearsAt.After(now)
}
