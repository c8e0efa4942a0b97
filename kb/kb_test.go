package kb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/internal/remote"
	"github.com/signalsfoundry/geoscan/model"
)

const sampleResponse = `{
  "responses": {
    "GET_MAP_OBJECTS": {
      "status": 1,
      "map_cells": [
        {
          "s2_cell_id": "9926595610352287744",
          "wild_pokemons": [
            {
              "encounter_id": "11846049638127427601",
              "spawnpoint_id": "89c25a63b2f",
              "latitude": 40.7589,
              "longitude": -73.9851,
              "last_modified_timestamp_ms": 1468770000000,
              "time_till_hidden_ms": 600000,
              "pokemon_data": {"pokemon_id": 16}
            }
          ],
          "forts": [
            {"id": "stop-1", "latitude": 40.7591, "longitude": -73.9849, "type": 1, "last_modified_timestamp_ms": 1468760000000, "lure_info": {}},
            {"id": "gym-1", "latitude": 40.7577, "longitude": -73.9860, "owned_by_team": 2, "gym_points": 4000, "enabled": true, "last_modified_timestamp_ms": 1468750000000}
          ]
        },
        {"s2_cell_id": "9926595610352287745"}
      ]
    }
  }
}`

func mustStruct(t *testing.T, raw string) *structpb.Struct {
	t.Helper()
	s, err := remote.DecodeStruct(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return s
}

func TestParseStoresPointsOfInterest(t *testing.T) {
	store := NewStore(nil)

	var events []Event
	store.Subscribe(func(e Event) { events = append(events, e) })

	if err := store.Parse(context.Background(), mustStruct(t, sampleResponse)); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if store.Len() != 3 || len(events) != 3 {
		t.Fatalf("Len() = %d events = %d, want 3 and 3", store.Len(), len(events))
	}

	mon, ok := store.Get("11846049638127427601")
	if !ok {
		t.Fatalf("wild encounter not stored")
	}
	if mon.Kind != model.POIKindPokemon || mon.PokemonID != 16 || mon.SpawnPointID != "89c25a63b2f" {
		t.Fatalf("encounter = %+v", mon)
	}
	if want := time.UnixMilli(1468770600000).UTC(); !mon.DisappearsAt.Equal(want) {
		t.Fatalf("DisappearsAt = %v, want %v", mon.DisappearsAt, want)
	}

	stop, _ := store.Get("stop-1")
	if stop.Kind != model.POIKindPokestop || !stop.Lured || !stop.Enabled {
		t.Fatalf("pokestop = %+v", stop)
	}
	gym, _ := store.Get("gym-1")
	if gym.Kind != model.POIKindGym || gym.TeamID != 2 || gym.GymPoints != 4000 {
		t.Fatalf("gym = %+v", gym)
	}
}

func TestParseMissingFieldLeavesStoreUntouched(t *testing.T) {
	store := NewStore(nil)
	broken := strings.Replace(sampleResponse, `"spawnpoint_id": "89c25a63b2f",`, "", 1)

	err := store.Parse(context.Background(), mustStruct(t, broken))
	if !errors.Is(err, model.ErrMissingField) {
		t.Fatalf("Parse() error = %v, want ErrMissingField", err)
	}
	if !strings.Contains(err.Error(), "spawnpoint_id") {
		t.Fatalf("error %q does not name the missing key", err)
	}
	if store.Len() != 0 {
		t.Fatalf("partial response was applied: Len() = %d", store.Len())
	}
}

func TestParseMissingEnvelope(t *testing.T) {
	for _, raw := range []string{`{}`, `{"responses": {}}`, `{"responses": {"GET_MAP_OBJECTS": {"status": 1}}}`} {
		if _, err := ParseMapObjects(mustStruct(t, raw)); !errors.Is(err, model.ErrMissingField) {
			t.Fatalf("ParseMapObjects(%s) error = %v, want ErrMissingField", raw, err)
		}
	}
	if _, err := ParseMapObjects(nil); !errors.Is(err, model.ErrMissingField) {
		t.Fatalf("ParseMapObjects(nil) error = %v, want ErrMissingField", err)
	}
}

func TestParseRejectsWrongTypes(t *testing.T) {
	broken := strings.Replace(sampleResponse, `"latitude": 40.7589`, `"latitude": true`, 1)

	_, err := ParseMapObjects(mustStruct(t, broken))
	if err == nil || errors.Is(err, model.ErrMissingField) {
		t.Fatalf("ParseMapObjects() error = %v, want an unstructured error", err)
	}
}

func TestPruneExpiredAndUnsubscribe(t *testing.T) {
	store := NewStore(nil)
	now := time.Date(2025, time.May, 5, 12, 0, 0, 0, time.UTC)

	var expired []string
	unsubscribe := store.Subscribe(func(e Event) {
		if e.Type == EventPointExpired {
			expired = append(expired, e.Point.ID)
		}
	})

	store.Upsert(
		model.PointOfInterest{ID: "gone", Kind: model.POIKindPokemon, DisappearsAt: now.Add(-time.Second)},
		model.PointOfInterest{ID: "edge", Kind: model.POIKindPokemon, DisappearsAt: now},
		model.PointOfInterest{ID: "later", Kind: model.POIKindPokemon, DisappearsAt: now.Add(time.Minute)},
		model.PointOfInterest{ID: "gym", Kind: model.POIKindGym},
	)

	if n := store.PruneExpired(now); n != 2 {
		t.Fatalf("PruneExpired() = %d, want 2", n)
	}
	if len(expired) != 2 {
		t.Fatalf("expired events = %v, want 2", expired)
	}
	if ids := store.List(); len(ids) != 2 || ids[0].ID != "gym" || ids[1].ID != "later" {
		t.Fatalf("List() = %+v", ids)
	}

	unsubscribe()
	store.Upsert(model.PointOfInterest{ID: "gone2", DisappearsAt: now.Add(-time.Hour)})
	store.PruneExpired(now)
	if len(expired) != 2 {
		t.Fatalf("unsubscribed callback still invoked")
	}
}

func TestParseKeepsWideEncounterIDsDistinct(t *testing.T) {
	raw := `{"responses":{"GET_MAP_OBJECTS":{"map_cells":[{"wild_pokemons":[
	  {"encounter_id": 12345678901234567001, "spawnpoint_id": "a", "latitude": 1, "longitude": 1,
	   "last_modified_timestamp_ms": 1468770000000, "time_till_hidden_ms": 600000, "pokemon_data": {"pokemon_id": 16}},
	  {"encounter_id": 12345678901234567002, "spawnpoint_id": "b", "latitude": 1, "longitude": 1,
	   "last_modified_timestamp_ms": 1468770000000, "time_till_hidden_ms": 600000, "pokemon_data": {"pokemon_id": 19}}
	]}]}}}`
	resp, err := remote.DecodeStruct(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("DecodeStruct: %v", err)
	}

	store := NewStore(nil)
	if err := store.Parse(context.Background(), resp); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("store holds %d points, want 2: %+v", store.Len(), store.List())
	}
	for _, id := range []string{"12345678901234567001", "12345678901234567002"} {
		if _, ok := store.Get(id); !ok {
			t.Fatalf("encounter %s missing from store", id)
		}
	}
}

func TestParseRequiresTimestamps(t *testing.T) {
	tests := []struct {
		name string
		from string
		key  string
	}{
		{name: "encounter", from: `"last_modified_timestamp_ms": 1468770000000,`, key: "wild_pokemons[0].last_modified_timestamp_ms"},
		{name: "fort", from: `, "last_modified_timestamp_ms": 1468760000000`, key: "forts[0].last_modified_timestamp_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := strings.Replace(sampleResponse, tt.from, "", 1)
			_, err := ParseMapObjects(mustStruct(t, broken))
			if !errors.Is(err, model.ErrMissingField) {
				t.Fatalf("ParseMapObjects() error = %v, want ErrMissingField", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("error %q does not name %s", err, tt.key)
			}
		})
	}
}
