package kb

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/model"
)

const fortTypePokestop = 1

// ParseMapObjects walks responses.GET_MAP_OBJECTS.map_cells and returns the
// wild encounters and forts found in every cell.
func ParseMapObjects(resp *structpb.Struct) ([]model.PointOfInterest, error) {
	if resp == nil {
		return nil, missing("responses")
	}
	responses, err := structField(resp, "responses", "responses")
	if err != nil {
		return nil, err
	}
	mapObjects, err := structField(responses, "GET_MAP_OBJECTS", "responses.GET_MAP_OBJECTS")
	if err != nil {
		return nil, err
	}
	cells, err := listField(mapObjects, "map_cells", "responses.GET_MAP_OBJECTS.map_cells")
	if err != nil {
		return nil, err
	}

	var points []model.PointOfInterest
	for i, v := range cells.GetValues() {
		cell := v.GetStructValue()
		if cell == nil {
			return nil, fmt.Errorf("map_cells[%d]: %w", i, missing("cell"))
		}
		path := fmt.Sprintf("map_cells[%d]", i)

		for j, pv := range optionalList(cell, "wild_pokemons") {
			p, err := parsePokemon(pv.GetStructValue(), fmt.Sprintf("%s.wild_pokemons[%d]", path, j))
			if err != nil {
				return nil, err
			}
			points = append(points, p)
		}
		for j, fv := range optionalList(cell, "forts") {
			f, err := parseFort(fv.GetStructValue(), fmt.Sprintf("%s.forts[%d]", path, j))
			if err != nil {
				return nil, err
			}
			points = append(points, f)
		}
	}
	return points, nil
}

func parsePokemon(s *structpb.Struct, path string) (model.PointOfInterest, error) {
	var p model.PointOfInterest
	if s == nil {
		return p, missing(path)
	}

	id, err := stringField(s, "encounter_id", path)
	if err != nil {
		return p, err
	}
	spawn, err := stringField(s, "spawnpoint_id", path)
	if err != nil {
		return p, err
	}
	lat, err := numberField(s, "latitude", path)
	if err != nil {
		return p, err
	}
	lng, err := numberField(s, "longitude", path)
	if err != nil {
		return p, err
	}
	data, err := structField(s, "pokemon_data", path+".pokemon_data")
	if err != nil {
		return p, err
	}
	pokemonID, err := numberField(data, "pokemon_id", path+".pokemon_data")
	if err != nil {
		return p, err
	}
	modified, err := numberField(s, "last_modified_timestamp_ms", path)
	if err != nil {
		return p, err
	}
	hidden, err := numberField(s, "time_till_hidden_ms", path)
	if err != nil {
		return p, err
	}

	return model.PointOfInterest{
		ID:           id,
		Kind:         model.POIKindPokemon,
		Latitude:     lat,
		Longitude:    lng,
		PokemonID:    int(pokemonID),
		SpawnPointID: spawn,
		LastModified: time.UnixMilli(int64(modified)).UTC(),
		DisappearsAt: time.UnixMilli(int64(modified + hidden)).UTC(),
	}, nil
}

func parseFort(s *structpb.Struct, path string) (model.PointOfInterest, error) {
	var f model.PointOfInterest
	if s == nil {
		return f, missing(path)
	}

	id, err := stringField(s, "id", path)
	if err != nil {
		return f, err
	}
	lat, err := numberField(s, "latitude", path)
	if err != nil {
		return f, err
	}
	lng, err := numberField(s, "longitude", path)
	if err != nil {
		return f, err
	}
	modified, err := numberField(s, "last_modified_timestamp_ms", path)
	if err != nil {
		return f, err
	}

	f = model.PointOfInterest{
		ID:           id,
		Latitude:     lat,
		Longitude:    lng,
		Enabled:      optionalBool(s, "enabled", true),
		LastModified: time.UnixMilli(int64(modified)).UTC(),
	}
	if int(optionalNumber(s, "type", 0)) == fortTypePokestop {
		f.Kind = model.POIKindPokestop
		_, f.Lured = s.GetFields()["lure_info"]
		return f, nil
	}
	f.Kind = model.POIKindGym
	f.TeamID = int(optionalNumber(s, "owned_by_team", 0))
	f.GymPoints = int(optionalNumber(s, "gym_points", 0))
	return f, nil
}

func field(s *structpb.Struct, key, path string) (*structpb.Value, error) {
	v, ok := s.GetFields()[key]
	if !ok || v == nil {
		return nil, missing(path + "." + key)
	}
	return v, nil
}

func structField(s *structpb.Struct, key, path string) (*structpb.Struct, error) {
	if s == nil {
		return nil, missing(path)
	}
	v, ok := s.GetFields()[key]
	if !ok || v.GetStructValue() == nil {
		return nil, missing(path)
	}
	return v.GetStructValue(), nil
}

func listField(s *structpb.Struct, key, path string) (*structpb.ListValue, error) {
	v, ok := s.GetFields()[key]
	if !ok || v.GetListValue() == nil {
		return nil, missing(path)
	}
	return v.GetListValue(), nil
}

func numberField(s *structpb.Struct, key, path string) (float64, error) {
	v, err := field(s, key, path)
	if err != nil {
		return 0, err
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return k.NumberValue, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseFloat(k.StringValue, 64)
		if err != nil {
			return 0, fmt.Errorf("%s.%s: %w", path, key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s.%s: not a number", path, key)
	}
}

// stringField accepts strings and numbers; 64-bit ids arrive as either.
func stringField(s *structpb.Struct, key, path string) (string, error) {
	v, err := field(s, key, path)
	if err != nil {
		return "", err
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%s.%s: not a string", path, key)
	}
}

func optionalList(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

func optionalNumber(s *structpb.Struct, key string, def float64) float64 {
	v, ok := s.GetFields()[key]
	if !ok {
		return def
	}
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return def
}

func optionalBool(s *structpb.Struct, key string, def bool) bool {
	v, ok := s.GetFields()[key]
	if !ok {
		return def
	}
	if b, ok := v.GetKind().(*structpb.Value_BoolValue); ok {
		return b.BoolValue
	}
	return def
}
