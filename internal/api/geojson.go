package api

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dquispe/sismo-sync/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders stored records as a Point FeatureCollection. Records
// without usable latitud/longitud are skipped; the coordinate fields move
// into the geometry, everything else becomes properties.
func toGeoJSON(records []models.Record) FeatureCollection {
	features := make([]Feature, 0, len(records))

	for _, rec := range records {
		lon, okLon := floatField(rec, "longitud")
		lat, okLat := floatField(rec, "latitud")
		if !okLon || !okLat {
			continue
		}

		props := make(map[string]any, len(rec))
		for k, v := range rec {
			if k == "latitud" || k == "longitud" {
				continue
			}
			props[k] = v
		}

		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{lon, lat},
			},
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func floatField(rec models.Record, key string) (float64, bool) {
	switch v := rec[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case decimal.Decimal:
		return v.InexactFloat64(), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
