package model

import (
	"sort"
	"time"

	"github.com/venicegeo/geojson-go/geojson"
)

// Scene is one row of the available-images table
type Scene struct {
	ID              string  `json:"id"`
	Date            string  `json:"date"`
	CloudPercentage float64 `json:"cloudPercentage"`
}

// GeoJSONFeature implements the GeoJSONFeatureCreator interface.
// Scenes are clipped to the ROI, so they carry no geometry of their own.
func (s Scene) GeoJSONFeature() (*geojson.Feature, error) {
	return geojson.NewFeature(nil, s.ID, map[string]interface{}{
		"date":            s.Date,
		"cloudPercentage": s.CloudPercentage,
	}), nil
}

// SceneDates returns the dates of scenes, in table order
func SceneDates(scenes []Scene) []string {
	dates := make([]string, len(scenes))
	for i, scene := range scenes {
		dates[i] = scene.Date
	}
	return dates
}

// SeriesRow is the regional mean of each index for one scene over one ROI feature
type SeriesRow struct {
	Date      time.Time
	FeatureID string
	Geometry  interface{}
	IndexMeans
}

// GeoJSONFeature implements the GeoJSONFeatureCreator interface
func (row SeriesRow) GeoJSONFeature() (*geojson.Feature, error) {
	feature := geojson.NewFeature(row.Geometry, row.FeatureID, map[string]interface{}{
		DatePropertyName: row.Date.Format(DateFormat),
	})
	if err := row.IndexMeans.Apply(feature); err != nil {
		return nil, err
	}
	return feature, nil
}

// SortSeries orders rows by date, then by feature, in place
func SortSeries(rows []SeriesRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date.Equal(rows[j].Date) {
			return rows[i].FeatureID < rows[j].FeatureID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}

// Layer is a map overlay served as XYZ tiles by the remote engine
type Layer struct {
	Name    string    `json:"name"`
	TileURL string    `json:"tileUrl"`
	Vis     VisParams `json:"vis"`
}

// MultiResult is a container type for bundling multiple results together,
// e.g. as results from a search endpoint
type MultiResult struct {
	FeatureCreators []GeoJSONFeatureCreator
}

// GeoJSONFeatureCollection implements the GeoJSONFeatureCollectionCreator interface
func (result MultiResult) GeoJSONFeatureCollection() (*geojson.FeatureCollection, error) {
	var err error
	features := make([]*geojson.Feature, len(result.FeatureCreators))
	for i, creator := range result.FeatureCreators {
		features[i], err = creator.GeoJSONFeature()
		if err != nil {
			return nil, err
		}
	}

	return geojson.NewFeatureCollection(features), nil
}
