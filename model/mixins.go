package model

import (
	"fmt"

	"github.com/venicegeo/geojson-go/geojson"
)

// IndexMeans is a mixin holding regional means keyed by index.
// An index missing from the map was fully masked for that scene.
type IndexMeans map[Index]float64

// Apply implements the GeoJSONFeatureMixin interface
func (means IndexMeans) Apply(feature *geojson.Feature) error {
	if feature.Properties == nil {
		return fmt.Errorf("Feature %v has no properties map", feature.ID)
	}
	for _, index := range AllIndices {
		if value, ok := means[index]; ok {
			feature.Properties[string(index)] = value
		} else {
			feature.Properties[string(index)] = nil
		}
	}
	return nil
}

// ExportStatus classifies the outcome of an export request
type ExportStatus string

// Export outcomes
const (
	ExportSucceeded ExportStatus = "success"
	ExportOversized ExportStatus = "oversized"
	ExportFailed    ExportStatus = "error"
)

// ExportFile describes one file produced by an export
type ExportFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	Kept      bool   `json:"kept"`
}

// ExportResult is what the user is told after an export
type ExportResult struct {
	Status  ExportStatus `json:"status"`
	Message string       `json:"message"`
	Date    string       `json:"date,omitempty"`
	Files   []ExportFile `json:"files"`
}

