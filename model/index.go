package model

import (
	"fmt"
	"strings"
)

// Index names a vegetation index band computed per scene
type Index string

// Supported vegetation indices
const (
	NDVI Index = "ndvi"
	NDRE Index = "ndre"
	EVI  Index = "evi"
)

// AllIndices lists every index in the order the series columns are reported
var AllIndices = []Index{NDRE, NDVI, EVI}

// ParseIndex converts a user-supplied name, in any case, to an Index
func ParseIndex(name string) (Index, error) {
	switch Index(strings.ToLower(strings.TrimSpace(name))) {
	case NDVI:
		return NDVI, nil
	case NDRE:
		return NDRE, nil
	case EVI:
		return EVI, nil
	}
	return "", fmt.Errorf("Unknown vegetation index: `%s`", name)
}

// ParseIndices parses a comma separated list of indices, ignoring blanks and duplicates
func ParseIndices(list string) ([]Index, error) {
	var (
		result []Index
		seen   = map[Index]bool{}
	)
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		index, err := ParseIndex(part)
		if err != nil {
			return nil, err
		}
		if !seen[index] {
			seen[index] = true
			result = append(result, index)
		}
	}
	return result, nil
}

// Label is the display name of the index
func (i Index) Label() string {
	return strings.ToUpper(string(i))
}

// VisParams describes how a raster layer is stretched and colored for display
type VisParams struct {
	Bands   []string `json:"bands,omitempty"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette,omitempty"`
}

// IndexPalette colors indices from red (bare) through yellow to green (vigorous)
var IndexPalette = []string{"ff0000", "ffff00", "008000"}

// VisParams returns the display parameters shared by all indices
func (i Index) VisParams() VisParams {
	return VisParams{Bands: []string{string(i)}, Min: -1, Max: 1, Palette: IndexPalette}
}

// FalseColorVis shows SWIR/NIR/red, the composite drawn under the index layers
var FalseColorVis = VisParams{Bands: []string{"B12", "B8", "B4"}, Min: 0.1, Max: 0.4}
