// Package roi parses and holds the user's region of interest.
package roi

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/ioutil"
	"strconv"

	"github.com/venicegeo/geojson-go/geojson"
)

// ErrNoPolygons is returned when an upload holds no polygonal geometry
var ErrNoPolygons = errors.New("GeoJSON contains no Polygon or MultiPolygon geometry")

// Default map view, used before any ROI is uploaded
const (
	DefaultCenterLon = -45.259679
	DefaultCenterLat = -17.871838
	DefaultZoom      = 8
	ROIZoom          = 13
)

// ROI is a set of polygonal features constraining every spatial query
type ROI struct {
	collection  *geojson.FeatureCollection
	fingerprint string
}

// View is where the map should be centered
type View struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Zoom int     `json:"zoom"`
}

// DefaultView is the map view when there is no ROI
func DefaultView() View {
	return View{Lon: DefaultCenterLon, Lat: DefaultCenterLat, Zoom: DefaultZoom}
}

// Parse reads a GeoJSON FeatureCollection, Feature, Polygon or MultiPolygon.
// Non-polygonal features inside a collection are dropped; features
// without an id get their position in the upload as id.
func Parse(data []byte) (*ROI, error) {
	parsed, err := geojson.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse GeoJSON: %v", err)
	}

	var candidates []*geojson.Feature
	switch typed := parsed.(type) {
	case *geojson.FeatureCollection:
		candidates = typed.Features
	case *geojson.Feature:
		candidates = []*geojson.Feature{typed}
	case *geojson.Polygon, *geojson.MultiPolygon:
		candidates = []*geojson.Feature{geojson.NewFeature(typed, nil, nil)}
	default:
		return nil, fmt.Errorf("Unsupported GeoJSON type %T: %w", parsed, ErrNoPolygons)
	}

	features := make([]*geojson.Feature, 0, len(candidates))
	for i, candidate := range candidates {
		if candidate == nil || !isPolygonal(candidate.Geometry) {
			continue
		}
		id := candidate.IDStr()
		if id == "" {
			id = strconv.Itoa(i)
		}
		properties := candidate.Properties
		if properties == nil {
			properties = map[string]interface{}{}
		}
		feature := geojson.NewFeature(candidate.Geometry, id, properties)
		features = append(features, feature)
	}
	if len(features) == 0 {
		return nil, ErrNoPolygons
	}

	return newROI(geojson.NewFeatureCollection(features)), nil
}

// ParseFile reads an ROI from a GeoJSON file on disk
func ParseFile(path string) (*ROI, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func newROI(fc *geojson.FeatureCollection) *ROI {
	sum := sha256.Sum256([]byte(fc.String()))
	return &ROI{collection: fc, fingerprint: hex.EncodeToString(sum[:])}
}

func isPolygonal(geometry interface{}) bool {
	switch g := geometry.(type) {
	case *geojson.Polygon:
		return g != nil && len(g.Coordinates) > 0
	case *geojson.MultiPolygon:
		return g != nil && len(g.Coordinates) > 0
	}
	return false
}

// Features returns the polygonal features of the ROI
func (r *ROI) Features() []*geojson.Feature {
	return r.collection.Features
}

// FeatureCollection returns the normalized ROI for display
func (r *ROI) FeatureCollection() *geojson.FeatureCollection {
	return r.collection
}

// Fingerprint identifies the ROI content, e.g. for memoization keys
func (r *ROI) Fingerprint() string {
	return r.fingerprint
}

// Bbox is the bounding box of every feature, [minLon, minLat, maxLon, maxLat]
func (r *ROI) Bbox() geojson.BoundingBox {
	minLon, minLat := 180.0, 90.0
	maxLon, maxLat := -180.0, -90.0
	for _, feature := range r.collection.Features {
		bbox := feature.ForceBbox()
		if len(bbox) < 4 {
			continue
		}
		if bbox[0] < minLon {
			minLon = bbox[0]
		}
		if bbox[1] < minLat {
			minLat = bbox[1]
		}
		if bbox[2] > maxLon {
			maxLon = bbox[2]
		}
		if bbox[3] > maxLat {
			maxLat = bbox[3]
		}
	}
	return geojson.BoundingBox{minLon, minLat, maxLon, maxLat}
}

// Center is the middle of the bounding box as lon, lat
func (r *ROI) Center() (float64, float64) {
	bbox := r.Bbox()
	return (bbox[0] + bbox[2]) / 2, (bbox[1] + bbox[3]) / 2
}

// View centers the map on the ROI
func (r *ROI) View() View {
	lon, lat := r.Center()
	return View{Lon: lon, Lat: lat, Zoom: ROIZoom}
}

// String returns the normalized GeoJSON text
func (r *ROI) String() string {
	return r.collection.String()
}

// MarshalJSON stores the ROI as its GeoJSON text
func (r *ROI) MarshalJSON() ([]byte, error) {
	return []byte(r.collection.String()), nil
}

// UnmarshalJSON restores an ROI stored by MarshalJSON
func (r *ROI) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}
