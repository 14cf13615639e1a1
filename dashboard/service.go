// Package dashboard turns dashboard interactions into Earth Engine requests
// and serves the results over HTTP.
package dashboard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/venicegeo/bf-vegindex/export"
	"github.com/venicegeo/bf-vegindex/gee"
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
	"github.com/venicegeo/bf-vegindex/util"
)

// ErrNoROI is returned by every computation attempted before an ROI is uploaded
var ErrNoROI = errors.New("upload a region of interest first")

// ErrNoSelection is returned when an export is requested without selected dates
var ErrNoSelection = errors.New("select at least one image date first")

// DefaultSceneCacheSize bounds the number of memoized scene tables
const DefaultSceneCacheSize = 128

// ROILayerName is the name of the outline layer
const ROILayerName = "Region of interest"

// Service runs dashboard computations against an Engine
type Service struct {
	engine gee.Engine
	guard  *export.Guard
	scenes *lru.Cache[string, []model.Scene]
	logCtx util.LogContext
}

// NewService memoizes up to cacheSize scene tables
func NewService(engine gee.Engine, guard *export.Guard, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSceneCacheSize
	}
	cache, err := lru.New[string, []model.Scene](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{engine: engine, guard: guard, scenes: cache, logCtx: &util.BasicLogContext{}}, nil
}

func validate(region *roi.ROI, query model.SceneQuery) error {
	if region == nil {
		return ErrNoROI
	}
	if err := query.Validate(); err != nil {
		return util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()}
	}
	return nil
}

type sceneTable struct {
	Dates  []string  `json:"dates"`
	Clouds []float64 `json:"clouds"`
	IDs    []string  `json:"ids"`
}

// Scenes lists the images matching query over region
func (s *Service) Scenes(ctx context.Context, region *roi.ROI, query model.SceneQuery) ([]model.Scene, error) {
	if err := validate(region, query); err != nil {
		return nil, err
	}
	key := region.Fingerprint() + "|" + query.Key()
	if cached, ok := s.scenes.Get(key); ok {
		return append([]model.Scene{}, cached...), nil
	}

	r := gee.NewRecipe(region)
	var table sceneTable
	if err := s.engine.ComputeValue(ctx, r.Expression(r.SceneTable(r.Collection(query))), &table); err != nil {
		return nil, err
	}
	if len(table.Dates) != len(table.Clouds) || len(table.Dates) != len(table.IDs) {
		return nil, &util.Error{
			SimpleMsg:  "Scene table columns differ in length",
			LogMsg:     fmt.Sprintf("dates %d, clouds %d, ids %d", len(table.Dates), len(table.Clouds), len(table.IDs)),
			HTTPStatus: http.StatusBadGateway,
		}
	}

	scenes := make([]model.Scene, len(table.Dates))
	for i := range table.Dates {
		scenes[i] = model.Scene{ID: table.IDs[i], Date: table.Dates[i], CloudPercentage: table.Clouds[i]}
	}
	s.scenes.Add(key, scenes)
	util.LogInfo(s.logCtx, fmt.Sprintf("Found %d scenes for %s", len(scenes), query.Key()))
	return append([]model.Scene{}, scenes...), nil
}

// Layers builds the map overlays: the ROI outline, then, when dates are
// selected, the false-color composite and one layer per enabled index
func (s *Service) Layers(ctx context.Context, region *roi.ROI, query model.SceneQuery, dates []string, indices []model.Index) ([]model.Layer, error) {
	if err := validate(region, query); err != nil {
		return nil, err
	}
	r := gee.NewRecipe(region)
	outline, err := s.engine.CreateMap(ctx, r.Expression(r.Outline()), model.VisParams{})
	if err != nil {
		return nil, err
	}
	layers := []model.Layer{{Name: ROILayerName, TileURL: outline}}
	if len(dates) == 0 {
		return layers, nil
	}

	selected := r.SelectDates(r.Collection(query), dates)
	composite, err := s.engine.CreateMap(ctx, r.Expression(r.Mosaic(selected, model.FalseColorVis.Bands...)), model.FalseColorVis)
	if err != nil {
		return nil, err
	}
	layers = append(layers, model.Layer{Name: fmt.Sprintf("Img %v", dates), TileURL: composite, Vis: model.FalseColorVis})

	for _, index := range model.AllIndices {
		if !containsIndex(indices, index) {
			continue
		}
		vis := index.VisParams()
		url, err := s.engine.CreateMap(ctx, r.Expression(r.Mosaic(selected, vis.Bands...)), vis)
		if err != nil {
			return nil, err
		}
		layers = append(layers, model.Layer{Name: index.Label(), TileURL: url, Vis: vis})
	}
	return layers, nil
}

func containsIndex(indices []model.Index, index model.Index) bool {
	for _, i := range indices {
		if i == index {
			return true
		}
	}
	return false
}

type reducedFeature struct {
	Properties map[string]interface{} `json:"properties"`
}

type reducedCollection struct {
	Features []reducedFeature `json:"features"`
}

// TimeSeries reduces every scene matching query to its mean index values
// over each ROI feature, ordered by date
func (s *Service) TimeSeries(ctx context.Context, region *roi.ROI, query model.SceneQuery) ([]model.SeriesRow, error) {
	if err := validate(region, query); err != nil {
		return nil, err
	}
	r := gee.NewRecipe(region)
	var reduced reducedCollection
	if err := s.engine.ComputeValue(ctx, r.Expression(r.RegionMeans(r.Collection(query))), &reduced); err != nil {
		return nil, err
	}

	geometries := map[string]interface{}{}
	for _, feature := range region.Features() {
		geometries[feature.IDStr()] = feature.Geometry
	}

	rows := make([]model.SeriesRow, 0, len(reduced.Features))
	for _, feature := range reduced.Features {
		dateStr, _ := feature.Properties[model.DatePropertyName].(string)
		date, err := model.ParseDate(dateStr)
		if err != nil {
			util.LogAlert(s.logCtx, fmt.Sprintf("Skipping reduced feature without a valid date: %v", err))
			continue
		}
		featureID, ok := feature.Properties[model.FeatureIDPropertyName].(string)
		if !ok || featureID == "" {
			util.LogAlert(s.logCtx, fmt.Sprintf("Skipping reduced feature of %s without a feature id", dateStr))
			continue
		}
		means := model.IndexMeans{}
		for _, index := range model.AllIndices {
			if value, ok := feature.Properties[string(index)].(float64); ok {
				means[index] = value
			}
		}
		rows = append(rows, model.SeriesRow{
			Date:       date,
			FeatureID:  featureID,
			Geometry:   geometries[featureID],
			IndexMeans: means,
		})
	}
	model.SortSeries(rows)
	return rows, nil
}

// WriteSeriesCSV writes rows as date,feature,ndre,ndvi,evi; masked means are left blank
func WriteSeriesCSV(w io.Writer, rows []model.SeriesRow) error {
	writer := csv.NewWriter(w)
	header := []string{"date", "feature"}
	for _, index := range model.AllIndices {
		header = append(header, string(index))
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{row.Date.Format(model.DateFormat), row.FeatureID}
		for _, index := range model.AllIndices {
			if value, ok := row.IndexMeans[index]; ok {
				record = append(record, strconv.FormatFloat(value, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Export downloads the oldest selected scene as two GeoTIFFs, every B band
// and the three indices, then applies the size guard.
// Exports share the guard's directory and run one at a time.
func (s *Service) Export(ctx context.Context, region *roi.ROI, query model.SceneQuery, dates []string) (*model.ExportResult, error) {
	if err := validate(region, query); err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, ErrNoSelection
	}

	r := gee.NewRecipe(region)
	selected := r.SelectDates(r.Collection(query), dates)
	indexBands := make([]string, 0, len(model.AllIndices))
	for _, index := range []model.Index{model.NDVI, model.NDRE, model.EVI} {
		indexBands = append(indexBands, string(index))
	}
	images := []struct {
		name  string
		image gee.Node
	}{
		{export.BandsFileName, r.First(selected, "B.*")},
		{export.IndicesFileName, r.First(selected, indexBands...)},
	}
	grid := gee.GridForBbox(region.Bbox(), model.ReductionScale)

	names := []string{export.BandsFileName, export.IndicesFileName}
	s.guard.Lock()
	defer s.guard.Unlock()
	s.guard.Clear(names...)
	paths := make([]string, 0, len(images))
	for _, image := range images {
		paths = append(paths, s.guard.Path(image.name))
		data, err := s.engine.ComputePixels(ctx, r.Expression(image.image), grid)
		if err != nil {
			util.LogAlert(s.logCtx, fmt.Sprintf("Export of %s failed: %v", image.name, err))
			continue
		}
		if _, err := s.guard.Write(image.name, data); err != nil {
			util.LogAlert(s.logCtx, fmt.Sprintf("Export of %s not written: %v", image.name, err))
		}
	}

	result := s.guard.Check(ctx, paths...)
	sorted := append([]string{}, dates...)
	sort.Strings(sorted)
	result.Date = sorted[0]
	return &result, nil
}
