package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/venicegeo/bf-vegindex/export"
	"github.com/venicegeo/bf-vegindex/gee"
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
	"github.com/venicegeo/bf-vegindex/util"
)

// General test mocks and utils

const mockROIGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":"north","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-45.3,-17.8],[-45.2,-17.8],[-45.2,-17.7],[-45.3,-17.7],[-45.3,-17.8]]]}},
	{"type":"Feature","id":"south","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-45.3,-17.9],[-45.2,-17.9],[-45.2,-17.8],[-45.3,-17.8],[-45.3,-17.9]]]}}
]}`

var mockQuery = model.SceneQuery{
	Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	CloudLimit: 15,
}

var mockSceneTable = map[string]interface{}{
	"dates":  []string{"2024-01-05", "2024-02-14"},
	"clouds": []float64{3.5, 12.25},
	"ids":    []string{"COPERNICUS/S2_SR_HARMONIZED/A", "COPERNICUS/S2_SR_HARMONIZED/B"},
}

var mockReduced = map[string]interface{}{
	"type": "FeatureCollection",
	"features": []map[string]interface{}{
		{"id": "B_1", "properties": map[string]interface{}{"data": "2024-02-14", "roi_id": "south", "ndvi": 0.6, "ndre": 0.3, "evi": 0.5}},
		{"id": "A_0", "properties": map[string]interface{}{"data": "2024-01-05", "roi_id": "north", "ndvi": 0.7, "ndre": 0.35, "evi": nil}},
		{"id": "A_1", "properties": map[string]interface{}{"data": "2024-01-05", "roi_id": "south", "ndvi": 0.65, "ndre": 0.33, "evi": 0.45}},
	},
}

var tiffHeader = []byte("II*\x00\x08\x00\x00\x00")

type mockEngine struct {
	values     int
	maps       []model.VisParams
	pixels     int
	pixelSize  int
	pixelError error
	valueError error
	reduced    map[string]interface{}
}

func (m *mockEngine) calls() int {
	return m.values + len(m.maps) + m.pixels
}

func (m *mockEngine) ComputeValue(ctx context.Context, expr *gee.Expression, out interface{}) error {
	m.values++
	if m.valueError != nil {
		return m.valueError
	}
	raw := expr.Raw()
	var result interface{} = mockReduced
	if m.reduced != nil {
		result = m.reduced
	}
	if raw.Values[raw.Result].DictionaryValue != nil {
		result = mockSceneTable
	}
	data, _ := json.Marshal(result)
	return json.Unmarshal(data, out)
}

func (m *mockEngine) CreateMap(ctx context.Context, expr *gee.Expression, vis model.VisParams) (string, error) {
	m.maps = append(m.maps, vis)
	return "https://tiles.example/" + strings.Join(vis.Bands, "-") + "/{z}/{x}/{y}", nil
}

func (m *mockEngine) ComputePixels(ctx context.Context, expr *gee.Expression, grid gee.Grid) ([]byte, error) {
	m.pixels++
	if m.pixelError != nil {
		return nil, m.pixelError
	}
	payload := make([]byte, m.pixelSize)
	copy(payload, tiffHeader)
	return payload, nil
}

func mockROI(t *testing.T) *roi.ROI {
	region, err := roi.Parse([]byte(mockROIGeoJSON))
	assert.Nil(t, err)
	return region
}

func mockService(t *testing.T, engine *mockEngine, limit int64) *Service {
	service, err := NewService(engine, export.NewGuard(t.TempDir(), limit), 8)
	assert.Nil(t, err)
	return service
}

// Actual tests

func TestService_NoROI(t *testing.T) {
	// Mock
	engine := &mockEngine{pixelSize: 16}
	service := mockService(t, engine, 1024)
	ctx := context.Background()

	// Tested code
	_, scenesErr := service.Scenes(ctx, nil, mockQuery)
	_, layersErr := service.Layers(ctx, nil, mockQuery, []string{"2024-01-05"}, model.AllIndices)
	_, seriesErr := service.TimeSeries(ctx, nil, mockQuery)
	_, exportErr := service.Export(ctx, nil, mockQuery, []string{"2024-01-05"})

	// Asserts
	for _, err := range []error{scenesErr, layersErr, seriesErr, exportErr} {
		assert.True(t, errors.Is(err, ErrNoROI))
	}
	assert.Equal(t, 0, engine.calls())
}

func TestService_ScenesMemoized(t *testing.T) {
	// Mock
	engine := &mockEngine{}
	service := mockService(t, engine, 1024)
	region := mockROI(t)

	// Tested code
	first, err := service.Scenes(context.Background(), region, mockQuery)
	first[0].Date = "mutated"
	second, err2 := service.Scenes(context.Background(), region, mockQuery)

	// Asserts
	assert.Nil(t, err)
	assert.Nil(t, err2)
	assert.Equal(t, 1, engine.values)
	assert.Len(t, second, 2)
	assert.Equal(t, "2024-01-05", second[0].Date)
	assert.Equal(t, 12.25, second[1].CloudPercentage)
	assert.Equal(t, "COPERNICUS/S2_SR_HARMONIZED/B", second[1].ID)

	other := mockQuery
	other.CloudLimit = 40
	_, err = service.Scenes(context.Background(), region, other)
	assert.Nil(t, err)
	assert.Equal(t, 2, engine.values)
}

func TestService_ScenesInvalidQuery(t *testing.T) {
	engine := &mockEngine{}
	service := mockService(t, engine, 1024)
	bad := mockQuery
	bad.CloudLimit = 150

	_, err := service.Scenes(context.Background(), mockROI(t), bad)

	assert.Equal(t, http.StatusBadRequest, util.StatusOf(err, 0))
	assert.Equal(t, 0, engine.calls())
}

func TestService_ScenesRemoteError(t *testing.T) {
	engine := &mockEngine{valueError: util.HTTPErr{Status: http.StatusBadRequest, Message: "Earth Engine: bad expression"}}
	service := mockService(t, engine, 1024)

	_, err := service.Scenes(context.Background(), mockROI(t), mockQuery)

	assert.Equal(t, http.StatusBadRequest, util.StatusOf(err, 0))
}

func TestService_LayersWithoutSelection(t *testing.T) {
	engine := &mockEngine{}
	service := mockService(t, engine, 1024)

	layers, err := service.Layers(context.Background(), mockROI(t), mockQuery, nil, model.AllIndices)

	assert.Nil(t, err)
	assert.Len(t, layers, 1)
	assert.Equal(t, ROILayerName, layers[0].Name)
}

func TestService_Layers(t *testing.T) {
	// Mock
	engine := &mockEngine{}
	service := mockService(t, engine, 1024)

	// Tested code
	layers, err := service.Layers(context.Background(), mockROI(t), mockQuery,
		[]string{"2024-01-05"}, []model.Index{model.EVI, model.NDVI})

	// Asserts
	assert.Nil(t, err)
	assert.Len(t, layers, 4)
	assert.Equal(t, ROILayerName, layers[0].Name)
	assert.Equal(t, "Img [2024-01-05]", layers[1].Name)
	assert.Equal(t, model.FalseColorVis, layers[1].Vis)
	assert.Equal(t, "NDVI", layers[2].Name)
	assert.Equal(t, "EVI", layers[3].Name)
	assert.Equal(t, model.IndexPalette, layers[3].Vis.Palette)
	assert.Contains(t, layers[2].TileURL, "/ndvi/")
}

func TestService_TimeSeries(t *testing.T) {
	// Mock
	engine := &mockEngine{}
	service := mockService(t, engine, 1024)

	// Tested code
	rows, err := service.TimeSeries(context.Background(), mockROI(t), mockQuery)

	// Asserts
	assert.Nil(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "2024-01-05", rows[0].Date.Format(model.DateFormat))
	assert.Equal(t, "north", rows[0].FeatureID)
	assert.NotNil(t, rows[0].Geometry)
	_, hasEVI := rows[0].IndexMeans[model.EVI]
	assert.False(t, hasEVI)
	assert.Equal(t, "south", rows[1].FeatureID)
	assert.Equal(t, "2024-02-14", rows[2].Date.Format(model.DateFormat))
	assert.Equal(t, 0.6, rows[2].IndexMeans[model.NDVI])
}

func TestWriteSeriesCSV(t *testing.T) {
	rows := []model.SeriesRow{
		{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), FeatureID: "north", IndexMeans: model.IndexMeans{model.NDVI: 0.7, model.NDRE: 0.35}},
	}
	var buf bytes.Buffer

	err := WriteSeriesCSV(&buf, rows)

	assert.Nil(t, err)
	assert.Equal(t, "date,feature,ndre,ndvi,evi\n2024-01-05,north,0.35,0.7,\n", buf.String())
}

func TestService_ExportRequiresSelection(t *testing.T) {
	engine := &mockEngine{}
	service := mockService(t, engine, 1024)

	_, err := service.Export(context.Background(), mockROI(t), mockQuery, nil)

	assert.True(t, errors.Is(err, ErrNoSelection))
	assert.Equal(t, 0, engine.calls())
}

func TestService_ExportWithinLimit(t *testing.T) {
	// Mock
	engine := &mockEngine{pixelSize: 1024}
	service := mockService(t, engine, 1024)

	// Tested code
	result, err := service.Export(context.Background(), mockROI(t), mockQuery, []string{"2024-02-14", "2024-01-05"})

	// Asserts
	assert.Nil(t, err)
	assert.Equal(t, model.ExportSucceeded, result.Status)
	assert.Equal(t, "2024-01-05", result.Date)
	assert.Len(t, result.Files, 2)
	assert.True(t, strings.HasSuffix(result.Files[0].Path, export.BandsFileName))
	assert.True(t, strings.HasSuffix(result.Files[1].Path, export.IndicesFileName))
	assert.Equal(t, 2, engine.pixels)
}

func TestService_ExportOversized(t *testing.T) {
	engine := &mockEngine{pixelSize: 1025}
	service := mockService(t, engine, 1024)

	result, err := service.Export(context.Background(), mockROI(t), mockQuery, []string{"2024-01-05"})

	assert.Nil(t, err)
	assert.Equal(t, model.ExportOversized, result.Status)
	for _, file := range result.Files {
		assert.False(t, file.Kept)
	}
}

func TestService_ExportNotCreated(t *testing.T) {
	// Mock
	engine := &mockEngine{pixelSize: 16}
	service := mockService(t, engine, 1024)
	_, err := service.Export(context.Background(), mockROI(t), mockQuery, []string{"2024-01-05"})
	assert.Nil(t, err)
	engine.pixelError = errors.New("Total request size must be less than or equal to 50331648 bytes")

	// Tested code
	result, err := service.Export(context.Background(), mockROI(t), mockQuery, []string{"2024-01-05"})

	// Asserts
	assert.Nil(t, err)
	assert.Equal(t, model.ExportFailed, result.Status)
	assert.Equal(t, export.MessageNotCreated, result.Message)
}

func TestService_TimeSeriesSkipsFeaturesWithoutID(t *testing.T) {
	// Mock
	engine := &mockEngine{reduced: map[string]interface{}{
		"type": "FeatureCollection",
		"features": []map[string]interface{}{
			{"properties": map[string]interface{}{"data": "2024-01-05", "ndvi": 0.7}},
			{"properties": map[string]interface{}{"data": "2024-01-05", "roi_id": "north", "ndvi": 0.65}},
		},
	}}
	service := mockService(t, engine, 1024)

	// Tested code
	rows, err := service.TimeSeries(context.Background(), mockROI(t), mockQuery)

	// Asserts
	assert.Nil(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "north", rows[0].FeatureID)
	assert.NotNil(t, rows[0].Geometry)
}

// pausingEngine holds its second ComputePixels call until release is closed
// and fails every call after it
type pausingEngine struct {
	mockEngine
	mu      sync.Mutex
	count   int
	paused  chan struct{}
	release chan struct{}
}

func (m *pausingEngine) ComputePixels(ctx context.Context, expr *gee.Expression, grid gee.Grid) ([]byte, error) {
	m.mu.Lock()
	m.count++
	n := m.count
	m.mu.Unlock()

	if n == 2 {
		close(m.paused)
		<-m.release
	}
	if n > 2 {
		return nil, errors.New("User memory limit exceeded")
	}
	payload := make([]byte, 16)
	copy(payload, tiffHeader)
	return payload, nil
}

func TestService_ExportsRunOneAtATime(t *testing.T) {
	// Mock
	engine := &pausingEngine{paused: make(chan struct{}), release: make(chan struct{})}
	service, err := NewService(engine, export.NewGuard(t.TempDir(), 1024), 8)
	assert.Nil(t, err)
	region := mockROI(t)
	run := func(results chan<- *model.ExportResult) {
		result, err := service.Export(context.Background(), region, mockQuery, []string{"2024-01-05"})
		assert.Nil(t, err)
		results <- result
	}
	first := make(chan *model.ExportResult, 1)
	second := make(chan *model.ExportResult, 1)

	// Tested code
	go run(first)
	<-engine.paused
	go run(second)
	time.Sleep(50 * time.Millisecond)
	close(engine.release)
	firstResult := <-first
	secondResult := <-second

	// Asserts
	if assert.NotNil(t, firstResult) {
		assert.Equal(t, model.ExportSucceeded, firstResult.Status)
		assert.Len(t, firstResult.Files, 2)
	}
	if assert.NotNil(t, secondResult) {
		assert.Equal(t, model.ExportFailed, secondResult.Status)
		assert.Equal(t, export.MessageNotCreated, secondResult.Message)
	}
}
