package dashboard

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/venicegeo/bf-vegindex/history"
	"github.com/venicegeo/bf-vegindex/session"
)

type testClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func mockServer(t *testing.T, engine *mockEngine) *testClient {
	router := mux.NewRouter()
	RegisterRoutes(router, Context{
		Service:  mockService(t, engine, 1024),
		Sessions: session.NewMemoryStore(),
		History:  history.NewMemoryStore(),
	})
	server := httptest.NewServer(router)
	jar, _ := cookiejar.New(nil)
	return &testClient{t: t, server: server, client: &http.Client{Jar: jar}}
}

func (c *testClient) do(method, path, contentType, body string) (int, string, http.Header) {
	req, err := http.NewRequest(method, c.server.URL+path, strings.NewReader(body))
	assert.Nil(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	assert.Nil(c.t, err)
	defer resp.Body.Close()
	data, _ := ioutil.ReadAll(resp.Body)
	return resp.StatusCode, string(data), resp.Header
}

func TestHandlers_Health(t *testing.T) {
	c := mockServer(t, &mockEngine{})
	defer c.server.Close()

	status, body, _ := c.do("GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body, headers := c.do("GET", "/", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, headers.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "leaflet")
}

func TestHandlers_NoROIConflict(t *testing.T) {
	// Mock
	engine := &mockEngine{}
	c := mockServer(t, engine)
	defer c.server.Close()

	// Tested code / Asserts
	for _, call := range [][2]string{{"GET", "/scenes"}, {"GET", "/layers"}, {"GET", "/timeseries"}, {"POST", "/export"}} {
		status, body, _ := c.do(call[0], call[1], "", "")
		assert.Equal(t, http.StatusConflict, status, call[1])
		assert.Contains(t, body, ErrNoROI.Error())
	}
	assert.Equal(t, 0, engine.calls())
}

func TestHandlers_ROIDefaults(t *testing.T) {
	c := mockServer(t, &mockEngine{})
	defer c.server.Close()

	status, body, _ := c.do("GET", "/roi", "", "")

	assert.Equal(t, http.StatusOK, status)
	var response map[string]interface{}
	assert.Nil(t, json.Unmarshal([]byte(body), &response))
	assert.Nil(t, response["roi"])
	assert.Equal(t, 8.0, response["view"].(map[string]interface{})["zoom"])
}

func TestHandlers_ROIUploadRejected(t *testing.T) {
	c := mockServer(t, &mockEngine{})
	defer c.server.Close()

	status, _, _ := c.do("POST", "/roi", "application/geo+json", `{"type":"Point","coordinates":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = c.do("POST", "/roi", "application/geo+json", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandlers_Workflow(t *testing.T) {
	// Mock
	engine := &mockEngine{pixelSize: 512}
	c := mockServer(t, engine)
	defer c.server.Close()

	// Upload
	status, body, _ := c.do("POST", "/roi", "application/geo+json", mockROIGeoJSON)
	assert.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"zoom":13`)

	// Scenes
	status, body, headers := c.do("GET", "/scenes?start=2024-01-01&end=2024-03-01&cloud=20", "", "")
	assert.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "application/geo+json", headers.Get("Content-Type"))
	assert.Contains(t, body, "2024-02-14")

	status, _, _ = c.do("GET", "/scenes?cloud=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, status)

	// Selection
	status, _, _ = c.do("PUT", "/selection", "application/json", `{"dates":["2024-01-05"],"indices":["savi"]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, body, _ = c.do("PUT", "/selection", "application/json", `{"dates":["2024-01-05"],"indices":["NDVI"]}`)
	assert.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"indices":["ndvi"]`)

	// Layers
	status, body, _ = c.do("GET", "/layers", "", "")
	assert.Equal(t, http.StatusOK, status, body)
	var layers []map[string]interface{}
	assert.Nil(t, json.Unmarshal([]byte(body), &layers))
	assert.Len(t, layers, 3)

	// Series
	status, body, headers = c.do("GET", "/timeseries?format=csv", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text/csv", headers.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "date,feature,ndre,ndvi,evi\n"))

	// Export and history
	status, body, _ = c.do("POST", "/export", "", "")
	assert.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"status":"success"`)
	status, body, _ = c.do("GET", "/exports", "", "")
	assert.Equal(t, http.StatusOK, status)
	var records []history.ExportRecord
	assert.Nil(t, json.Unmarshal([]byte(body), &records))
	assert.Len(t, records, 1)
	assert.Equal(t, "2024-01-05", records[0].SceneDate)
}

func TestHandlers_ExportWithoutSelection(t *testing.T) {
	c := mockServer(t, &mockEngine{})
	defer c.server.Close()
	status, _, _ := c.do("POST", "/roi", "application/geo+json", mockROIGeoJSON)
	assert.Equal(t, http.StatusOK, status)

	status, body, _ := c.do("POST", "/export", "", "")

	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, ErrNoSelection.Error())
}
