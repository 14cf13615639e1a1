package dashboard

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/venicegeo/bf-vegindex/history"
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
	"github.com/venicegeo/bf-vegindex/session"
	"github.com/venicegeo/bf-vegindex/util"
)

// SessionCookieName identifies the browser's session
const SessionCookieName = "vegindex_session"

const maxUploadBytes = 10 << 20

//go:embed static/index.html
var indexPage []byte

// Context is shared by every handler; it doubles as the per-request log context
type Context struct {
	Service   *Service
	Sessions  session.Store
	History   history.Store
	sessionID string
}

// AppName implements util.LogContext
func (c *Context) AppName() string { return util.AppName }

// SessionID implements util.LogContext
func (c *Context) SessionID() string { return c.sessionID }

// LogRootDir implements util.LogContext
func (c *Context) LogRootDir() string { return "" }

// loadSession finds the caller's session, starting a new one when the cookie
// is missing or the session expired
func (c *Context) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		s, err := c.Sessions.Get(r.Context(), cookie.Value)
		if err == nil {
			c.sessionID = s.ID
			return s, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
	}
	s := session.New(time.Now())
	c.sessionID = s.ID
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	util.LogInfo(c, "Started new session")
	return s, c.Sessions.Save(r.Context(), s)
}

func (c *Context) saveSession(r *http.Request, s *session.Session) error {
	return c.Sessions.Save(r.Context(), s)
}

// fail logs err and writes it with the status it maps to
func (c *Context) fail(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	status := util.StatusOf(err, http.StatusInternalServerError)
	switch {
	case errors.Is(err, ErrNoROI), errors.Is(err, ErrNoSelection):
		status = http.StatusConflict
	}
	message := err.Error()
	if prefix != "" {
		message = prefix + ": " + message
	}
	if status >= http.StatusInternalServerError {
		util.LogSimpleErr(c, message, err)
	} else {
		util.LogAlert(c, message)
	}
	util.HTTPError(r, w, c, message, status)
}

// IndexHandler serves the dashboard page
type IndexHandler struct{}

func (h IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}

// ROIHandler is a handler for /roi
// POST uploads a GeoJSON document, as the request body or as the multipart
// field "file"; GET returns the current ROI and the map view centered on it
type ROIHandler struct {
	Context Context
}

type roiResponse struct {
	View roi.View        `json:"view"`
	ROI  json.RawMessage `json:"roi"`
}

func (h ROIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}

	if r.Method == http.MethodPost {
		data, err := readUpload(w, r)
		if err != nil {
			ctx.fail(w, r, "Could not read upload", util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()})
			return
		}
		region, err := roi.Parse(data)
		if err != nil {
			ctx.fail(w, r, "Invalid ROI", util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()})
			return
		}
		s.SetROI(region)
		if err = ctx.saveSession(r, s); err != nil {
			ctx.fail(w, r, "Could not save session", err)
			return
		}
		util.LogAudit(&ctx, util.LogAuditInput{Actor: ctx.sessionID, Action: "upload ROI", Actee: region.Fingerprint(),
			Message: fmt.Sprintf("ROI with %d features", len(region.Features())), Severity: util.INFO})
	} else if err = ctx.saveSession(r, s); err != nil {
		ctx.fail(w, r, "Could not save session", err)
		return
	}

	response := roiResponse{View: roi.DefaultView(), ROI: json.RawMessage("null")}
	if s.ROI != nil {
		response.View = s.ROI.View()
		response.ROI = json.RawMessage(s.ROI.String())
	}
	util.WriteJSON(w, http.StatusOK, response)
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return ioutil.ReadAll(file)
	}
	return ioutil.ReadAll(r.Body)
}

// ScenesHandler is a handler for /scenes
// @Param start query string false "Start date, yyyy-MM-dd"
// @Param end   query string false "End date (exclusive), yyyy-MM-dd"
// @Param cloud query number false "Maximum scene cloud percentage (0-100)"
// Returns the available images as a GeoJSON FeatureCollection without geometries
type ScenesHandler struct {
	Context Context
}

func (h ScenesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}
	query, err := queryFromRequest(r, s.Query)
	if err != nil {
		ctx.fail(w, r, "Invalid query", err)
		return
	}
	s.SetQuery(query)
	if err = ctx.saveSession(r, s); err != nil {
		ctx.fail(w, r, "Could not save session", err)
		return
	}

	scenes, err := ctx.Service.Scenes(r.Context(), s.ROI, s.Query)
	if err != nil {
		ctx.fail(w, r, "Error searching for scenes", err)
		return
	}
	multiResult := model.MultiResult{FeatureCreators: make([]model.GeoJSONFeatureCreator, len(scenes))}
	for i, scene := range scenes {
		multiResult.FeatureCreators[i] = scene
	}
	writeFeatureCollection(w, r, &ctx, multiResult)
}

// queryFromRequest overrides current with whichever of start, end and cloud are given
func queryFromRequest(r *http.Request, current model.SceneQuery) (model.SceneQuery, error) {
	query := current
	var err error
	if value := r.FormValue("start"); value != "" {
		if query.Start, err = model.ParseDate(value); err != nil {
			return current, util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()}
		}
	}
	if value := r.FormValue("end"); value != "" {
		if query.End, err = model.ParseDate(value); err != nil {
			return current, util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()}
		}
	}
	if value := r.FormValue("cloud"); value != "" {
		if query.CloudLimit, err = strconv.ParseFloat(value, 64); err != nil {
			return current, util.HTTPErr{Status: http.StatusBadRequest, Message: fmt.Sprintf("Cloud limit value of %v is invalid", value)}
		}
	}
	if err = query.Validate(); err != nil {
		return current, util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()}
	}
	return query, nil
}

func writeFeatureCollection(w http.ResponseWriter, r *http.Request, ctx *Context, creator model.GeoJSONFeatureCollectionCreator) {
	featureCollection, err := creator.GeoJSONFeatureCollection()
	if err != nil {
		ctx.fail(w, r, "Error converting to feature collection", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write([]byte(featureCollection.String()))
}

// SelectionHandler is a handler for PUT /selection
// The body is {"dates": ["yyyy-MM-dd", ...], "indices": ["ndvi", ...]}
type SelectionHandler struct {
	Context Context
}

type selection struct {
	Dates   []string `json:"dates"`
	Indices []string `json:"indices"`
}

func (h SelectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}

	var body selection
	if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&body); err != nil {
		ctx.fail(w, r, "Invalid selection", util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()})
		return
	}
	dates := make([]string, 0, len(body.Dates))
	for _, value := range body.Dates {
		date, err := model.ParseDate(value)
		if err != nil {
			ctx.fail(w, r, "Invalid selection", util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()})
			return
		}
		dates = append(dates, date.Format(model.DateFormat))
	}
	indices, err := model.ParseIndices(strings.Join(body.Indices, ","))
	if err != nil {
		ctx.fail(w, r, "Invalid selection", util.HTTPErr{Status: http.StatusBadRequest, Message: err.Error()})
		return
	}

	s.SelectedDates = dates
	s.Indices = append([]model.Index{}, indices...)
	if err = ctx.saveSession(r, s); err != nil {
		ctx.fail(w, r, "Could not save session", err)
		return
	}
	util.WriteJSON(w, http.StatusOK, s)
}

// LayersHandler is a handler for /layers, listing the tile layers of the current selection
type LayersHandler struct {
	Context Context
}

func (h LayersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}
	if err = ctx.saveSession(r, s); err != nil {
		ctx.fail(w, r, "Could not save session", err)
		return
	}
	layers, err := ctx.Service.Layers(r.Context(), s.ROI, s.Query, s.SelectedDates, s.Indices)
	if err != nil {
		ctx.fail(w, r, "Error creating map layers", err)
		return
	}
	util.WriteJSON(w, http.StatusOK, layers)
}

// TimeSeriesHandler is a handler for /timeseries
// @Param format query string false "csv for a CSV download, GeoJSON otherwise"
type TimeSeriesHandler struct {
	Context Context
}

func (h TimeSeriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}
	if err = ctx.saveSession(r, s); err != nil {
		ctx.fail(w, r, "Could not save session", err)
		return
	}
	rows, err := ctx.Service.TimeSeries(r.Context(), s.ROI, s.Query)
	if err != nil {
		ctx.fail(w, r, "Error computing time series", err)
		return
	}

	if strings.EqualFold(r.FormValue("format"), "csv") {
		var buf bytes.Buffer
		if err = WriteSeriesCSV(&buf, rows); err != nil {
			ctx.fail(w, r, "Error writing CSV", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="timeseries.csv"`)
		w.Write(buf.Bytes())
		return
	}

	multiResult := model.MultiResult{FeatureCreators: make([]model.GeoJSONFeatureCreator, len(rows))}
	for i, row := range rows {
		multiResult.FeatureCreators[i] = row
	}
	writeFeatureCollection(w, r, &ctx, multiResult)
}

// ExportHandler is a handler for POST /export, exporting the first selected scene
type ExportHandler struct {
	Context Context
}

func (h ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}
	if err = ctx.saveSession(r, s); err != nil {
		ctx.fail(w, r, "Could not save session", err)
		return
	}
	result, err := ctx.Service.Export(r.Context(), s.ROI, s.Query, s.SelectedDates)
	if err != nil {
		ctx.fail(w, r, "Error exporting images", err)
		return
	}

	record := history.NewExportRecord(s.ID, s.ROI.Fingerprint(), *result)
	if err = ctx.History.Record(context.Background(), record); err != nil {
		util.LogSimpleErr(&ctx, "Could not record export", err)
	}
	util.LogAudit(&ctx, util.LogAuditInput{Actor: s.ID, Action: "export", Actee: result.Date,
		Message: result.Message, Severity: severityOf(result.Status)})
	util.WriteJSON(w, http.StatusOK, result)
}

func severityOf(status model.ExportStatus) util.Severity {
	switch status {
	case model.ExportSucceeded:
		return util.INFO
	case model.ExportOversized:
		return util.ALERT
	}
	return util.ERROR
}

// ExportsHandler is a handler for GET /exports, the session's export history
type ExportsHandler struct {
	Context Context
}

func (h ExportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.Context
	s, err := ctx.loadSession(w, r)
	if err != nil {
		ctx.fail(w, r, "Could not load session", err)
		return
	}
	records, err := ctx.History.List(r.Context(), s.ID)
	if err != nil {
		ctx.fail(w, r, "Could not list exports", err)
		return
	}
	util.WriteJSON(w, http.StatusOK, records)
}

// RegisterRoutes mounts the dashboard on router
func RegisterRoutes(router *mux.Router, ctx Context) {
	router.Handle("/", IndexHandler{}).Methods(http.MethodGet)
	router.HandleFunc("/health", func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte("OK"))
	})
	router.Handle("/roi", ROIHandler{Context: ctx}).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/scenes", ScenesHandler{Context: ctx}).Methods(http.MethodGet)
	router.Handle("/selection", SelectionHandler{Context: ctx}).Methods(http.MethodPut)
	router.Handle("/layers", LayersHandler{Context: ctx}).Methods(http.MethodGet)
	router.Handle("/timeseries", TimeSeriesHandler{Context: ctx}).Methods(http.MethodGet)
	router.Handle("/export", ExportHandler{Context: ctx}).Methods(http.MethodPost)
	router.Handle("/exports", ExportsHandler{Context: ctx}).Methods(http.MethodGet)
}
