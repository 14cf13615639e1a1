package gee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"net/http"
	"strings"

	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	earthengine "google.golang.org/api/earthengine/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// metersPerDegree is the length of one degree of longitude at the equator
const metersPerDegree = 111319.49079327357

// Expression is a finalized graph ready to be sent for evaluation
type Expression struct {
	expr *earthengine.Expression
}

// Raw returns the REST representation of the expression
func (e *Expression) Raw() *earthengine.Expression {
	return e.expr
}

// Engine evaluates expressions remotely
type Engine interface {
	ComputeValue(ctx context.Context, expr *Expression, out interface{}) error
	CreateMap(ctx context.Context, expr *Expression, vis model.VisParams) (string, error)
	ComputePixels(ctx context.Context, expr *Expression, grid Grid) ([]byte, error)
}

// Config holds what is needed to reach the Earth Engine API
type Config struct {
	Project           string
	BaseURL           string
	TokenJSON         string
	RequestsPerSecond float64
	// HTTPClient replaces OAuth2 when set, e.g. for tests
	HTTPClient *http.Client
}

// ConfigFromEnv reads the Earth Engine settings from the environment
func ConfigFromEnv() Config {
	return Config{
		Project:           util.GetEEProject(),
		BaseURL:           util.GetEEAPIURL(),
		TokenJSON:         util.GetEarthEngineToken(),
		RequestsPerSecond: util.GetEERequestsPerSecond(),
	}
}

// Client is an Engine backed by the Earth Engine REST API
type Client struct {
	project string
	baseURL string
	http    *http.Client
	service *earthengine.Service
	limiter *rate.Limiter
	logCtx  util.LogContext
}

type refreshCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// NewClient authenticates and builds a Client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	logCtx := &util.BasicLogContext{}
	if cfg.Project == "" {
		return nil, errors.New("Earth Engine project is required")
	}
	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	hc, err := authenticatedClient(ctx, cfg)
	if err != nil {
		return nil, util.LogSimpleErr(logCtx, "Failed to authenticate with Earth Engine", err)
	}
	service, err := earthengine.NewService(ctx, option.WithHTTPClient(hc), option.WithEndpoint(baseURL))
	if err != nil {
		return nil, util.LogSimpleErr(logCtx, "Failed to create Earth Engine service", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	util.LogInfo(logCtx, fmt.Sprintf("Earth Engine client ready for project %s at %s", cfg.Project, baseURL))
	return &Client{
		project: cfg.Project,
		baseURL: baseURL,
		http:    hc,
		service: service,
		limiter: rate.NewLimiter(limit, 1),
		logCtx:  logCtx,
	}, nil
}

func authenticatedClient(ctx context.Context, cfg Config) (*http.Client, error) {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient, nil
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, util.HTTPClient())
	scopes := []string{earthengine.EarthengineScope, earthengine.CloudPlatformScope}
	if cfg.TokenJSON == "" {
		return google.DefaultClient(ctx, scopes...)
	}

	var creds refreshCredentials
	if err := json.Unmarshal([]byte(cfg.TokenJSON), &creds); err != nil {
		return nil, fmt.Errorf("Invalid %s: %v", util.EARTHENGINE_TOKEN, err)
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("%s has no refresh_token", util.EARTHENGINE_TOKEN)
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	return conf.Client(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}), nil
}

func (c *Client) parent() string {
	return "projects/" + c.project
}

// ComputeValue evaluates expr and decodes the result into out
func (c *Client) ComputeValue(ctx context.Context, expr *Expression, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.service.Projects.Value.Compute(c.parent(), &earthengine.ComputeValueRequest{
		Expression: expr.Raw(),
	}).Context(ctx).Do()
	if err != nil {
		return c.apiError("value:compute", err)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// CreateMap registers a tiled rendering of expr and returns its XYZ URL template
func (c *Client) CreateMap(ctx context.Context, expr *Expression, vis model.VisParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	options := &earthengine.VisualizationOptions{PaletteColors: vis.Palette}
	for range vis.Bands {
		options.Ranges = append(options.Ranges, &earthengine.DoubleRange{
			Min:             vis.Min,
			Max:             vis.Max,
			ForceSendFields: []string{"Min", "Max"},
		})
	}
	m, err := c.service.Projects.Maps.Create(c.parent(), &earthengine.EarthEngineMap{
		Expression:           expr.Raw(),
		VisualizationOptions: options,
	}).Context(ctx).Do()
	if err != nil {
		return "", c.apiError("maps.create", err)
	}
	return c.baseURL + "v1/" + m.Name + "/tiles/{z}/{x}/{y}", nil
}

// Grid is the pixel grid of an exported image
type Grid struct {
	CRS          string
	OriginLon    float64
	OriginLat    float64
	ScaleDegrees float64
	Width        int64
	Height       int64
}

// GridForBbox covers bbox [minLon, minLat, maxLon, maxLat] at scaleMeters per pixel
func GridForBbox(bbox []float64, scaleMeters float64) Grid {
	scale := scaleMeters / metersPerDegree
	width := int64(math.Ceil((bbox[2] - bbox[0]) / scale))
	height := int64(math.Ceil((bbox[3] - bbox[1]) / scale))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return Grid{
		CRS:          model.ExportCRS,
		OriginLon:    bbox[0],
		OriginLat:    bbox[3],
		ScaleDegrees: scale,
		Width:        width,
		Height:       height,
	}
}

func (grid Grid) pixelGrid() *earthengine.PixelGrid {
	return &earthengine.PixelGrid{
		CrsCode: grid.CRS,
		AffineTransform: &earthengine.AffineTransform{
			ScaleX:          grid.ScaleDegrees,
			ScaleY:          -grid.ScaleDegrees,
			TranslateX:      grid.OriginLon,
			TranslateY:      grid.OriginLat,
			ForceSendFields: []string{"ScaleX", "ScaleY", "TranslateX", "TranslateY"},
		},
		Dimensions: &earthengine.GridDimensions{Width: grid.Width, Height: grid.Height},
	}
}

// ComputePixels renders expr on grid as a GeoTIFF.
// The response is raw file bytes, which the generated client cannot decode.
func (c *Client) ComputePixels(ctx context.Context, expr *Expression, grid Grid) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(&earthengine.ComputePixelsRequest{
		Expression: expr.Raw(),
		FileFormat: "GEO_TIFF",
		Grid:       grid.pixelGrid(),
	})
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "v1/" + c.parent() + "/image:computePixels"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, util.LogSimpleErr(c.logCtx, "Failed to reach Earth Engine", err)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, c.apiError("image:computePixels", &googleapi.Error{
			Code:    resp.StatusCode,
			Message: errorMessage(data),
			Body:    string(data),
		})
	}
	return data, nil
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// apiError surfaces client errors such as invalid collections to the user
// as-is and logs everything else
func (c *Client) apiError(method string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code >= 400 && gErr.Code < 500 {
		util.LogAlert(c.logCtx, fmt.Sprintf("Earth Engine %s rejected request (%d): %s", method, gErr.Code, gErr.Message))
		return util.HTTPErr{Status: gErr.Code, Message: "Earth Engine: " + gErr.Message}
	}
	failure := &util.Error{
		SimpleMsg:  "Earth Engine " + method + " failed",
		LogMsg:     err.Error(),
		HTTPStatus: http.StatusBadGateway,
	}
	return failure.Log(c.logCtx, "")
}
