package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/api"
	"github.com/relaypanel/go-relay-backend/internal/certbot"
	"github.com/relaypanel/go-relay-backend/internal/endpoint"
	"github.com/relaypanel/go-relay-backend/internal/proxy"
	"github.com/relaypanel/go-relay-backend/internal/storage"
	"github.com/relaypanel/go-relay-backend/internal/storage/memory"
	"github.com/relaypanel/go-relay-backend/internal/supervisor"
	"github.com/relaypanel/go-relay-backend/pkg/config"
	"github.com/relaypanel/go-relay-backend/pkg/middleware"
)

// TestHarness provides a complete test environment with an HTTP server,
// a wired supervisor, and helper methods for making API requests.
type TestHarness struct {
	T          *testing.T
	Server     *httptest.Server
	Config     *config.Config
	Router     *gin.Engine
	Storage    storage.Store
	Supervisor *supervisor.Supervisor
	Logger     *zap.Logger

	// Client is a pre-configured HTTP client for making requests
	Client *http.Client

	// BaseURL is the URL of the test server
	BaseURL string
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithAdminToken enables bearer authentication on the management API
func WithAdminToken(token string) TestHarnessOption {
	return func(h *TestHarness) {
		h.Config.Server.AdminToken = token
	}
}

// NewTestHarness creates a new test harness with a running test server
func NewTestHarness(t *testing.T, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()

	h := &TestHarness{
		T:      t,
		Logger: logger,
		Client: &http.Client{},
		Config: &config.Config{
			Endpoints: config.EndpointsConfig{
				Host:      "127.0.0.1",
				BasePort:  freePort(t) - 1,
				LogBuffer: 100,
			},
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
			},
		},
	}

	// Apply options
	for _, opt := range opts {
		opt(h)
	}

	h.Storage = memory.NewStore()

	recorder := supervisor.NewRecorder(h.Storage, logger)
	prox := proxy.NewManager(config.ProxyConfig{Enabled: false}, logger)
	cb := certbot.NewService(config.CertbotConfig{Enabled: false}, logger)
	h.Supervisor = supervisor.New(h.Storage, prox, recorder, endpoint.Options{
		Host:      h.Config.Endpoints.Host,
		LogBuffer: h.Config.Endpoints.LogBuffer,
	}, logger)

	// Mirrors the main server setup
	h.Router = gin.New()
	h.Router.Use(gin.Recovery())
	h.Router.Use(middleware.Logger(logger))
	h.Router.Use(cors.New(cors.Config{
		AllowOrigins: h.Config.CORS.AllowedOrigins,
		AllowMethods: h.Config.CORS.AllowedMethods,
		AllowHeaders: h.Config.CORS.AllowedHeaders,
		MaxAge:       time.Duration(h.Config.CORS.MaxAge) * time.Second,
	}))
	if h.Config.Server.AdminToken != "" {
		h.Router.Use(middleware.AdminAuthMiddleware(h.Config.Server.AdminToken, logger))
	}
	api.NewHandlers(h.Supervisor, h.Storage, prox, cb, h.Config, logger).RegisterRoutes(h.Router)

	h.Server = httptest.NewServer(h.Router)
	h.BaseURL = h.Server.URL

	t.Cleanup(func() {
		h.Server.Close()
		h.Supervisor.Shutdown()
		recorder.Close()
	})

	return h
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// Request makes an HTTP request to the test server
func (h *TestHarness) Request(method, path string, body interface{}) *Response {
	h.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.Config.Server.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.Config.Server.AdminToken)
	}

	return h.Do(req)
}

// Do executes an HTTP request and returns a Response wrapper
func (h *TestHarness) Do(req *http.Request) *Response {
	h.T.Helper()

	resp, err := h.Client.Do(req)
	if err != nil {
		h.T.Fatalf("Request failed: %v", err)
	}

	return &Response{
		T:        h.T,
		Response: resp,
	}
}

// GET makes a GET request
func (h *TestHarness) GET(path string) *Response {
	return h.Request(http.MethodGet, path, nil)
}

// POST makes a POST request with a JSON body
func (h *TestHarness) POST(path string, body interface{}) *Response {
	return h.Request(http.MethodPost, path, body)
}

// DELETE makes a DELETE request
func (h *TestHarness) DELETE(path string) *Response {
	return h.Request(http.MethodDelete, path, nil)
}

// Response wraps an HTTP response with assertion helpers
type Response struct {
	T        *testing.T
	Response *http.Response
	body     []byte
	bodyRead bool
}

// Body returns the response body as bytes
func (r *Response) Body() []byte {
	r.T.Helper()
	if !r.bodyRead {
		var err error
		r.body, err = io.ReadAll(r.Response.Body)
		if err != nil {
			r.T.Fatalf("Failed to read response body: %v", err)
		}
		r.Response.Body.Close()
		r.bodyRead = true
	}
	return r.body
}

// JSON unmarshals the response body into the given target
func (r *Response) JSON(target interface{}) *Response {
	r.T.Helper()
	if err := json.Unmarshal(r.Body(), target); err != nil {
		r.T.Fatalf("Failed to unmarshal response: %v\nBody: %s", err, string(r.Body()))
	}
	return r
}

// Status asserts the response status code
func (r *Response) Status(expected int) *Response {
	r.T.Helper()
	if r.Response.StatusCode != expected {
		r.T.Errorf("Expected status %d, got %d\nBody: %s", expected, r.Response.StatusCode, string(r.Body()))
	}
	return r
}

// BodyContains asserts the response body contains a substring
func (r *Response) BodyContains(substr string) *Response {
	r.T.Helper()
	if !bytes.Contains(r.Body(), []byte(substr)) {
		r.T.Errorf("Expected body to contain %q\nBody: %s", substr, string(r.Body()))
	}
	return r
}
