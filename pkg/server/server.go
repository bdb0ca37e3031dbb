// Package server exposes a document cache as an HTTP caching proxy in front
// of an upstream GraphQL endpoint.
//
// Endpoints:
//
//	POST /graphql     - GraphQL requests; query operations are served from
//	                    the cache when a complete document is stored,
//	                    otherwise forwarded upstream and written back.
//	                    Mutations and subscriptions always pass through.
//	GET  /playground  - GraphQL playground pointed at /graphql.
//	GET  /snapshot    - full cache state as a serializable snapshot.
//	PUT  /snapshot    - replace cache state from a snapshot (hydration).
//	GET  /healthz     - liveness plus cache hit/miss counters.
//
// Responses served from the cache carry "X-Cache: HIT"; forwarded ones
// carry "X-Cache: MISS" or "X-Cache: BYPASS".
//
// The cache itself is single-threaded by contract, so the server serializes
// every cache access behind one mutex; the proxy round trip to the upstream
// happens outside it.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/orneryd/doccache/pkg/canonical"
	"github.com/orneryd/doccache/pkg/doccache"
)

// Errors for server construction and request handling.
var (
	ErrNoUpstream       = errors.New("server: upstream URL is required")
	ErrAlreadyStarted   = errors.New("server: already started")
	ErrUnknownOperation = errors.New("server: request names no operation in the document")
)

// Config holds HTTP proxy configuration. All fields have sensible defaults
// via DefaultConfig except UpstreamURL, which is required.
type Config struct {
	// Address to bind to (default: "127.0.0.1").
	Address string
	// Port to listen on (default: 8080). 0 picks an ephemeral port.
	Port int
	// UpstreamURL is the GraphQL endpoint misses are forwarded to.
	UpstreamURL string
	// UpstreamTimeout bounds the forwarded request (default: 30s).
	UpstreamTimeout time.Duration
	// ReadTimeout for requests.
	ReadTimeout time.Duration
	// WriteTimeout for responses.
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections.
	IdleTimeout time.Duration
	// MaxRequestSize in bytes (default: 10MB).
	MaxRequestSize int64
	// EnablePlayground mounts /playground (default: true).
	EnablePlayground bool
}

// DefaultConfig returns the default proxy configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:          "127.0.0.1",
		Port:             8080,
		UpstreamTimeout:  30 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     60 * time.Second,
		IdleTimeout:      120 * time.Second,
		MaxRequestSize:   10 * 1024 * 1024,
		EnablePlayground: true,
	}
}

// Server is the caching proxy.
type Server struct {
	config *Config
	logger *log.Logger
	client *http.Client

	// mu serializes access to the cache, which provides no locking of its
	// own.
	mu    sync.Mutex
	cache *doccache.DocumentCache

	httpServer *http.Server
	listener   net.Listener
}

// New creates a proxy serving cache in front of cfg.UpstreamURL. A nil cfg
// selects DefaultConfig, which has no upstream and is rejected.
func New(cache *doccache.DocumentCache, cfg *Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.UpstreamURL == "" {
		return nil, ErrNoUpstream
	}
	if _, err := url.Parse(cfg.UpstreamURL); err != nil {
		return nil, fmt.Errorf("server: invalid upstream URL: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 10 * 1024 * 1024
	}

	s := &Server{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.UpstreamTimeout},
		cache:  cache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", s.handleGraphQL)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/healthz", s.handleHealth)
	if cfg.EnablePlayground {
		mux.Handle("/playground", playground.Handler("Document Cache", "/graphql"))
	}

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// Handler returns the proxy's HTTP handler, for embedding in an existing
// server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	if s.listener != nil {
		return ErrAlreadyStarted
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server: serve error: %v", err)
		}
	}()

	s.logger.Printf("server: listening on %s, upstream %s", listener.Addr(), s.config.UpstreamURL)
	return nil
}

// Addr reports the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// graphQLRequest is the standard GraphQL-over-HTTP request body.
type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the subset of the upstream response the proxy
// inspects. Errors are kept raw and relayed untouched.
type graphQLResponse struct {
	Data   any             `json:"data,omitempty"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request too large")
		return
	}

	var req graphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	doc, err := canonical.ParseQuery(req.Query)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	op := selectOperation(doc, req.OperationName)
	if op == nil {
		writeJSONError(w, http.StatusBadRequest, ErrUnknownOperation.Error())
		return
	}

	// Only query operations are cacheable.
	if op.Operation != ast.Query {
		s.forward(w, body, req, doc, false)
		return
	}

	s.mu.Lock()
	diff, err := s.cache.Diff(doc, req.Variables)
	s.mu.Unlock()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if diff.Complete {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, graphQLResponse{Data: diff.Result})
		return
	}

	s.forward(w, body, req, doc, true)
}

// forward relays the request upstream. When cacheable is set and the
// upstream answered without errors, the data payload is written back to the
// cache before responding.
func (s *Server) forward(w http.ResponseWriter, body []byte, req graphQLRequest, doc *ast.QueryDocument, cacheable bool) {
	upstreamReq, err := http.NewRequest(http.MethodPost, s.config.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "building upstream request")
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		s.logger.Printf("server: upstream request failed: %v", err)
		writeJSONError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "reading upstream response")
		return
	}

	mode := "BYPASS"
	if cacheable {
		mode = "MISS"

		var parsed graphQLResponse
		if err := json.Unmarshal(respBody, &parsed); err == nil &&
			resp.StatusCode == http.StatusOK && len(parsed.Errors) == 0 && parsed.Data != nil {
			s.mu.Lock()
			err = s.cache.WriteQuery(doc, req.Variables, parsed.Data)
			s.mu.Unlock()
			if err != nil {
				s.logger.Printf("server: caching upstream result failed: %v", err)
			}
		}
	}

	w.Header().Set("X-Cache", mode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		snap := s.cache.Extract(false)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, snap)

	case http.MethodPut, http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize))
		if err != nil {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
			return
		}

		var snap map[string]any
		if err := json.Unmarshal(body, &snap); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed snapshot")
			return
		}

		s.mu.Lock()
		s.cache.Restore(snap)
		s.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "GET or PUT required")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	s.mu.Lock()
	stats := s.cache.Stats()
	variant := s.cache.Variant()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"variant": variant,
		"stats": map[string]uint64{
			"hits":   stats.Hits,
			"misses": stats.Misses,
			"writes": stats.Writes,
		},
	})
}

// selectOperation resolves the operation a request targets. An unnamed
// request is unambiguous only for single-operation documents.
func selectOperation(doc *ast.QueryDocument, name string) *ast.OperationDefinition {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError emits a GraphQL-style error envelope.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]string{{"message": msg}},
	})
}
