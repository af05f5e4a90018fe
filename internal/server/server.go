// Package server exposes the orchestration engine over HTTP: stateless
// ask and stream endpoints plus catalog and status introspection. The
// API is stateless by design; conversation history travels in the
// request body.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unillm/unillm"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Server serves the HTTP API for one client.
type Server struct {
	client *unillm.Client
	http   *http.Server
}

// New creates a server bound to addr.
func New(client *unillm.Client, addr string) *Server {
	s := &Server{client: client}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/stream", s.handleStream)
		r.Get("/models", s.handleModels)
		r.Get("/status", s.handleStatus)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route tree, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logger := logging.Component("server")
	logger.Info().Str("addr", s.http.Addr).Msg("listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// askRequest is the wire form of one orchestrated request.
type askRequest struct {
	Prompt      string          `json:"prompt"`
	Messages    []types.Message `json:"messages,omitempty"`
	Model       string          `json:"model,omitempty"`
	Backend     string          `json:"backend,omitempty"`
	System      string          `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"maxTokens,omitempty"`
	Tools       []string        `json:"tools,omitempty"`
}

func (a *askRequest) toRequest() *types.Request {
	return &types.Request{
		Prompt:      a.Prompt,
		Messages:    a.Messages,
		Model:       a.Model,
		Backend:     a.Backend,
		System:      a.System,
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
		Tools:       a.Tools,
	}
}

func decodeAsk(w http.ResponseWriter, r *http.Request) (*askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "prompt or messages required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	resp, err := s.client.AskRequest(r.Context(), req.toRequest())
	if err != nil {
		writeAIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream serves the request as server-sent events: "delta" events
// carry content increments, one final "done" event carries the aggregate
// response, and failures arrive as an "error" event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported by connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := s.client.StreamRequest(r.Context(), req.toRequest())
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeEvent(w, flusher, "error", errorBody(err))
			return
		}
		writeEvent(w, flusher, "delta", map[string]string{"content": chunk.Content})
	}

	final, err := stream.Final()
	if err != nil {
		writeEvent(w, flusher, "error", errorBody(err))
		return
	}
	writeEvent(w, flusher, "done", final)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.client.Models(),
		"aliases": s.client.Aliases(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"backends": s.client.Status(r.Context()),
		"tools":    s.client.Tools(),
	})
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorBody(err error) errorResponse {
	return errorResponse{Error: errorDetail{
		Type:    string(aierrors.Categorize(err)),
		Message: err.Error(),
	}}
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Type: typ, Message: msg}})
}

// writeAIError maps the error taxonomy onto HTTP status codes.
func writeAIError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch aierrors.Categorize(err) {
	case aierrors.CategoryConfig:
		status = http.StatusBadRequest
	case aierrors.CategoryCapability:
		status = http.StatusUnprocessableEntity
	case aierrors.CategoryUnavailable, aierrors.CategoryAllFailed:
		status = http.StatusServiceUnavailable
	case aierrors.CategoryTimeout:
		status = http.StatusGatewayTimeout
	case aierrors.CategoryAuthorization:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody(err))
}

// requestLogger logs one line per request in the shared logging style.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := logging.Component("server")
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
