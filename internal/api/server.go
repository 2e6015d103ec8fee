package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audience-andy/server/internal/agent/model"
	"github.com/audience-andy/server/internal/agent/tools"
	errx "github.com/audience-andy/server/internal/core/error"
	logx "github.com/audience-andy/server/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Workflow is the conversation the API drives.
type Workflow interface {
	Start(ctx context.Context) (string, error)
	ProcessMessage(ctx context.Context, text string) (string, error)
	Status() model.Status
	Reset()
}

// ToolInspector reports tool initialization for diagnostics.
type ToolInspector interface {
	InitializationStatus() map[string]string
	Descriptors() []tools.Descriptor
}

// Server serializes every workflow call; the orchestrator is single-threaded.
type Server struct {
	mu       sync.Mutex
	workflow Workflow
	tools    ToolInspector
}

func NewServer(workflow Workflow, tools ToolInspector) *Server {
	return &Server{workflow: workflow, tools: tools}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/start", s.start)
		r.Post("/message", s.message)
		r.Get("/status", s.status)
		r.Post("/reset", s.reset)
		r.Get("/tools", s.listTools)
	})
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger writes one structured line per request through logx.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logx.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}

func shouldSuppressRequestLog(method, path string) bool {
	return method == http.MethodGet && (path == "/health" || path == "/metrics")
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type resetResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type toolsResponse struct {
	Initialization map[string]string  `json:"initialization"`
	Tools          []tools.Descriptor `json:"tools"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, err := s.workflow.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, messageResponse{Message: reply})
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errx.New(err, http.StatusBadRequest, "Invalid request body"))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, errx.New(err, http.StatusBadRequest, "Invalid request body"))
			return
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, errx.New(errx.ErrEmptyMessage, http.StatusBadRequest, errx.EmptyMessageMessage))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	reply, err := s.workflow.ProcessMessage(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, messageResponse{Message: reply})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.workflow.Status())
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflow.Reset()
	writeJSON(w, resetResponse{Status: "success", Message: "Workflow reset successfully"})
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	if s.tools == nil {
		writeError(w, errx.Unavailable("registry", "not configured"))
		return
	}
	writeJSON(w, toolsResponse{
		Initialization: s.tools.InitializationStatus(),
		Tools:          s.tools.Descriptors(),
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

// writeError maps err onto a status code and a user safe detail.
func writeError(w http.ResponseWriter, err error) {
	status, detail := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logx.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSONStatus(w, errorResponse{Detail: detail}, status)
}
