package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/errclass/internal/config"
	"github.com/knowledge-engine/errclass/internal/engine"
	"github.com/knowledge-engine/errclass/internal/search"
)

// maxBodyBytes bounds request bodies; callstacks can be long.
const maxBodyBytes = 4 << 20

const shutdownTimeout = 10 * time.Second

type Server struct {
	Classifier *engine.Classifier
	Logger     *logrus.Entry
	Router     *http.ServeMux
	Config     config.ServerConfig
	DefaultK   int
}

func NewServer(classifier *engine.Classifier, cfg *config.Config, logger *logrus.Entry) *Server {
	s := &Server{
		Classifier: classifier,
		Logger:     logger.WithField("component", "api"),
		Router:     http.NewServeMux(),
		Config:     cfg.Server,
		DefaultK:   cfg.Search.K,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/v1/predict", s.handlePredict)
	s.Router.HandleFunc("/api/v1/similar", s.handleSimilar)
	s.Router.HandleFunc("/api/v1/status", s.handleStatus)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. In-flight requests get shutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Logger.Infof("Starting API Server on %s", ln.Addr())
	srv := &http.Server{
		Handler:      s.Router,
		ReadTimeout:  s.Config.ReadTimeout,
		WriteTimeout: s.Config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down API Server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Requests and responses

type ErrorResponse struct {
	Error string `json:"error"`
}

type PredictRequest struct {
	Text      string `json:"text"`
	Callstack string `json:"callstack"`
}

type SimilarRequest struct {
	Text      string `json:"text"`
	Callstack string `json:"callstack"`
	K         int    `json:"k"`
}

type SimilarResponse struct {
	Results []search.SearchResult `json:"results"`
}

type StatusResponse struct {
	Loaded bool              `json:"loaded"`
	Model  *engine.ModelInfo `json:"model,omitempty"`
	Time   string            `json:"time"`
}

// Handlers

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonResponse(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}

	var req PredictRequest
	if !decode(w, r, &req) {
		return
	}

	prediction, err := s.Classifier.Predict(req.Text, req.Callstack)
	if err != nil {
		s.fail(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, prediction)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonResponse(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}

	var req SimilarRequest
	if !decode(w, r, &req) {
		return
	}
	if req.K < 0 {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "k must not be negative"})
		return
	}
	if req.K == 0 {
		req.K = s.DefaultK
	}

	results, err := s.Classifier.Similar(req.Text, req.Callstack, req.K)
	if err != nil {
		s.fail(w, err)
		return
	}
	if results == nil {
		results = []search.SearchResult{}
	}

	jsonResponse(w, http.StatusOK, SimilarResponse{Results: results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonResponse(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
		return
	}

	resp := StatusResponse{Time: time.Now().UTC().Format(time.RFC3339)}
	info, err := s.Classifier.Info()
	if err == nil {
		resp.Loaded = true
		resp.Model = info
	}

	jsonResponse(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrModelNotLoaded), errors.Is(err, engine.ErrIndexNotBuilt):
		jsonResponse(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		s.Logger.WithError(err).Error("Request failed")
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode response")
		code = http.StatusInternalServerError
		response = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
