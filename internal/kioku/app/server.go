package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kioku-ai/kioku/common/version"
	"github.com/kioku-ai/kioku/internal/kioku/facts"
	"github.com/kioku-ai/kioku/internal/kioku/ingest"
	"github.com/kioku-ai/kioku/internal/kioku/llm"
	"github.com/kioku-ai/kioku/internal/kioku/session"
	"github.com/kioku-ai/kioku/internal/kioku/store"
)

// maxBodyBytes bounds request bodies; document uploads are the largest
// legitimate payload.
const maxBodyBytes = 4 << 20

// conversationMeta is the slice of the relational store the facade needs for
// conversation metadata: listing, titling, deletion, and the /status count.
type conversationMeta interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]store.ConversationInfo, error)
	SetTitle(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error
}

// Server is the JSON-over-HTTP facade over the session registry, the facts
// service, and the ingestion boundary. It is a boundary shim, not a routing
// framework: a plain ServeMux with handler methods, testable through
// ServeHTTP without a live listener.
type Server struct {
	addr      string
	sessions  *session.Registry
	facts     *facts.Service
	ingest    *ingest.Service
	meta      conversationMeta
	logger    *slog.Logger
	startedAt time.Time

	mux    *http.ServeMux
	server *http.Server
}

// NewServer wires the routes. It does not start listening.
func NewServer(addr string, sessions *session.Registry, factsSvc *facts.Service, ingestSvc *ingest.Service, meta conversationMeta, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		sessions:  sessions,
		facts:     factsSvc,
		ingest:    ingestSvc,
		meta:      meta,
		logger:    logger,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	s.mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	s.mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleMessage)
	s.mux.HandleFunc("POST /api/conversations/{id}/clear", s.handleClear)
	s.mux.HandleFunc("GET /api/conversations/{id}/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/conversations/{id}/settings", s.handlePutSettings)
	s.mux.HandleFunc("POST /api/conversations/{id}/documents", s.handleDocument)
	s.mux.HandleFunc("GET /api/facts", s.handleListFacts)
	s.mux.HandleFunc("POST /api/facts", s.handleAddFact)
	s.mux.HandleFunc("DELETE /api/facts/{id}", s.handleDeleteFact)
	s.mux.HandleFunc("DELETE /api/facts", s.handleDeleteAllFacts)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	return s
}

// ServeHTTP implements http.Handler so tests can drive the full route table
// with httptest.NewRecorder.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	s.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. It blocks until the listener is
// established, so the caller knows the port is open, and shuts down when ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // a turn waits on the generative model
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "err", err)
	}
}

// --- conversation routes ---

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply        string `json:"reply"`
	MessageCount int    `json:"message_count"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reply, count, err := s.sessions.SubmitMessage(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Reply: reply, MessageCount: count})
}

// writeTurnError maps turn failures onto status codes: validation is the
// caller's fault, rate limiting is retryable, anything else is an upstream
// failure.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyConversationID),
		errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrReservedID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrRateLimit):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error("turn failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.ClearConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.sessions.Settings(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	ContextTemplate *string `json:"context_template"`
	InstructMode    *string `json:"instruct_mode"`
	Title           *string `json:"title"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.sessions.SetSettings(r.Context(), r.PathValue("id"), req.ContextTemplate, req.InstructMode); err != nil {
		s.writeTurnError(w, err)
		return
	}
	if req.Title != nil {
		// The title is display metadata, not coordinator state.
		if err := s.meta.SetTitle(r.Context(), r.PathValue("id"), *req.Title); err != nil {
			s.logger.Warn("title update failed", "err", err)
		}
	}
	settings, err := s.sessions.Settings(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	infos, err := s.meta.List(r.Context())
	if err != nil {
		s.logger.Error("conversation list failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []store.ConversationInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleDeleteConversation removes the conversation entirely: history and
// vector memory through the coordinator's clear, then the metadata row.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.ClearConversation(r.Context(), id); err != nil {
		s.writeTurnError(w, err)
		return
	}
	if err := s.meta.DeleteConversation(r.Context(), id); err != nil {
		s.logger.Error("conversation delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDocument ingests a plain-text body. The document name comes from the
// "filename" query parameter, or "source_url" for scraped pages.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	id := r.PathValue("id")
	filename := r.URL.Query().Get("filename")
	sourceURL := r.URL.Query().Get("source_url")

	switch {
	case filename != "":
		err = s.ingest.IngestDocument(r.Context(), id, filename, string(body))
	case sourceURL != "":
		err = s.ingest.IngestPage(r.Context(), id, sourceURL, string(body))
	default:
		writeError(w, http.StatusBadRequest, "filename or source_url query parameter is required")
		return
	}

	switch {
	case errors.Is(err, ingest.ErrEmptyConversationID),
		errors.Is(err, ingest.ErrEmptyContent),
		errors.Is(err, ingest.ErrEmptyName):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("document ingestion failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// --- facts routes ---

type factRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	list, err := s.facts.List(r.Context())
	if err != nil {
		s.logger.Error("facts list failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if list == nil {
		list = []facts.Fact{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	var req factRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fact, err := s.facts.Add(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, facts.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("fact add failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, fact)
}

func (s *Server) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	if err := s.facts.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("fact delete failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteAllFacts(w http.ResponseWriter, r *http.Request) {
	if err := s.facts.DeleteAll(r.Context()); err != nil {
		s.logger.Error("facts delete failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- health routes ---

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSecs    float64   `json:"uptime_seconds"`
	Conversations int       `json:"conversations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conversations := 0
	if s.meta != nil {
		if n, err := s.meta.Count(r.Context()); err == nil {
			conversations = n
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.GitCommit,
		BuildTime:     version.BuildTime,
		StartedAt:     s.startedAt,
		UptimeSecs:    time.Since(s.startedAt).Seconds(),
		Conversations: conversations,
	})
}

// writeJSON serialises v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: failed to encode JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

var _ conversationMeta = (*store.Store)(nil)
