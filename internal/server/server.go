// Package server implements the chatrelay HTTP front end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/casefile-ai/chatrelay/internal/chat"
	"github.com/casefile-ai/chatrelay/internal/config"
	"github.com/casefile-ai/chatrelay/internal/document"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server routes HTTP requests into the chat pipeline.
type Server struct {
	orchestrator *chat.Orchestrator
	store        *chat.Store
	documents    *document.Client
	rateLimiter  *RateLimiter
	server       *http.Server
	logger       zerolog.Logger
}

// New creates the HTTP server. documents may be nil when no document API is
// configured; the /document endpoint then reports it as unavailable.
func New(cfg *config.Config, orchestrator *chat.Orchestrator, store *chat.Store, documents *document.Client, logger zerolog.Logger) *Server {
	s := &Server{
		orchestrator: orchestrator,
		store:        store,
		documents:    documents,
		rateLimiter:  NewRateLimiter(cfg.RateLimit, logger),
		logger:       logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/chat", s.handleChat).Methods("POST")
	router.HandleFunc("/conversations", s.handleConversations).Methods("GET")
	router.HandleFunc("/document", s.handleDocument).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	var handler http.Handler = router
	handler = s.rateLimiter.Middleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  1 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  1 * time.Minute,
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("chatrelay listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the configured handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type chatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Files          []string `json:"files,omitempty"`
}

type chatResponse struct {
	Response           string                   `json:"response"`
	ConversationID     string                   `json:"conversation_id"`
	InputTokens        int                      `json:"input_tokens"`
	OutputTokens       int                      `json:"output_tokens"`
	DocumentReferences []chat.DocumentReference `json:"document_references"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	content := req.Message
	if len(req.Files) > 0 {
		var docs []document.Document
		for _, path := range req.Files {
			doc, err := document.LoadAsText(path)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("skipping unloadable file")
				continue
			}
			docs = append(docs, doc)
		}
		content = document.ComposePrompt(req.Message, docs)
	}

	result, err := s.orchestrator.HandleTurn(r.Context(), req.ConversationID, content)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	s.respondTurn(w, result)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	turns := []chat.Turn{}
	if id != "" {
		turns = s.store.Snapshot(id)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"turns":           turns,
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		s.respondError(w, http.StatusServiceUnavailable, fmt.Errorf("document api not configured"))
		return
	}

	q := r.URL.Query()
	documentID := q.Get("document_id")
	versionID := q.Get("version_id")
	if documentID == "" || versionID == "" {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("document_id and version_id are required"))
		return
	}

	doc, err := s.documents.FetchVersionText(r.Context(), documentID, versionID)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrNotFound):
			s.respondError(w, http.StatusNotFound, err)
		case errors.Is(err, document.ErrUnauthorized):
			s.respondError(w, http.StatusUnauthorized, err)
		case errors.Is(err, document.ErrForbidden):
			s.respondError(w, http.StatusForbidden, err)
		default:
			s.respondError(w, http.StatusBadGateway, err)
		}
		return
	}

	content := document.ComposePrompt("Summarize the key points of this document.", []document.Document{doc})

	result, err := s.orchestrator.HandleTurn(r.Context(), q.Get("conversation_id"), content)
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	s.respondTurn(w, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
	})
}

func (s *Server) respondTurn(w http.ResponseWriter, result *chat.TurnResult) {
	refs := result.References
	if refs == nil {
		refs = []chat.DocumentReference{}
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:           result.ReplyText,
		ConversationID:     result.ConversationID,
		InputTokens:        result.InputTokens,
		OutputTokens:       result.OutputTokens,
		DocumentReferences: refs,
	})
}

// respondTurnError maps the gateway error taxonomy onto HTTP statuses. The
// conversation has already been rolled back; retrying the whole turn is safe.
func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrRateLimited):
		s.respondError(w, http.StatusTooManyRequests, err)
	default:
		s.respondError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": err.Error(),
			"code":    fmt.Sprintf("%d", status),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
