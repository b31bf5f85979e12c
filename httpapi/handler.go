// Package httpapi exposes the pipeline over HTTP: a streaming chat endpoint,
// session CRUD, query and agent-output history, and session export.
package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/store"
)

const defaultListLimit = 100

// Pipeline is the workflow surface the HTTP layer depends on.
type Pipeline interface {
	Run(ctx context.Context, userQuery, sessionID string) (*core.SharedState, error)
	RunStream(ctx context.Context, userQuery, sessionID string) (<-chan core.Event, <-chan error)
}

// ChatMessage is one role-tagged turn of the chat request body.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the POST /api/chat body. The last message's content is the
// query; earlier turns are accepted for client convenience but not replayed.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	SessionID string        `json:"session_id,omitempty"`
}

// Handler serves the research API.
type Handler struct {
	pipeline Pipeline
	store    store.Store
	logger   logging.Logger
}

// HandlerOptions configure the handler.
type HandlerOptions struct {
	Logger logging.Logger
}

// NewHandler constructs the API handler.
func NewHandler(pipeline Pipeline, st store.Store, optFns ...func(o *HandlerOptions)) *Handler {
	opts := HandlerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Handler{pipeline: pipeline, store: st, logger: opts.Logger}
}

// RegisterRoutes registers all API routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	mux.HandleFunc("POST /api/chat", h.handleChat)

	mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", h.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDeleteSession)

	mux.HandleFunc("GET /api/queries", h.handleListQueries)
	mux.HandleFunc("GET /api/queries/{id}/outputs", h.handleQueryOutputs)
	mux.HandleFunc("GET /api/outputs", h.handleListOutputs)

	mux.HandleFunc("GET /api/export/queries", h.handleExportQueries)
	mux.HandleFunc("GET /api/export/outputs", h.handleExportOutputs)
	mux.HandleFunc("GET /api/export/{id}", h.handleExportSession)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "research pipeline is running",
	})
}

// handleHealthz reports process liveness plus store reachability. A degraded
// store does not fail the check: the pipeline runs without persistence.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  storeStatus,
	})
}

// handleChat runs the pipeline for the last user message in the request,
// streaming agent updates and the final answer as server-sent events. The
// stream always ends with a [DONE] sentinel; a fatal pipeline failure is
// reported as a terminal error event after any updates already delivered.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages array is required")
		return
	}
	userMessage := req.Messages[len(req.Messages)-1].Content
	if userMessage == "" {
		writeError(w, http.StatusBadRequest, "no user message provided")
		return
	}

	ctx := r.Context()

	sessionID := req.SessionID
	if sessionID == "" {
		id, err := h.store.CreateSession(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		sessionID = id
	}

	if err := h.store.AppendMessage(ctx, sessionID, "user", userMessage); err != nil {
		h.logger.Warn("failed to append user message", "session_id", sessionID, "error", err)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(ev core.Event) {
		fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
		flusher.Flush()
	}

	eventsCh, errorsCh := h.pipeline.RunStream(ctx, userMessage, sessionID)
	for ev := range eventsCh {
		writeEvent(ev)
	}
	if err := <-errorsCh; err != nil {
		h.logger.Error("pipeline run failed", "session_id", sessionID, "error", err)
		writeEvent(core.NewErrorEvent(err))
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.CreateSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) handleListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.store.ListQueries(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
}

func (h *Handler) handleQueryOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := h.store.AgentOutputsForQuery(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get outputs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}

func (h *Handler) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := h.store.ListAgentOutputs(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list outputs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}

// handleExportSession returns a session transcript as JSON (default) or CSV.
// GET /api/export/{id}?format=csv
func (h *Handler) handleExportSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, session)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=session_%s.csv", id))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"timestamp", "role", "content"})
	for _, msg := range session.Messages {
		_ = cw.Write([]string{msg.Timestamp.Format(time.RFC3339), msg.Role, msg.Content})
	}
	cw.Flush()
}

// handleExportQueries returns the query log as JSON (default) or CSV.
// GET /api/export/queries?format=csv
func (h *Handler) handleExportQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.store.ListQueries(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=queries.csv")

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "timestamp", "session_id", "user_query"})
	for _, q := range queries {
		_ = cw.Write([]string{q.ID, q.Timestamp.Format(time.RFC3339), q.SessionID, q.UserQuery})
	}
	cw.Flush()
}

// handleExportOutputs returns the agent output log as JSON (default) or CSV.
// GET /api/export/outputs?format=csv
func (h *Handler) handleExportOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := h.store.ListAgentOutputs(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list outputs")
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=agent_outputs.csv")

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "timestamp", "query_id", "agent_name", "output"})
	for _, o := range outputs {
		_ = cw.Write([]string{o.ID, o.Timestamp.Format(time.RFC3339), o.QueryID, o.Agent, o.Output})
	}
	cw.Flush()
}

func listLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
