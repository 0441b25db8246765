package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sorafy/sorafy-agent/internal/app/controller"
	"github.com/sorafy/sorafy-agent/internal/app/repository"
	"github.com/sorafy/sorafy-agent/internal/domain"
	"github.com/sorafy/sorafy-agent/internal/observability"
)

// Server dispatches UI intents into the repository and streaming controller.
// Send, regenerate and edit block until the exchange completes; partial
// content is observable through GET while streaming.
type Server struct {
	repo     *repository.Repository
	ctrl     *controller.Controller
	analyzer domain.ImageAnalyzer
}

func NewServer(repo *repository.Repository, ctrl *controller.Controller, analyzer domain.ImageAnalyzer) http.Handler {
	s := &Server{repo: repo, ctrl: ctrl, analyzer: analyzer}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /sessions          → GET: list, POST: create
	// /sessions/export   → GET: export bundle
	// /sessions/import   → POST: import bundle
	// /sessions/{id}...  → per-session operations
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	mux.HandleFunc("/current-session", s.handleCurrentSession)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/analyze-image", s.handleAnalyzeImage)

	return chainMiddlewares(mux, withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	InitialSettings domain.InitialSettings `json:"initialSettings"`
}

type sessionResponse struct {
	Session   *domain.Session `json:"session"`
	Streaming bool            `json:"streaming"`
}

type listSessionsResponse struct {
	Sessions  []*domain.Session `json:"sessions"`
	CurrentID domain.SessionID  `json:"currentSessionId,omitempty"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type selectSessionRequest struct {
	ID domain.SessionID `json:"id"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

type analyzeImageRequest struct {
	Image domain.ImageFile `json:"image"`
}

type analyzeImageResponse struct {
	Description string `json:"description"`
}

// ─────────────────────────────────────────────
// Routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, listSessionsResponse{
			Sessions:  s.repo.ListSessions(),
			CurrentID: s.repo.CurrentSessionID(),
		})
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	switch parts[0] {
	case "export":
		s.handleExport(w, r)
		return
	case "import":
		s.handleImport(w, r)
		return
	}

	id := domain.SessionID(parts[0])

	if len(parts) == 1 {
		s.handleSession(w, r, id)
		return
	}

	switch parts[1] {
	case "messages":
		if len(parts) == 2 {
			s.handleMessages(w, r, id)
		} else {
			s.handleMessage(w, r, id, domain.MessageID(parts[2]))
		}
	case "regenerate":
		s.handleRegenerate(w, r, id)
	case "envelope":
		s.handleEnvelope(w, r, id)
	case "suggest-title":
		s.handleSuggestTitle(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	session, err := s.repo.CreateSession(req.InitialSettings)
	if err != nil {
		internalError(w, err)
		return
	}

	// The first exchange kicks off in the background; the client observes
	// the placeholder filling in through GET.
	go func() {
		if err := s.ctrl.Kickoff(session.ID); err != nil {
			observability.Logger().Warn("session kickoff failed", "session_id", session.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, sessionResponse{Session: session})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	switch r.Method {
	case http.MethodGet:
		session, err := s.repo.GetSession(id)
		if err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Session: session, Streaming: s.ctrl.IsStreaming(id)})
	case http.MethodDelete:
		s.ctrl.CancelExchange(id)
		s.repo.DeleteSession(id)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch:
		var req renameSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
			badRequest(w, "title is required")
			return
		}
		s.repo.RenameSession(id, req.Title)
		s.writeSession(w, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if err := s.ctrl.Send(id, req.Text); err != nil {
		writeControllerError(w, err)
		return
	}
	s.writeSession(w, id)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, id domain.SessionID, messageID domain.MessageID) {
	switch r.Method {
	case http.MethodPatch:
		var req editMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if err := s.ctrl.EditMessage(id, messageID, req.Content); err != nil {
			writeControllerError(w, err)
			return
		}
		s.writeSession(w, id)
	case http.MethodDelete:
		if err := s.ctrl.DeleteMessage(id, messageID); err != nil {
			writeControllerError(w, err)
			return
		}
		s.writeSession(w, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.ctrl.Regenerate(id); err != nil {
		writeControllerError(w, err)
		return
	}
	s.writeSession(w, id)
}

func (s *Server) handleEnvelope(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}

	var settings domain.InitialSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := s.ctrl.EditEnvelope(id, settings); err != nil {
		writeControllerError(w, err)
		return
	}
	s.writeSession(w, id)
}

func (s *Server) handleSuggestTitle(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.repo.AutoRenameSession(r.Context(), id)
	s.writeSession(w, id)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	var ids []domain.SessionID
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			ids = append(ids, domain.SessionID(id))
		}
	}

	date := time.Now().Format("2006-01-02")
	w.Header().Set("Content-Disposition", `attachment; filename="sorafy_sessions_export_`+date+`.json"`)
	writeJSON(w, http.StatusOK, s.repo.ExportSessions(ids))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var bundle repository.ExportBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	count, err := s.repo.ImportSessions(&bundle)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: count})
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, selectSessionRequest{ID: s.repo.CurrentSessionID()})
	case http.MethodPut:
		var req selectSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if req.ID == "" {
			s.repo.DeselectSession()
		} else {
			s.repo.SelectSession(req.ID)
		}
		writeJSON(w, http.StatusOK, selectSessionRequest{ID: s.repo.CurrentSessionID()})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.repo.Settings())
	case http.MethodPut:
		var settings domain.AppSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		s.repo.UpdateSettings(settings)
		writeJSON(w, http.StatusOK, s.repo.Settings())
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req analyzeImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	description, err := s.analyzer.AnalyzeImage(r.Context(), req.Image, s.repo.Settings().Language)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeImageResponse{Description: description})
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func (s *Server) writeSession(w http.ResponseWriter, id domain.SessionID) {
	session, err := s.repo.GetSession(id)
	if err != nil {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, Streaming: s.ctrl.IsStreaming(id)})
}

func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrExchangeInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, controller.ErrMessageNotFound), errors.Is(err, repository.ErrSessionNotFound):
		notFound(w)
	case errors.Is(err, controller.ErrNothingToRegenerate), errors.Is(err, controller.ErrSeedMessage):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		internalError(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.Logger().Error("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func internalError(w http.ResponseWriter, err error) {
	observability.Logger().Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
