package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/modforge/moduled/internal/agents"
	"github.com/modforge/moduled/internal/dispatch"
	"github.com/modforge/moduled/internal/idgen"
	"github.com/modforge/moduled/internal/ledger"
	"github.com/modforge/moduled/internal/lifecycle"
	"github.com/modforge/moduled/internal/state"
)

type Server struct {
	Machine   *lifecycle.Machine
	Ledger    *ledger.Ledger
	Loop      *dispatch.Loop
	Store     *state.Store
	StartedAt time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/modules", s.handleModules)
	mux.HandleFunc("/api/modules/", s.handleModuleItem)
	mux.HandleFunc("/api/stream/ws", s.handleStreamWS)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 100)
	statuses, err := s.Store.ListModuleStatuses(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if statuses == nil {
		statuses = []state.ModuleStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": statuses})
}

// handleModuleItem routes /api/modules/{id}/{op}[/...].
func (s *Server) handleModuleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/modules/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errNotFound("module operation"))
		return
	}
	moduleID := parts[0]
	if err := idgen.ValidateModuleID(moduleID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "status":
		s.handleStatus(w, r, moduleID)
	case len(parts) == 2 && parts[1] == "promote":
		s.handlePromote(w, r, moduleID)
	case len(parts) == 2 && parts[1] == "run":
		s.handleRun(w, r, moduleID)
	case len(parts) == 2 && parts[1] == "history":
		s.handleHistory(w, r, moduleID)
	case len(parts) == 4 && parts[1] == "workflows" && parts[3] == "complete":
		s.handleWorkflowComplete(w, r, moduleID, parts[2])
	case len(parts) == 3 && parts[1] == "workflows":
		s.handleWorkflowStatus(w, r, moduleID, parts[2])
	default:
		writeError(w, http.StatusNotFound, errNotFound("module operation"))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, moduleID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	status, err := s.Machine.GetStatus(r.Context(), moduleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request, moduleID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.Machine.Promote(r.Context(), moduleID, lifecycle.Stage(req.Target))
	if lifecycle.IsInvalidTransition(err) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status, err := s.Machine.GetStatus(r.Context(), moduleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, moduleID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		Profile    string `json:"profile"`
		SessionID  string `json:"session_id,omitempty"`
		BundlePath string `json:"bundle_path,omitempty"`
		Input      string `json:"input"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Profile) == "" {
		writeError(w, http.StatusBadRequest, errRequired("profile"))
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, errRequired("input"))
		return
	}

	history, err := s.Loop.Run(r.Context(), dispatch.RunInput{
		ModuleID:   moduleID,
		Profile:    req.Profile,
		SessionID:  req.SessionID,
		BundlePath: req.BundlePath,
		Input:      req.Input,
	})
	if err != nil {
		if _, ok := agents.AsLoaderError(err); ok {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, moduleID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	section := r.URL.Query().Get("section")
	if strings.TrimSpace(section) == "" {
		writeError(w, http.StatusBadRequest, errRequired("section"))
		return
	}
	sessionID := r.URL.Query().Get("session")

	messages, err := s.Ledger.Read(r.Context(), moduleID, section, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if messages == nil {
		messages = []ledger.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleWorkflowComplete(w http.ResponseWriter, r *http.Request, moduleID, workflow string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := s.Machine.MarkWorkflowComplete(r.Context(), moduleID, workflow); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"module_id": moduleID, "workflow": workflow, "completed": true})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request, moduleID, workflow string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	completed, err := s.Machine.IsWorkflowComplete(r.Context(), moduleID, workflow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"module_id": moduleID, "workflow": workflow, "completed": completed})
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

type notFoundError struct {
	msg string
}

func (e notFoundError) Error() string { return e.msg }

func errNotFound(target string) error {
	return notFoundError{msg: target + " not found"}
}

type requiredError struct {
	field string
}

func (e requiredError) Error() string { return e.field + " is required" }

func errRequired(field string) error {
	return requiredError{field: field}
}
