package server

import (
	"net/http"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/internal/daemon/engine"
)

// InputRequest is the body of POST /api/sessions/{id}/input.
type InputRequest struct {
	Text string `json:"text"`
}

// WriteRequest is the body of POST /api/sessions/{id}/write. Data is sent
// to the terminal unchanged.
type WriteRequest struct {
	Data []byte `json:"data"`
}

// ResizeRequest is the body of POST /api/sessions/{id}/resize.
type ResizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// RevertRequest is the body of POST /api/sessions/{id}/revert.
type RevertRequest struct {
	CleanUntracked bool `json:"clean_untracked"`
}

// InterruptResponse reports whether the interrupt key was sent.
type InterruptResponse struct {
	Interrupted bool `json:"interrupted"`
}

// WorkspaceRequest is the body of POST /api/workspaces.
type WorkspaceRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) bool {
	if s.sessions == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeDaemonUnavailable, "engine not initialized"))
		return false
	}
	return true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	var req engine.CreateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	if err := s.sessions.Destroy(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOutput returns the raw terminal output of a session.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	out, err := s.sessions.Output(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleSendInput(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	var req InputRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Text == "" {
		s.writeError(w, r, errors.InvalidInput("text cannot be empty"))
		return
	}
	if err := s.sessions.SendInput(r.PathValue("id"), req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	var req WriteRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessions.Write(r.PathValue("id"), req.Data); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	var req ResizeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessions.Resize(r.PathValue("id"), req.Cols, req.Rows); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	ok, err := s.sessions.Interrupt(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InterruptResponse{Interrupted: ok})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	sess, err := s.sessions.Disconnect(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	sess, err := s.sessions.Reconnect(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleReconnectAll runs the reconnection queue and returns its report.
func (s *Server) handleReconnectAll(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.ReconnectAll(r.Context()))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	sess, err := s.sessions.Archive(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	sess, err := s.sessions.Restore(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteArchived(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	if err := s.sessions.DeleteArchived(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRevert always answers 200 once the session exists; a refused or
// failed revert is reported in the result body.
func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	var req RevertRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.sessions.Revert(r.Context(), r.PathValue("id"), req.CleanUntracked)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	if s.workspaces == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeDaemonUnavailable, "workspace registry not initialized"))
		return
	}
	list, err := s.workspaces.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.workspaces == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeDaemonUnavailable, "workspace registry not initialized"))
		return
	}
	var req WorkspaceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := s.workspaces.Add(req.ID, req.Path, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.WithField("workspace", ws.ID).WithField("path", ws.Path).Info("Workspace registered")
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleRemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.workspaces == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeDaemonUnavailable, "workspace registry not initialized"))
		return
	}
	if err := s.workspaces.Remove(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
