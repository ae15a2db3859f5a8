package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/logging"
	"github.com/cordum/playground/core/infra/secrets"
	"github.com/cordum/playground/core/pipeline"
	"github.com/cordum/playground/core/readiness"
	"github.com/cordum/playground/core/session"
	"github.com/cordum/playground/core/transcript"
	"github.com/cordum/playground/sdk/client"
)

type sessionView struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Tool       pipeline.Tool      `json:"tool"`
	ToolName   string             `json:"tool_name"`
	Processing bool               `json:"processing"`
	Config     configsvc.Snapshot `json:"config"`
	Readiness  readiness.Report   `json:"readiness"`
	Transcript []transcript.Entry `json:"transcript"`
}

func viewOf(sess *session.Session) sessionView {
	tool, name := sess.Tool()
	snap := sess.Config()
	return sessionView{
		ID:         sess.ID(),
		CreatedAt:  sess.CreatedAt(),
		Tool:       tool,
		ToolName:   name,
		Processing: sess.Processing(),
		Config:     secrets.RedactSnapshot(snap),
		Readiness:  readiness.Evaluate(snap.Config),
		Transcript: sess.Transcript(),
	}
}

type createSessionRequest struct {
	Config *configsvc.Aggregate `json:"config,omitempty"`
	Tool   string               `json:"tool,omitempty"`
}

type submitRequest struct {
	Input string `json:"input"`
}

type submitImageRequest struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type toolRequest struct {
	Tool string `json:"tool"`
}

type guardValidateRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteHealthTimeout)
	defer cancel()
	remote := "unreachable"
	if h, err := s.remote.Health(ctx); err == nil && h != nil {
		remote = h.Status
	}
	body := map[string]any{
		"status":         "healthy",
		"service":        serviceName,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"sessions":       s.sessions.Len(),
		"remote":         remote,
	}
	if s.bus != nil {
		body["bus"] = map[string]any{"connected": s.bus.IsConnected(), "status": s.bus.Status()}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess := s.sessions.Create()
	if req.Config != nil {
		sess.UpdateConfig(*req.Config)
	}
	if strings.TrimSpace(req.Tool) != "" {
		sess.SetTool(req.Tool)
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.IDs()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var partial configsvc.Aggregate
	if err := decodeJSON(w, r, &partial, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap := sess.UpdateConfig(partial)
	writeJSON(w, http.StatusOK, session.ConfigEvent{Snapshot: secrets.RedactSnapshot(snap), Readiness: readiness.Evaluate(snap.Config)})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Readiness())
}

func (s *Server) handleSetTool(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req toolRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tool := sess.SetTool(req.Tool)
	_, name := sess.Tool()
	writeJSON(w, http.StatusOK, session.ToolEvent{Tool: tool, Name: name})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A submission always lands in the transcript, even if the caller goes away.
	res, err := sess.Submit(context.WithoutCancel(r.Context()), req.Input)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req submitImageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.Data))
	if err != nil {
		http.Error(w, "image data must be base64", http.StatusBadRequest)
		return
	}
	res, err := sess.SubmitImage(context.WithoutCancel(r.Context()), pipeline.Image{
		Data:     data,
		MimeType: req.MimeType,
		Filename: req.Filename,
	})
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleValidateGuard runs the session guard over text without touching the
// transcript.
func (s *Server) handleValidateGuard(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req guardValidateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	cfg := sess.Config().Config
	if !readiness.HasPrerequisites(cfg, readiness.FeatureGuard) {
		http.Error(w, "guard has no validators", http.StatusBadRequest)
		return
	}
	payload := client.GuardPayloadFrom(*cfg.Guard)
	res, err := s.remote.ValidateGuard(r.Context(), client.GuardValidateRequest{
		Text:       req.Text,
		Validators: payload.Validators,
		NumReasks:  payload.NumReasks,
		Name:       payload.Name,
	})
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	entries := sess.Transcript()
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		entries = sess.TranscriptSince(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleValidators(w http.ResponseWriter, r *http.Request) {
	validators, err := s.remote.ListValidators(r.Context())
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validators": validators})
}

func (s *Server) handleMonitorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.remote.FetchMonitorStats(r.Context())
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVisualization(w http.ResponseWriter, r *http.Request) {
	data, err := s.remote.FetchVisualizationData(r.Context())
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleLLMDefaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := s.remote.FetchLLMDefaults(r.Context())
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defaults)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("invalid json body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("api", "encode response", "error", err)
	}
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pipeline.ErrEmptyInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pipeline.ErrClosed):
		http.Error(w, "session closed", http.StatusGone)
	default:
		logging.Error("api", "submit failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeRemoteError keeps client errors from the remote service and maps
// everything else to a bad gateway.
func writeRemoteError(w http.ResponseWriter, err error) {
	status := client.StatusCode(err)
	if status < 400 || status >= 500 {
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
