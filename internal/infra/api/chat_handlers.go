package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"market-genome/internal/domain/model"
)

type chatInitRequest struct {
	BrandHandle string `json:"brand_handle"`
}

type chatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatReportRequest struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
}

func (s *Server) chatInit(w http.ResponseWriter, r *http.Request) {
	var req chatInitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.BrandHandle) == "" {
		writeError(w, http.StatusBadRequest, "brand_handle is required")
		return
	}
	start, err := s.chat.Initialize(r.Context(), req.BrandHandle)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      start.Session.ID,
		"brand_handle":    start.Session.BrandHandle,
		"welcome_message": start.Greeting,
		"has_context":     start.HasContext,
	})
}

func (s *Server) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.chat.SendMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.fail(w, r, err, "Session not found. Please initialize chat first.")
		return
	}
	var imageURL *string
	if reply.Attachment != nil {
		imageURL = &reply.Attachment.URL
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   reply.SessionID,
		"response":     reply.Text,
		"action_type":  reply.Action,
		"needs_report": reply.Action == model.ActionReportRequest,
		"image_url":    imageURL,
		"job_id":       reply.JobID,
		"timestamp":    reply.Timestamp,
	})
}

func (s *Server) chatReport(w http.ResponseWriter, r *http.Request) {
	var req chatReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.chat.RequestReport(r.Context(), req.SessionID, req.Email)
	if err != nil {
		s.fail(w, r, err, "Session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":        true,
		"job_id":         job.ID,
		"message":        "Report is being generated for " + job.Input.Brand + " and will be sent to " + job.Input.DeliveryEmail,
		"estimated_time": "3-5 minutes",
	})
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	msgs, err := s.chat.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "Session not found")
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   id,
		"conversation": msgs,
	})
}

func (s *Server) chatEnd(w http.ResponseWriter, r *http.Request) {
	loc, err := s.chat.Terminate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err, "Session not found")
		return
	}
	var export *string
	if loc != "" {
		export = &loc
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Chat session ended",
		"export_path": export,
	})
}

func (s *Server) chatSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.chat.ListActive(r.Context())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if list == nil {
		list = []model.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(list),
		"sessions":       list,
		"as_of":          time.Now().UTC(),
	})
}
