package api

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"market-genome/internal/domain/model"
)

type analyzeRequest struct {
	BrandInput string `json:"brand_input"`
	InputType  string `json:"input_type"`
	Email      string `json:"email"`
}

type jobView struct {
	JobID           string     `json:"job_id"`
	Status          string     `json:"status"`
	Message         string     `json:"message"`
	BrandInput      string     `json:"brand_input"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	PDFURL          *string    `json:"pdf_url"`
	EmailSent       bool       `json:"email_sent"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	FromChat        bool       `json:"from_chat,omitempty"`
	ChatSessionID   string     `json:"chat_session_id,omitempty"`
	StagesCompleted []string   `json:"stages_completed"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

func toJobView(j *model.GenomeJob) jobView {
	v := jobView{
		JobID:           j.ID,
		Status:          string(j.Status),
		Message:         j.StageLabel,
		BrandInput:      j.Input.Brand,
		CurrentStage:    j.CurrentStage,
		EmailSent:       j.DeliverySucceeded,
		FailureReason:   j.FailureReason,
		FromChat:        j.Input.ChatSessionID != "",
		ChatSessionID:   j.Input.ChatSessionID,
		StagesCompleted: append([]string{}, j.StageOrder...),
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}
	if j.Artifact != nil {
		u := j.Artifact.URL
		if u == "" {
			u = "/api/download/report/" + j.ID
		}
		v.PDFURL = &u
	}
	return v
}

// analyze accepts a form post as well as JSON.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && err != http.ErrNotMultipart {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req = analyzeRequest{
			BrandInput: r.FormValue("brand_input"),
			InputType:  r.FormValue("input_type"),
			Email:      r.FormValue("email"),
		}
	default:
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	job, err := s.genome.Submit(r.Context(), model.BrandInput{
		Brand:         req.BrandInput,
		InputType:     model.InputType(strings.ToLower(strings.TrimSpace(req.InputType))),
		DeliveryEmail: req.Email,
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":         job.ID,
		"status":         job.Status,
		"message":        "Marketing Genome analysis started. Report will be emailed when complete.",
		"estimated_time": "3-5 minutes",
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	job, err := s.genome.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	jobs, err := s.genome.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	type row struct {
		JobID     string    `json:"job_id"`
		Status    string    `json:"status"`
		Brand     string    `json:"brand"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]row, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, row{JobID: j.ID, Status: string(j.Status), Brand: j.Input.Brand, CreatedAt: j.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_jobs": len(out), "jobs": out})
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, err := s.genome.Status(r.Context(), id); err != nil {
		s.fail(w, r, err, "Job not found")
		return
	}
	art, body, err := s.genome.Report(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "Report not found")
		return
	}
	ct := art.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="marketing_genome_%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

