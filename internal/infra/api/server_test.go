package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/infra/api"
	"market-genome/internal/usecase"
)

type fakeGenome struct {
	mu        sync.Mutex
	jobs      map[string]*model.GenomeJob
	submitErr error
	report    []byte
}

func newFakeGenome() *fakeGenome { return &fakeGenome{jobs: map[string]*model.GenomeJob{}} }

func (f *fakeGenome) Submit(_ context.Context, in model.BrandInput) (*model.GenomeJob, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if len(strings.TrimSpace(in.Brand)) < 3 {
		return nil, fmt.Errorf("%w: brand_input too short", domain.ErrInvalidArgument)
	}
	j := model.NewGenomeJob(in, "Collecting brand data from multiple sources...")
	f.mu.Lock()
	f.jobs[j.ID] = j
	f.mu.Unlock()
	return j.Clone(), nil
}

func (f *fakeGenome) Status(_ context.Context, id string) (*model.GenomeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (f *fakeGenome) List(_ context.Context, limit int) ([]*model.GenomeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.GenomeJob
	for _, j := range f.jobs {
		out = append(out, j.Clone())
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeGenome) LatestCompletedForBrand(context.Context, string) (*model.GenomeJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeGenome) Report(ctx context.Context, id string) (model.Artifact, []byte, error) {
	j, err := f.Status(ctx, id)
	if err != nil {
		return model.Artifact{}, nil, err
	}
	if j.Artifact == nil {
		return model.Artifact{}, nil, fmt.Errorf("%w: not ready", domain.ErrNotFound)
	}
	return *j.Artifact, f.report, nil
}

func (f *fakeGenome) put(j *model.GenomeJob) {
	f.mu.Lock()
	f.jobs[j.ID] = j
	f.mu.Unlock()
}

type fakeChat struct {
	usecase.ChatUseCase
	sessions map[string]*model.ChatSession
	sendErr  error
	genome   *fakeGenome
}

func (f *fakeChat) Initialize(_ context.Context, brand string) (*usecase.ChatStart, error) {
	s := model.NewChatSession(brand, nil)
	f.sessions[s.ID] = s
	return &usecase.ChatStart{Session: s, Greeting: "Hi! " + brand}, nil
}

func (f *fakeChat) SendMessage(_ context.Context, id, text string) (*usecase.ChatReply, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if _, ok := f.sessions[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return &usecase.ChatReply{
		SessionID:  id,
		Text:       "echo: " + text,
		Action:     model.ActionImageGeneration,
		Attachment: &model.ImageRef{URL: "https://img.example/1.png"},
		Timestamp:  time.Now(),
	}, nil
}

func (f *fakeChat) RequestReport(ctx context.Context, id, email string) (*model.GenomeJob, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f.genome.Submit(ctx, model.BrandInput{Brand: s.BrandHandle, DeliveryEmail: email, ChatSessionID: id})
}

func (f *fakeChat) History(_ context.Context, id string) ([]model.ChatMessage, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Messages(), nil
}

func (f *fakeChat) Terminate(_ context.Context, id string) (string, error) {
	if _, ok := f.sessions[id]; !ok {
		return "", domain.ErrNotFound
	}
	delete(f.sessions, id)
	return "conversations/x.json", nil
}

func (f *fakeChat) ListActive(context.Context) ([]model.SessionSummary, error) {
	var out []model.SessionSummary
	for _, s := range f.sessions {
		out = append(out, s.Summary())
	}
	return out, nil
}

type harness struct {
	h      http.Handler
	genome *fakeGenome
	chat   *fakeChat
	files  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()
	g := newFakeGenome()
	c := &fakeChat{sessions: map[string]*model.ChatSession{}, genome: g}
	dir := t.TempDir()
	auth := api.NewAuthManager("admin-key", "jwt-secret", time.Minute)
	srv := api.NewServer(g, c, auth, api.Options{FilesDir: dir, Version: "test"}, &log)
	return &harness{h: srv.Router(), genome: g, chat: c, files: dir}
}

func (h *harness) do(t *testing.T, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestHealthAndInfo(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(t, http.MethodGet, "/api", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode(t, rec)["version"])
}

func TestAnalyzeAndStatus(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/analyze", map[string]string{"brand_input": "ab", "email": "a@b.co"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "too short")

	rec = h.do(t, http.MethodPost, "/api/analyze", map[string]string{"brand_input": "acme.com", "email": "a@b.co"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	id, _ := body["job_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", body["status"])

	rec = h.do(t, http.MethodGet, "/api/status/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode(t, rec)
	assert.Equal(t, "Collecting brand data from multiple sources...", st["message"])
	assert.Equal(t, "acme.com", st["brand_input"])
	assert.Nil(t, st["pdf_url"])
	assert.Equal(t, false, st["email_sent"])

	rec = h.do(t, http.MethodGet, "/api/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decode(t, rec)["error"])
}

func TestAnalyze_FormAndQueueFull(t *testing.T) {
	h := newHarness(t)
	form := url.Values{"brand_input": {"Acme"}, "email": {"a@b.co"}}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	h.genome.submitErr = fmt.Errorf("%w: pool", domain.ErrQueueFull)
	rec = h.do(t, http.MethodPost, "/api/analyze", map[string]string{"brand_input": "acme", "email": "a@b.co"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.genome.submitErr = fmt.Errorf("db exploded: %w", domain.ErrService)
	rec = h.do(t, http.MethodPost, "/api/analyze", map[string]string{"brand_input": "acme", "email": "a@b.co"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "exploded")
}

func TestDownloadReport(t *testing.T) {
	h := newHarness(t)
	j := model.NewGenomeJob(model.BrandInput{Brand: "acme", DeliveryEmail: "a@b.co"}, "x")
	h.genome.put(j)

	rec := h.do(t, http.MethodGet, "/api/download/report/"+j.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Report not found", decode(t, rec)["error"])

	require.NoError(t, j.Start())
	require.NoError(t, j.SetArtifact(model.Artifact{Key: "reports/" + j.ID + ".pdf", ContentType: "application/pdf"}))
	require.NoError(t, j.Complete(true, "done"))
	h.genome.put(j)
	h.genome.report = []byte("%PDF-1.4")

	rec = h.do(t, http.MethodGet, "/api/download/report/"+j.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), j.ID)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/status/"+j.ID, nil)
	assert.Equal(t, "/api/download/report/"+j.ID, decode(t, rec)["pdf_url"])

	rec = h.do(t, http.MethodGet, "/api/download/report/missing", nil)
	assert.Equal(t, "Job not found", decode(t, rec)["error"])
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/jobs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/admin/token", map[string]string{"api_key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/admin/token", map[string]string{"api_key": "admin-key"})
	require.Equal(t, http.StatusOK, rec.Code)
	tok, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, tok)

	_, _ = h.genome.Submit(context.Background(), model.BrandInput{Brand: "acme", DeliveryEmail: "a@b.co"})
	rec = h.do(t, http.MethodGet, "/api/jobs", nil, "Authorization", "Bearer "+tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total_jobs"])

	rec = h.do(t, http.MethodGet, "/api/jobs?limit=x", nil, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/chat/sessions", nil, "Authorization", "Bearer "+tok+"x")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminDisabled(t *testing.T) {
	log := zerolog.Nop()
	srv := api.NewServer(newFakeGenome(), &fakeChat{sessions: map[string]*model.ChatSession{}}, nil, api.Options{}, &log)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChatFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/chat/init", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/chat/init", map[string]string{"brand_handle": "@acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	sid, _ := body["session_id"].(string)
	require.NotEmpty(t, sid)
	assert.Equal(t, false, body["has_context"])

	rec = h.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": sid, "message": "photo of a cat"})
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decode(t, rec)
	assert.Equal(t, "image_generation", msg["action_type"])
	assert.Equal(t, "https://img.example/1.png", msg["image_url"])
	assert.Equal(t, false, msg["needs_report"])

	rec = h.do(t, http.MethodPost, "/api/chat/generate-report", map[string]string{"session_id": sid, "email": "a@b.co"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID, _ := decode(t, rec)["job_id"].(string)
	rec = h.do(t, http.MethodGet, "/api/status/"+jobID, nil)
	st := decode(t, rec)
	assert.Equal(t, true, st["from_chat"])
	assert.Equal(t, sid, st["chat_session_id"])

	rec = h.do(t, http.MethodGet, "/api/chat/history/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode(t, rec)["conversation"])

	rec = h.do(t, http.MethodDelete, "/api/chat/session/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conversations/x.json", decode(t, rec)["export_path"])

	rec = h.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": sid, "message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/chat/history/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_RateLimited(t *testing.T) {
	h := newHarness(t)
	h.chat.sendErr = domain.ErrRateLimited
	rec := h.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": "s", "message": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFilesServed(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.files, "reports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.files, "reports", "a.pdf"), []byte("pdf"), 0o644))

	rec := h.do(t, http.MethodGet, "/files/reports/a.pdf", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pdf", rec.Body.String())

	rec = h.do(t, http.MethodGet, "/files/reports/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
