package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustlens/internal/domain"
	"trustlens/internal/inference"
	"trustlens/internal/privacy"
	"trustlens/internal/repository"
	"trustlens/internal/service"
)

type mockUploadRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.UploadJob
}

func newMockUploadRepo() *mockUploadRepo {
	return &mockUploadRepo{jobs: make(map[string]domain.UploadJob)}
}

func (m *mockUploadRepo) Create(_ context.Context, job domain.UploadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockUploadRepo) GetByID(_ context.Context, id string) (domain.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.UploadJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (m *mockUploadRepo) GetForUser(_ context.Context, id, userID string) (domain.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.UserID != userID {
		return domain.UploadJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (m *mockUploadRepo) ListForUser(_ context.Context, userID string) ([]domain.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []domain.UploadJob
	for _, job := range m.jobs {
		if job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (m *mockUploadRepo) TryTransition(_ context.Context, id string, from, to domain.UploadStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != from || !from.CanTransition(to) {
		return false, nil
	}
	job.Status = to
	m.jobs[id] = job
	return true, nil
}

func (m *mockUploadRepo) SetProgress(_ context.Context, id string, progress int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	job.Progress = progress
	job.CurrentStep = step
	m.jobs[id] = job
	return nil
}

func (m *mockUploadRepo) SetDetection(_ context.Context, id string, format domain.MessageFormat, messageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	job.DetectedFormat = format
	job.MessageCount = messageCount
	m.jobs[id] = job
	return nil
}

func (m *mockUploadRepo) Complete(_ context.Context, id, contentHash string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	job.ContentHash = contentHash
	job.CompletedAt = &completedAt
	job.Progress = 100
	job.CurrentStep = domain.StepDone
	m.jobs[id] = job
	return nil
}

func (m *mockUploadRepo) Fail(_ context.Context, id, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	if !job.Status.IsTerminal() {
		job.Status = domain.StatusFailed
		job.ErrorMessage = errorMessage
		m.jobs[id] = job
	}
	return nil
}

func (m *mockUploadRepo) ListExpired(_ context.Context, _ time.Time, _ int) ([]domain.UploadJob, error) {
	return nil, nil
}

func (m *mockUploadRepo) Expire(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (m *mockUploadRepo) DeleteForUser(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.UserID != userID {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

type mockScoreRepo struct {
	mu      sync.Mutex
	results []domain.TrustScoreResult
}

func (m *mockScoreRepo) SaveSuperseding(_ context.Context, result domain.TrustScoreResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.results {
		if m.results[i].UserID == result.UserID {
			m.results[i].Superseded = true
		}
	}
	m.results = append(m.results, result)
	return nil
}

func (m *mockScoreRepo) GetActiveByJob(_ context.Context, jobID string) (domain.TrustScoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, result := range m.results {
		if result.JobID == jobID && !result.Superseded {
			return result, nil
		}
	}
	return domain.TrustScoreResult{}, repository.ErrNotFound
}

func (m *mockScoreRepo) GetActiveByUser(_ context.Context, userID string) (domain.TrustScoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].UserID == userID && !m.results[i].Superseded {
			return m.results[i], nil
		}
	}
	return domain.TrustScoreResult{}, repository.ErrNotFound
}

func (m *mockScoreRepo) Discard(_ context.Context, resultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.results {
		if m.results[i].ID == resultID {
			m.results = append(m.results[:i], m.results[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockScoreRepo) CohortStats(_ context.Context, _ time.Time) (domain.CohortStats, error) {
	return domain.CohortStats{}, nil
}

type mockFlagRepo struct {
	mu    sync.Mutex
	flags []domain.BiasFlag
}

func (m *mockFlagRepo) InsertAll(_ context.Context, flags []domain.BiasFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = append(m.flags, flags...)
	return nil
}

func (m *mockFlagRepo) ListByResult(_ context.Context, resultID string) ([]domain.BiasFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BiasFlag
	for _, flag := range m.flags {
		if flag.ResultID == resultID {
			out = append(out, flag)
		}
	}
	return out, nil
}

type handlerFixture struct {
	router *gin.Engine
	svc    *service.UploadService
	jwtSvc *service.JWTService
	token  string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store, err := service.NewMemoryContentStore("")
	if err != nil {
		t.Fatalf("content store: %v", err)
	}
	engine := service.NewScoringEngine(70, 40, 30*24*time.Hour)
	auditor := service.NewBiasAuditor(service.BiasPolicy{
		ConfidenceFloor:  60,
		ExtremeLow:       5,
		ExtremeHigh:      95,
		CohortSigma:      2.0,
		CohortMinSamples: 30,
		ShrinkFactor:     0.30,
		WithholdSeverity: domain.SeverityCritical,
	}, engine, logger)

	uploadSvc := service.NewUploadService(
		logger,
		newMockUploadRepo(),
		&mockScoreRepo{},
		&mockFlagRepo{},
		store,
		privacy.NewSanitizer(logger),
		&inference.MockClient{Traits: domain.PersonalityTraits{
			Conscientiousness: 70,
			Neuroticism:       30,
			Agreeableness:     60,
			Openness:          50,
			Extraversion:      50,
			Confidence:        85,
		}},
		engine,
		auditor,
		nil,
		nil,
		service.UploadPolicy{
			MaxBytes:      1 << 20,
			MinMessages:   50,
			MaxConcurrent: 2,
			Retention:     24 * time.Hour,
		},
	)

	jwtSvc := service.NewJWTService("secret", 15*time.Minute)
	token, err := jwtSvc.Generate("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	uploadH := NewUploadHandler(logger, uploadSvc, 1<<20)
	analysisH := NewAnalysisHandler(logger, uploadSvc)
	router := NewRouter(logger, jwtSvc, uploadH, analysisH, nil)

	return &handlerFixture{router: router, svc: uploadSvc, jwtSvc: jwtSvc, token: token}
}

func chatExportBody(t *testing.T, n int) (*bytes.Buffer, string) {
	t.Helper()
	type msg struct {
		Timestamp string `json:"timestamp"`
		Sender    string `json:"sender"`
		Content   string `json:"content"`
	}
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	msgs := make([]msg, n)
	for i := 0; i < n; i++ {
		msgs[i] = msg{
			Timestamp: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			Sender:    "Ana",
			Content:   fmt.Sprintf("mensaje %d", i),
		}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "export.json")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func (fx *handlerFixture) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+fx.token)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func submitAndWait(t *testing.T, fx *handlerFixture, n int) string {
	t.Helper()
	body, contentType := chatExportBody(t, n)
	rec := fx.do(t, http.MethodPost, "/uploads", body, contentType)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Upload struct {
			ID string `json:"id"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Upload.ID == "" {
		t.Fatalf("expected upload id in response")
	}
	fx.svc.Wait(resp.Upload.ID)
	return resp.Upload.ID
}

func TestSubmitUploadReturnsAccepted(t *testing.T) {
	fx := newHandlerFixture(t)

	jobID := submitAndWait(t, fx, 60)

	rec := fx.do(t, http.MethodGet, "/uploads/"+jobID+"/progress", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if view.Status != "completed" || view.Progress != 100 {
		t.Fatalf("unexpected progress view: %+v", view)
	}
}

func TestSubmitUploadWithoutFileIsBadRequest(t *testing.T) {
	fx := newHandlerFixture(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	rec := fx.do(t, http.MethodPost, "/uploads", &buf, writer.FormDataContentType())

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitUploadRequiresAuth(t *testing.T) {
	fx := newHandlerFixture(t)
	body, contentType := chatExportBody(t, 60)

	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUploadResultExposesMetadata(t *testing.T) {
	fx := newHandlerFixture(t)
	jobID := submitAndWait(t, fx, 60)

	rec := fx.do(t, http.MethodGet, "/uploads/"+jobID+"/result", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view struct {
		MessageCount int    `json:"message_count"`
		Format       string `json:"format"`
		Hash         string `json:"sanitized_content_hash"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if view.MessageCount != 60 || view.Format != "chat_json" {
		t.Fatalf("unexpected result view: %+v", view)
	}
	if view.Hash == "" {
		t.Fatalf("expected sanitized content hash")
	}
}

func TestAnalysisReturnsScoreAndTraits(t *testing.T) {
	fx := newHandlerFixture(t)
	jobID := submitAndWait(t, fx, 60)

	rec := fx.do(t, http.MethodGet, "/analysis/"+jobID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Analysis struct {
			Score       int     `json:"score"`
			MappedScore int     `json:"mapped_score"`
			RiskTier    string  `json:"risk_tier"`
			Confidence  float64 `json:"confidence"`
			Traits      struct {
				Conscientiousness float64 `json:"conscientiousness"`
			} `json:"traits"`
		} `json:"analysis"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if resp.Analysis.Score <= 0 || resp.Analysis.MappedScore < 300 {
		t.Fatalf("unexpected analysis: %+v", resp.Analysis)
	}
	if resp.Analysis.Traits.Conscientiousness != 70 {
		t.Fatalf("expected traits in analysis, got %+v", resp.Analysis.Traits)
	}
}

func TestAnalysisForMissingJobIsNotFound(t *testing.T) {
	fx := newHandlerFixture(t)

	rec := fx.do(t, http.MethodGet, "/analysis/no-such-job", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteUploadReturnsNoContent(t *testing.T) {
	fx := newHandlerFixture(t)
	jobID := submitAndWait(t, fx, 60)

	rec := fx.do(t, http.MethodDelete, "/uploads/"+jobID, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = fx.do(t, http.MethodDelete, "/uploads/"+jobID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestListUploadsReturnsOwnJobs(t *testing.T) {
	fx := newHandlerFixture(t)
	submitAndWait(t, fx, 60)

	rec := fx.do(t, http.MethodGet, "/uploads", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Uploads []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"uploads"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(resp.Uploads))
	}
	if resp.Uploads[0].Status != "completed" {
		t.Fatalf("expected completed upload, got %s", resp.Uploads[0].Status)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	fx := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
