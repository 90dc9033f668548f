package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"trustlens/internal/domain"
	"trustlens/internal/inference"
	"trustlens/internal/ingest"
	"trustlens/internal/privacy"
	"trustlens/internal/repository"
)

var (
	// ErrResultWithheld indica que el resultado quedo retenido para
	// revision manual por severidad critica de sesgo.
	ErrResultWithheld = errors.New("result withheld pending review")
	// ErrResultExpired indica que el resultado vencio y se requiere un
	// nuevo analisis.
	ErrResultExpired = errors.New("result expired, re-analysis required")
	// ErrUploadRateLimited indica que el usuario agoto su cuota de
	// cargas en la ventana vigente.
	ErrUploadRateLimited = errors.New("upload rate limit exceeded")
)

// UploadPolicy agrupa los limites del pipeline.
type UploadPolicy struct {
	MaxBytes      int64
	MinMessages   int
	MaxConcurrent int64
	Retention     time.Duration
}

// ReviewNotifier avisa a un revisor humano cuando un resultado queda
// retenido. Implementado por el sender SMTP; puede ser nil.
type ReviewNotifier interface {
	NotifyWithheld(ctx context.Context, result domain.TrustScoreResult, flags []domain.BiasFlag) error
}

// UploadService es la maquina de estados del trabajo de carga: valida,
// conduce el pipeline parse -> sanitize -> infer -> score -> audit y
// expone vistas de solo lectura sobre progreso y resultado.
type UploadService struct {
	logger    *zap.Logger
	jobs      repository.UploadRepository
	scores    repository.ScoreRepository
	flags     repository.BiasFlagRepository
	store     ContentStore
	sanitizer *privacy.Sanitizer
	inferrer  inference.Client
	engine    *ScoringEngine
	auditor   *BiasAuditor
	notifier  ReviewNotifier
	limiter   UploadRateLimiter
	policy    UploadPolicy

	sem    *semaphore.Weighted
	mu     sync.Mutex
	active map[string]*jobRun
}

// jobRun rastrea un worker en vuelo para cancelacion cooperativa.
type jobRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewUploadService(
	logger *zap.Logger,
	jobs repository.UploadRepository,
	scores repository.ScoreRepository,
	flags repository.BiasFlagRepository,
	store ContentStore,
	sanitizer *privacy.Sanitizer,
	inferrer inference.Client,
	engine *ScoringEngine,
	auditor *BiasAuditor,
	notifier ReviewNotifier,
	limiter UploadRateLimiter,
	policy UploadPolicy,
) *UploadService {
	if policy.MaxConcurrent <= 0 {
		policy.MaxConcurrent = 4
	}
	if policy.Retention <= 0 {
		policy.Retention = 24 * time.Hour
	}
	if policy.MinMessages <= 0 {
		policy.MinMessages = 50
	}
	return &UploadService{
		logger:    logger,
		jobs:      jobs,
		scores:    scores,
		flags:     flags,
		store:     store,
		sanitizer: sanitizer,
		inferrer:  inferrer,
		engine:    engine,
		auditor:   auditor,
		notifier:  notifier,
		limiter:   limiter,
		policy:    policy,
		sem:       semaphore.NewWeighted(policy.MaxConcurrent),
		active:    make(map[string]*jobRun),
	}
}

// Submit valida la entrada, crea el trabajo y lanza exactamente un
// worker. La carga se procesa asincronicamente; el caller consulta
// progreso por separado.
func (s *UploadService) Submit(ctx context.Context, userID, filename, declaredMIME, hint string, data []byte) (domain.UploadJob, error) {
	if len(data) == 0 {
		return domain.UploadJob{}, domain.NewValidationError("file", "missing file content")
	}
	if s.policy.MaxBytes > 0 && int64(len(data)) > s.policy.MaxBytes {
		return domain.UploadJob{}, domain.NewValidationError("file", fmt.Sprintf("file exceeds %d bytes", s.policy.MaxBytes))
	}
	if filename == "" {
		filename = "upload"
	}
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return domain.UploadJob{}, ErrUploadRateLimited
	}

	now := time.Now().UTC()
	job := domain.UploadJob{
		ID:           uuid.NewString(),
		UserID:       userID,
		Filename:     filepath.Base(filename),
		DeclaredMIME: declaredMIME,
		SizeBytes:    int64(len(data)),
		Status:       domain.StatusPending,
		Progress:     0,
		CurrentStep:  domain.StepQueued,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.policy.Retention),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return domain.UploadJob{}, fmt.Errorf("create upload job: %w", err)
	}

	s.startWorker(job, data, hint)
	return job, nil
}

// startWorker registra el run y lanza el goroutine del pipeline. Si ya
// hay un worker para el mismo id no lanza otro: un intento por trabajo.
func (s *UploadService) startWorker(job domain.UploadJob, data []byte, hint string) {
	s.mu.Lock()
	if _, exists := s.active[job.ID]; exists {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	run := &jobRun{cancel: cancel, done: make(chan struct{})}
	s.active[job.ID] = run
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.active, job.ID)
			s.mu.Unlock()
			close(run.done)
		}()
		s.process(runCtx, job, data, hint)
	}()
}

// Wait bloquea hasta que el worker del trabajo termine. Util para
// shutdown ordenado y tests; retorna de inmediato si no hay worker.
func (s *UploadService) Wait(jobID string) {
	s.mu.Lock()
	run, ok := s.active[jobID]
	s.mu.Unlock()
	if ok {
		<-run.done
	}
}

// process conduce las etapas del pipeline con checkpoints de
// cancelacion despues de parse, sanitize e inferencia.
func (s *UploadService) process(ctx context.Context, job domain.UploadJob, data []byte, hint string) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.abort(job.ID, "cancelled before start")
		return
	}
	defer s.sem.Release(1)

	claimed, err := s.jobs.TryTransition(ctx, job.ID, domain.StatusPending, domain.StatusValidating)
	if err != nil || !claimed {
		// Otro worker ya es dueno del trabajo: rechazo idempotente.
		return
	}
	_ = s.jobs.SetProgress(ctx, job.ID, 0, domain.StepValidating)

	detection, err := ingest.Detect(data, job.DeclaredMIME, hint)
	if err != nil {
		s.fail(job.ID, err)
		return
	}

	started, err := s.jobs.TryTransition(ctx, job.ID, domain.StatusValidating, domain.StatusProcessing)
	if err != nil || !started {
		return
	}

	parser, err := ingest.ForFormat(detection.Format)
	if err != nil {
		s.fail(job.ID, err)
		return
	}
	parsed, err := parser.Parse(data)
	if err != nil {
		s.fail(job.ID, err)
		return
	}
	if parsed.Skipped > 0 {
		s.logger.Warn("skipped malformed records",
			zap.String("job_id", job.ID),
			zap.Int("skipped", parsed.Skipped),
		)
	}
	if len(parsed.Records) < s.policy.MinMessages {
		s.fail(job.ID, fmt.Errorf("%w: parsed %d messages, minimum is %d",
			domain.ErrInsufficientData, len(parsed.Records), s.policy.MinMessages))
		return
	}

	// Invariante: message_count igual a registros parseados antes de
	// que la inferencia proceda.
	_ = s.jobs.SetDetection(ctx, job.ID, detection.Format, len(parsed.Records))
	_ = s.jobs.SetProgress(ctx, job.ID, 10, domain.StepParsing)
	if s.cancelled(ctx, job.ID) {
		return
	}

	sanitized, err := s.sanitizer.Sanitize(job.ID, parsed.Records)
	if err != nil {
		s.fail(job.ID, err)
		return
	}
	contentHash := privacy.ContentHash(sanitized.Records)

	texts := make([]string, len(sanitized.Records))
	for i, r := range sanitized.Records {
		texts[i] = r.Body
	}
	if err := s.store.Put(ctx, job.ID, texts, s.policy.Retention); err != nil {
		s.fail(job.ID, fmt.Errorf("stage transient content: %w", err))
		return
	}
	_ = s.jobs.SetProgress(ctx, job.ID, 30, domain.StepSanitizing)
	if s.cancelled(ctx, job.ID) {
		return
	}

	traits, err := s.inferrer.InferTraits(ctx, texts)
	if err != nil {
		s.fail(job.ID, err)
		return
	}
	_ = s.jobs.SetProgress(ctx, job.ID, 70, domain.StepInferring)
	if s.cancelled(ctx, job.ID) {
		return
	}

	now := time.Now().UTC()
	result := s.engine.Compute(traits, now)
	result.ID = uuid.NewString()
	result.JobID = job.ID
	result.UserID = job.UserID
	_ = s.jobs.SetProgress(ctx, job.ID, 90, domain.StepScoring)

	outcome := s.auditor.Audit(result, s.cohort(ctx, now))
	_ = s.jobs.SetProgress(ctx, job.ID, 90, domain.StepAuditing)

	if err := s.scores.SaveSuperseding(ctx, outcome.Result); err != nil {
		s.fail(job.ID, fmt.Errorf("persist result: %w", err))
		return
	}
	if err := s.flags.InsertAll(ctx, outcome.Flags); err != nil {
		// La mitigacion nunca es silenciosa: sin sus flags el resultado
		// no puede quedar activo.
		s.discardResult(outcome.Result.ID)
		s.fail(job.ID, fmt.Errorf("persist bias flags: %w", err))
		return
	}
	if outcome.Withheld && s.notifier != nil {
		if err := s.notifier.NotifyWithheld(ctx, outcome.Result, outcome.Flags); err != nil {
			s.logger.Warn("review notification failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	_ = s.jobs.Complete(ctx, job.ID, contentHash, time.Now().UTC())
	if done, err := s.jobs.TryTransition(ctx, job.ID, domain.StatusProcessing, domain.StatusCompleted); err != nil || !done {
		s.purge(job.ID)
		return
	}

	// Transicion terminal: el contenido efimero se purga de inmediato.
	s.purge(job.ID)
	s.logger.Info("upload processed",
		zap.String("job_id", job.ID),
		zap.Int("messages", len(parsed.Records)),
		zap.Int("score", outcome.Result.Score),
		zap.String("risk_tier", string(outcome.Result.RiskTier)),
		zap.Bool("withheld", outcome.Withheld),
	)
}

// cohort trae estadisticas anonimas de los ultimos 30 dias; nil cuando
// no hay muestra.
func (s *UploadService) cohort(ctx context.Context, now time.Time) *domain.CohortStats {
	stats, err := s.scores.CohortStats(ctx, now.Add(-30*24*time.Hour))
	if err != nil || stats.Count == 0 {
		return nil
	}
	return &stats
}

// cancelled es el checkpoint cooperativo: si el dueno borro el trabajo
// mientras procesaba, abortamos sin persistir y liberamos el contenido.
func (s *UploadService) cancelled(ctx context.Context, jobID string) bool {
	if ctx.Err() == nil {
		return false
	}
	s.abort(jobID, "cancelled by owner")
	return true
}

func (s *UploadService) abort(jobID, reason string) {
	s.purge(jobID)
	s.logger.Info("job aborted", zap.String("job_id", jobID), zap.String("reason", reason))
}

// fail marca el trabajo como fallido con mensaje legible y purga el
// contenido transitorio. La transicion a failed es permanente.
func (s *UploadService) fail(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.jobs.Fail(ctx, jobID, cause.Error()); err != nil {
		s.logger.Error("mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	s.purge(jobID)
	s.logger.Warn("upload failed", zap.String("job_id", jobID), zap.Error(cause))
}

// discardResult revierte el resultado huerfano cuando los flags no
// llegaron a persistirse.
func (s *UploadService) discardResult(resultID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.scores.Discard(ctx, resultID); err != nil {
		s.logger.Error("discard orphaned result", zap.String("result_id", resultID), zap.Error(err))
	}
}

func (s *UploadService) purge(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Purge(ctx, jobID); err != nil {
		s.logger.Error("purge transient content", zap.String("job_id", jobID), zap.Error(err))
	}
}

// ProgressView es la vista de solo lectura del avance del trabajo.
type ProgressView struct {
	Status                    domain.UploadStatus `json:"status"`
	Progress                  int                 `json:"progress"`
	CurrentStep               string              `json:"current_step"`
	EstimatedSecondsRemaining *int64              `json:"estimated_seconds_remaining,omitempty"`
	ErrorMessage              string              `json:"error_message,omitempty"`
}

// Progress devuelve el avance sin disparar transicion alguna.
func (s *UploadService) Progress(ctx context.Context, userID, jobID string) (ProgressView, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return ProgressView{}, err
	}

	view := ProgressView{
		Status:       job.Status,
		Progress:     job.Progress,
		CurrentStep:  job.CurrentStep,
		ErrorMessage: job.ErrorMessage,
	}
	if job.Status == domain.StatusProcessing && job.Progress > 0 && job.Progress < 100 {
		elapsed := time.Now().UTC().Sub(job.CreatedAt)
		remaining := int64(elapsed.Seconds() * float64(100-job.Progress) / float64(job.Progress))
		view.EstimatedSecondsRemaining = &remaining
	}
	return view, nil
}

// ResultView expone solo metadatos: nunca contenido de mensajes.
type ResultView struct {
	Status               domain.UploadStatus  `json:"status"`
	MessageCount         int                  `json:"message_count"`
	Format               domain.MessageFormat `json:"format"`
	ProcessedAt          *time.Time           `json:"processed_at,omitempty"`
	SanitizedContentHash string               `json:"sanitized_content_hash,omitempty"`
}

// Result devuelve los metadatos del trabajo, sin transiciones.
func (s *UploadService) Result(ctx context.Context, userID, jobID string) (ResultView, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return ResultView{}, err
	}
	return ResultView{
		Status:               job.Status,
		MessageCount:         job.MessageCount,
		Format:               job.DetectedFormat,
		ProcessedAt:          job.CompletedAt,
		SanitizedContentHash: job.ContentHash,
	}, nil
}

// List devuelve los trabajos del usuario autenticado.
func (s *UploadService) List(ctx context.Context, userID string) ([]domain.UploadJob, error) {
	return s.jobs.ListForUser(ctx, userID)
}

// Delete cancela el worker si sigue en vuelo, purga el contenido
// efimero y elimina el trabajo del usuario.
func (s *UploadService) Delete(ctx context.Context, userID, jobID string) error {
	s.mu.Lock()
	run, running := s.active[jobID]
	s.mu.Unlock()
	if running {
		run.cancel()
	}

	deleted, err := s.jobs.DeleteForUser(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return repository.ErrNotFound
	}
	s.purge(jobID)
	return nil
}

// Analysis expone rasgos y puntaje por la interfaz separada de
// resultados, acotada al dueno. Rechaza resultados retenidos o vencidos.
func (s *UploadService) Analysis(ctx context.Context, userID, jobID string) (domain.TrustScoreResult, []domain.BiasFlag, error) {
	if _, err := s.jobs.GetForUser(ctx, jobID, userID); err != nil {
		return domain.TrustScoreResult{}, nil, err
	}

	result, err := s.scores.GetActiveByJob(ctx, jobID)
	if err != nil {
		return domain.TrustScoreResult{}, nil, err
	}
	if result.Withheld {
		return domain.TrustScoreResult{}, nil, ErrResultWithheld
	}
	if result.Expired(time.Now().UTC()) {
		return domain.TrustScoreResult{}, nil, ErrResultExpired
	}

	flags, err := s.flags.ListByResult(ctx, result.ID)
	if err != nil {
		return domain.TrustScoreResult{}, nil, err
	}
	return result, flags, nil
}
