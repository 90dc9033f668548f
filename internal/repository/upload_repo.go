package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustlens/internal/domain"
)

// ErrNotFound se devuelve cuando la fila no existe o no pertenece al
// usuario consultante.
var ErrNotFound = errors.New("not found")

type UploadRepository interface {
	Create(ctx context.Context, job domain.UploadJob) error
	GetByID(ctx context.Context, id string) (domain.UploadJob, error)
	GetForUser(ctx context.Context, id, userID string) (domain.UploadJob, error)
	ListForUser(ctx context.Context, userID string) ([]domain.UploadJob, error)
	TryTransition(ctx context.Context, id string, from, to domain.UploadStatus) (bool, error)
	SetProgress(ctx context.Context, id string, progress int, step string) error
	SetDetection(ctx context.Context, id string, format domain.MessageFormat, messageCount int) error
	Complete(ctx context.Context, id, contentHash string, completedAt time.Time) error
	Fail(ctx context.Context, id, errorMessage string) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadJob, error)
	Expire(ctx context.Context, id string) (bool, error)
	DeleteForUser(ctx context.Context, id, userID string) (bool, error)
}

type PgUploadRepository struct {
	pool *pgxpool.Pool
}

func NewPgUploadRepository(pool *pgxpool.Pool) *PgUploadRepository {
	return &PgUploadRepository{pool: pool}
}

const uploadColumns = `
	id, user_id, filename, declared_mime, detected_format, size_bytes,
	status, progress, current_step, error_message, message_count,
	content_hash, created_at, completed_at, expires_at
`

func (r *PgUploadRepository) Create(ctx context.Context, job domain.UploadJob) error {
	const query = `
		INSERT INTO uploads (` + uploadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Filename,
		job.DeclaredMIME,
		string(job.DetectedFormat),
		job.SizeBytes,
		string(job.Status),
		job.Progress,
		job.CurrentStep,
		nullIfEmpty(job.ErrorMessage),
		job.MessageCount,
		nullIfEmpty(job.ContentHash),
		job.CreatedAt,
		job.CompletedAt,
		job.ExpiresAt,
	)
	return err
}

func (r *PgUploadRepository) GetByID(ctx context.Context, id string) (domain.UploadJob, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUploadRepository) GetForUser(ctx context.Context, id, userID string) (domain.UploadJob, error) {
	const query = `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, userID))
}

func (r *PgUploadRepository) ListForUser(ctx context.Context, userID string) ([]domain.UploadJob, error) {
	const query = `
		SELECT ` + uploadColumns + `
		FROM uploads
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.UploadJob
	for rows.Next() {
		job, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// TryTransition aplica un cambio de estado guardado: solo tiene efecto
// si la fila sigue en el estado origen. Devuelve false cuando otro
// worker gano la carrera o la transicion es ilegal.
func (r *PgUploadRepository) TryTransition(ctx context.Context, id string, from, to domain.UploadStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	const query = `UPDATE uploads SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUploadRepository) SetProgress(ctx context.Context, id string, progress int, step string) error {
	const query = `UPDATE uploads SET progress = $1, current_step = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, progress, step, id)
	return err
}

func (r *PgUploadRepository) SetDetection(ctx context.Context, id string, format domain.MessageFormat, messageCount int) error {
	const query = `UPDATE uploads SET detected_format = $1, message_count = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, string(format), messageCount, id)
	return err
}

func (r *PgUploadRepository) Complete(ctx context.Context, id, contentHash string, completedAt time.Time) error {
	const query = `
		UPDATE uploads
		SET content_hash = $1, completed_at = $2, progress = 100, current_step = $3
		WHERE id = $4
	`
	_, err := r.pool.Exec(ctx, query, contentHash, completedAt, domain.StepDone, id)
	return err
}

func (r *PgUploadRepository) Fail(ctx context.Context, id, errorMessage string) error {
	const query = `
		UPDATE uploads
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4 AND status NOT IN ($5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		string(domain.StatusFailed),
		errorMessage,
		time.Now().UTC(),
		id,
		string(domain.StatusCompleted),
		string(domain.StatusFailed),
		string(domain.StatusExpired),
	)
	return err
}

func (r *PgUploadRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadJob, error) {
	const query = `
		SELECT ` + uploadColumns + `
		FROM uploads
		WHERE expires_at <= $1 AND status != $2
		ORDER BY expires_at ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, now, string(domain.StatusExpired), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.UploadJob
	for rows.Next() {
		job, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *PgUploadRepository) Expire(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE uploads SET status = $1 WHERE id = $2 AND status != $1`
	tag, err := r.pool.Exec(ctx, query, string(domain.StatusExpired), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUploadRepository) DeleteForUser(ctx context.Context, id, userID string) (bool, error) {
	const query = `DELETE FROM uploads WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUploadRepository) scanOne(row pgx.Row) (domain.UploadJob, error) {
	var job domain.UploadJob
	var format, step string
	var errorMessage, contentHash *string

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Filename,
		&job.DeclaredMIME,
		&format,
		&job.SizeBytes,
		(*string)(&job.Status),
		&job.Progress,
		&step,
		&errorMessage,
		&job.MessageCount,
		&contentHash,
		&job.CreatedAt,
		&job.CompletedAt,
		&job.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UploadJob{}, ErrNotFound
	}
	if err != nil {
		return domain.UploadJob{}, err
	}

	job.DetectedFormat = domain.MessageFormat(format)
	job.CurrentStep = step
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if contentHash != nil {
		job.ContentHash = *contentHash
	}
	return job, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
