package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustlens/internal/domain"
)

type ScoreRepository interface {
	// SaveSuperseding inserta el resultado nuevo y marca como
	// superseded cualquier resultado activo previo del mismo usuario,
	// en una sola transaccion.
	SaveSuperseding(ctx context.Context, result domain.TrustScoreResult) error
	GetActiveByJob(ctx context.Context, jobID string) (domain.TrustScoreResult, error)
	GetActiveByUser(ctx context.Context, userID string) (domain.TrustScoreResult, error)
	// Discard elimina un resultado recien insertado cuya persistencia
	// de flags fallo; compensacion para no dejar estado parcial.
	Discard(ctx context.Context, resultID string) error
	// CohortStats agrega media y desvio de los puntajes activos no
	// retenidos desde la fecha dada. Sin identidad: solo numeros.
	CohortStats(ctx context.Context, since time.Time) (domain.CohortStats, error)
}

type PgScoreRepository struct {
	pool *pgxpool.Pool
}

func NewPgScoreRepository(pool *pgxpool.Pool) *PgScoreRepository {
	return &PgScoreRepository{pool: pool}
}

const scoreColumns = `
	id, job_id, user_id, score, mapped_score, risk_tier, confidence,
	conscientiousness, neuroticism, agreeableness, openness, extraversion,
	withheld, superseded, computed_at, expires_at
`

func (r *PgScoreRepository) SaveSuperseding(ctx context.Context, result domain.TrustScoreResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const supersede = `
		UPDATE score_results SET superseded = TRUE
		WHERE user_id = $1 AND superseded = FALSE
	`
	if _, err := tx.Exec(ctx, supersede, result.UserID); err != nil {
		return err
	}

	const insert = `
		INSERT INTO score_results (` + scoreColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := tx.Exec(ctx, insert,
		result.ID,
		result.JobID,
		result.UserID,
		result.Score,
		result.MappedScore,
		string(result.RiskTier),
		result.Confidence,
		result.Traits.Conscientiousness,
		result.Traits.Neuroticism,
		result.Traits.Agreeableness,
		result.Traits.Openness,
		result.Traits.Extraversion,
		result.Withheld,
		result.Superseded,
		result.ComputedAt,
		result.ExpiresAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgScoreRepository) GetActiveByJob(ctx context.Context, jobID string) (domain.TrustScoreResult, error) {
	const query = `
		SELECT ` + scoreColumns + `
		FROM score_results
		WHERE job_id = $1 AND superseded = FALSE
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, jobID))
}

func (r *PgScoreRepository) GetActiveByUser(ctx context.Context, userID string) (domain.TrustScoreResult, error) {
	const query = `
		SELECT ` + scoreColumns + `
		FROM score_results
		WHERE user_id = $1 AND superseded = FALSE
		ORDER BY computed_at DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, userID))
}

func (r *PgScoreRepository) Discard(ctx context.Context, resultID string) error {
	const query = `DELETE FROM score_results WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, resultID)
	return err
}

func (r *PgScoreRepository) CohortStats(ctx context.Context, since time.Time) (domain.CohortStats, error) {
	const query = `
		SELECT COALESCE(AVG(score), 0), COALESCE(STDDEV_POP(score), 0), COUNT(*)
		FROM score_results
		WHERE computed_at >= $1 AND superseded = FALSE AND withheld = FALSE
	`
	var stats domain.CohortStats
	err := r.pool.QueryRow(ctx, query, since).Scan(&stats.Mean, &stats.StdDev, &stats.Count)
	return stats, err
}

func (r *PgScoreRepository) scanOne(row pgx.Row) (domain.TrustScoreResult, error) {
	var result domain.TrustScoreResult
	var tier string

	err := row.Scan(
		&result.ID,
		&result.JobID,
		&result.UserID,
		&result.Score,
		&result.MappedScore,
		&tier,
		&result.Confidence,
		&result.Traits.Conscientiousness,
		&result.Traits.Neuroticism,
		&result.Traits.Agreeableness,
		&result.Traits.Openness,
		&result.Traits.Extraversion,
		&result.Withheld,
		&result.Superseded,
		&result.ComputedAt,
		&result.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TrustScoreResult{}, ErrNotFound
	}
	if err != nil {
		return domain.TrustScoreResult{}, err
	}

	result.RiskTier = domain.RiskTier(tier)
	result.Traits.Confidence = result.Confidence
	result.Traits.AnalyzedAt = result.ComputedAt
	return result, nil
}
