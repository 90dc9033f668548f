package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"trustlens/internal/domain"
)

type BiasFlagRepository interface {
	InsertAll(ctx context.Context, flags []domain.BiasFlag) error
	ListByResult(ctx context.Context, resultID string) ([]domain.BiasFlag, error)
}

type PgBiasFlagRepository struct {
	pool *pgxpool.Pool
}

func NewPgBiasFlagRepository(pool *pgxpool.Pool) *PgBiasFlagRepository {
	return &PgBiasFlagRepository{pool: pool}
}

func (r *PgBiasFlagRepository) InsertAll(ctx context.Context, flags []domain.BiasFlag) error {
	if len(flags) == 0 {
		return nil
	}

	const query = `
		INSERT INTO bias_flags (id, result_id, flag_type, severity, description, mitigation_applied, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, flag := range flags {
		if _, err := r.pool.Exec(ctx, query,
			flag.ID,
			flag.ResultID,
			string(flag.Type),
			string(flag.Severity),
			flag.Description,
			flag.MitigationApplied,
			flag.CreatedAt,
			flag.ResolvedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *PgBiasFlagRepository) ListByResult(ctx context.Context, resultID string) ([]domain.BiasFlag, error) {
	const query = `
		SELECT id, result_id, flag_type, severity, description, mitigation_applied, created_at, resolved_at
		FROM bias_flags
		WHERE result_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []domain.BiasFlag
	for rows.Next() {
		var flag domain.BiasFlag
		var flagType, severity string
		if err := rows.Scan(
			&flag.ID,
			&flag.ResultID,
			&flagType,
			&severity,
			&flag.Description,
			&flag.MitigationApplied,
			&flag.CreatedAt,
			&flag.ResolvedAt,
		); err != nil {
			return nil, err
		}
		flag.Type = domain.BiasFlagType(flagType)
		flag.Severity = domain.BiasSeverity(severity)
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}
