package service

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustlens/internal/domain"
)

// BiasPolicy parametriza las heuristicas del auditor. Todo es politica
// configurable, no constantes.
type BiasPolicy struct {
	ConfidenceFloor  float64
	ExtremeLow       int
	ExtremeHigh      int
	CohortSigma      float64
	CohortMinSamples int
	ShrinkFactor     float64
	WithholdSeverity domain.BiasSeverity
}

// AuditOutcome es la salida del auditor: el resultado eventualmente
// ajustado, los flags emitidos y si debe retenerse para revision.
type AuditOutcome struct {
	Result   domain.TrustScoreResult
	Flags    []domain.BiasFlag
	Withheld bool
}

// BiasAuditor busca sesgo sistematico en un resultado antes de
// persistirlo. Los flags son anotaciones, no errores; la mitigacion
// nunca es silenciosa.
type BiasAuditor struct {
	policy BiasPolicy
	engine *ScoringEngine
	logger *zap.Logger
}

func NewBiasAuditor(policy BiasPolicy, engine *ScoringEngine, logger *zap.Logger) *BiasAuditor {
	if policy.ShrinkFactor < 0 || policy.ShrinkFactor >= 1 {
		policy.ShrinkFactor = 0.30
	}
	if policy.WithholdSeverity == "" {
		policy.WithholdSeverity = domain.SeverityCritical
	}
	return &BiasAuditor{policy: policy, engine: engine, logger: logger}
}

// Audit aplica las heuristicas sobre el resultado. cohort puede ser nil
// cuando no hay estadisticas previas suficientes.
func (a *BiasAuditor) Audit(result domain.TrustScoreResult, cohort *domain.CohortStats) AuditOutcome {
	outcome := AuditOutcome{Result: result}
	now := time.Now().UTC()

	if flag, adjusted, ok := a.checkConfidenceOutlier(result, now); ok {
		outcome.Flags = append(outcome.Flags, flag)
		outcome.Result = adjusted
	}

	if flag, ok := a.checkCohortSkew(outcome.Result, cohort, now); ok {
		outcome.Flags = append(outcome.Flags, flag)
	}

	for _, flag := range outcome.Flags {
		if flag.Severity.AtLeast(a.policy.WithholdSeverity) {
			outcome.Withheld = true
			outcome.Result.Withheld = true
			break
		}
	}

	if len(outcome.Flags) > 0 && a.logger != nil {
		a.logger.Info("bias audit flagged result",
			zap.String("job_id", result.JobID),
			zap.Int("flags", len(outcome.Flags)),
			zap.Bool("withheld", outcome.Withheld),
		)
	}

	return outcome
}

// checkConfidenceOutlier detecta extremos con confianza baja: es mas
// probable que reflejen datos escasos que senal genuina. Aplica una
// contraccion acotada hacia el punto medio y la registra siempre.
func (a *BiasAuditor) checkConfidenceOutlier(result domain.TrustScoreResult, now time.Time) (domain.BiasFlag, domain.TrustScoreResult, bool) {
	isExtreme := result.Score >= a.policy.ExtremeHigh || result.Score <= a.policy.ExtremeLow
	if !isExtreme || result.Confidence >= a.policy.ConfidenceFloor {
		return domain.BiasFlag{}, result, false
	}

	severity := domain.SeverityHigh
	if result.Confidence < a.policy.ConfidenceFloor/2 {
		severity = domain.SeverityCritical
	}

	original := result.Score
	shrunk := int(math.Round(50 + float64(original-50)*(1-a.policy.ShrinkFactor)))
	adjusted := a.engine.Rescore(result, shrunk)

	flag := domain.BiasFlag{
		ID:       uuid.NewString(),
		ResultID: result.ID,
		Type:     domain.BiasConfidenceOutlier,
		Severity: severity,
		Description: fmt.Sprintf(
			"extreme score %d with confidence %.0f below floor %.0f; shrunk toward midpoint by factor %.2f (%d -> %d)",
			original, result.Confidence, a.policy.ConfidenceFloor, a.policy.ShrinkFactor, original, adjusted.Score,
		),
		MitigationApplied: true,
		CreatedAt:         now,
	}
	return flag, adjusted, true
}

// checkCohortSkew compara contra la media de la cohorte anonima cuando
// hay muestra suficiente. Solo anota; no ajusta el puntaje.
func (a *BiasAuditor) checkCohortSkew(result domain.TrustScoreResult, cohort *domain.CohortStats, now time.Time) (domain.BiasFlag, bool) {
	if cohort == nil || cohort.Count < a.policy.CohortMinSamples || cohort.StdDev <= 0 {
		return domain.BiasFlag{}, false
	}

	deviation := math.Abs(float64(result.Score) - cohort.Mean)
	limit := a.policy.CohortSigma * cohort.StdDev
	if deviation <= limit {
		return domain.BiasFlag{}, false
	}

	severity := domain.SeverityMedium
	if deviation > 2*limit {
		severity = domain.SeverityHigh
	}

	return domain.BiasFlag{
		ID:       uuid.NewString(),
		ResultID: result.ID,
		Type:     domain.BiasCohortSkew,
		Severity: severity,
		Description: fmt.Sprintf(
			"score %d deviates %.1f points from cohort mean %.1f (limit %.1f over %d samples)",
			result.Score, deviation, cohort.Mean, limit, cohort.Count,
		),
		MitigationApplied: false,
		CreatedAt:         now,
	}, true
}
