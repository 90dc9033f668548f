package domain

import "time"

// BiasFlagType clasifica la anomalia detectada por el auditor.
type BiasFlagType string

const (
	BiasConfidenceOutlier BiasFlagType = "confidence_outlier"
	BiasCohortSkew        BiasFlagType = "cohort_skew"
	BiasPatternOverfit    BiasFlagType = "pattern_overfit"
)

// BiasSeverity ordena la gravedad de un flag.
type BiasSeverity string

const (
	SeverityLow      BiasSeverity = "low"
	SeverityMedium   BiasSeverity = "medium"
	SeverityHigh     BiasSeverity = "high"
	SeverityCritical BiasSeverity = "critical"
)

// severityRank permite comparar severidades para el umbral de retencion.
var severityRank = map[BiasSeverity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast indica si la severidad alcanza o supera el umbral dado.
func (s BiasSeverity) AtLeast(threshold BiasSeverity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// BiasFlag es una anotacion de auditoria sobre un TrustScoreResult.
// No es un error: no bloquea la persistencia salvo que la severidad
// supere el umbral critico configurado.
type BiasFlag struct {
	ID                string       `json:"id"`
	ResultID          string       `json:"result_id"`
	Type              BiasFlagType `json:"type"`
	Severity          BiasSeverity `json:"severity"`
	Description       string       `json:"description"`
	MitigationApplied bool         `json:"mitigation_applied"`
	CreatedAt         time.Time    `json:"created_at"`
	ResolvedAt        *time.Time   `json:"resolved_at,omitempty"`
}

// CohortStats resume puntajes previos anonimizados para el chequeo de sesgo.
type CohortStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}
