package domain

import "time"

// RiskTier clasifica el resultado segun umbrales configurables.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// TrustScoreResult es la salida determinista del motor de puntaje.
// Inmutable una vez calculado; un nuevo analisis lo reemplaza marcando
// el anterior como superseded.
type TrustScoreResult struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	Score       int       `json:"score"`        // [0,100]
	MappedScore int       `json:"mapped_score"` // [300,850]
	RiskTier    RiskTier  `json:"risk_tier"`
	Confidence  float64   `json:"confidence"`
	Traits      PersonalityTraits `json:"traits"`
	Withheld    bool      `json:"withheld"`
	Superseded  bool      `json:"superseded"`
	ComputedAt  time.Time `json:"computed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired indica si el resultado ya no es valido y requiere re-analisis.
func (r TrustScoreResult) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
