package service

import (
	"math"
	"time"

	"trustlens/internal/domain"
)

// Pesos del transform de rasgos a puntaje. El neuroticismo entra
// invertido: estabilidad emocional suma.
const (
	weightConscientiousness = 0.40
	weightStability         = 0.25
	weightAgreeableness     = 0.20
	weightOpenness          = 0.10
	weightExtraversion      = 0.05
)

// ScoringEngine es una funcion pura de rasgos a TrustScoreResult.
// Sin estado oculto: mismos rasgos, mismo resultado.
type ScoringEngine struct {
	lowThreshold    int
	mediumThreshold int
	validity        time.Duration
}

// NewScoringEngine recibe los umbrales de riesgo y la ventana de
// validez del resultado como politica configurable.
func NewScoringEngine(lowThreshold, mediumThreshold int, validity time.Duration) *ScoringEngine {
	if lowThreshold <= 0 {
		lowThreshold = 70
	}
	if mediumThreshold <= 0 {
		mediumThreshold = 40
	}
	if validity <= 0 {
		validity = 30 * 24 * time.Hour
	}
	return &ScoringEngine{
		lowThreshold:    lowThreshold,
		mediumThreshold: mediumThreshold,
		validity:        validity,
	}
}

// Compute deriva el puntaje normalizado, el rango tradicional y el
// tier de riesgo. El clamp protege contra sobrepasos de punto flotante
// en los rasgos de borde.
func (e *ScoringEngine) Compute(traits domain.PersonalityTraits, now time.Time) domain.TrustScoreResult {
	raw := traits.Conscientiousness*weightConscientiousness +
		(100-traits.Neuroticism)*weightStability +
		traits.Agreeableness*weightAgreeableness +
		traits.Openness*weightOpenness +
		traits.Extraversion*weightExtraversion

	score := clampScore(int(math.Round(raw)))

	return domain.TrustScoreResult{
		Score:       score,
		MappedScore: mapToTraditional(score),
		RiskTier:    e.tierFor(score),
		Confidence:  traits.Confidence,
		Traits:      traits,
		ComputedAt:  now.UTC(),
		ExpiresAt:   now.UTC().Add(e.validity),
	}
}

// Rescore recalcula rango tradicional y tier tras un ajuste del
// auditor, sin tocar timestamps ni confianza.
func (e *ScoringEngine) Rescore(result domain.TrustScoreResult, newScore int) domain.TrustScoreResult {
	newScore = clampScore(newScore)
	result.Score = newScore
	result.MappedScore = mapToTraditional(newScore)
	result.RiskTier = e.tierFor(newScore)
	return result
}

func (e *ScoringEngine) tierFor(score int) domain.RiskTier {
	switch {
	case score >= e.lowThreshold:
		return domain.RiskLow
	case score >= e.mediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// mapToTraditional reescala linealmente [0,100] sobre [300,850].
func mapToTraditional(score int) int {
	return 300 + int(math.Round(float64(score)*5.5))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
