package domain

import "time"

// PersonalityTraits son los cinco ejes Big Five mas la confianza del
// analisis. Cada eje es independiente y esta acotado a [0,100]; las
// sumas no se normalizan.
type PersonalityTraits struct {
	Conscientiousness float64 `json:"conscientiousness"`
	Neuroticism       float64 `json:"neuroticism"`
	Agreeableness     float64 `json:"agreeableness"`
	Openness          float64 `json:"openness"`
	Extraversion      float64 `json:"extraversion"`
	Confidence        float64 `json:"confidence"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// InRange valida que todos los ejes y la confianza esten en [0,100].
func (t PersonalityTraits) InRange() bool {
	for _, v := range []float64{
		t.Conscientiousness,
		t.Neuroticism,
		t.Agreeableness,
		t.Openness,
		t.Extraversion,
		t.Confidence,
	} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}
