package inference

import (
	"context"
	"strings"
	"time"

	"trustlens/internal/domain"
)

// LexicalAnalyzer estima rasgos con marcadores lexicos locales. Se usa
// cuando no hay motor externo configurado y como sustrato determinista
// en tests. No reemplaza al motor real: es una aproximacion gruesa.
type LexicalAnalyzer struct{}

func NewLexicalAnalyzer() *LexicalAnalyzer {
	return &LexicalAnalyzer{}
}

// Marcadores de compromiso y planificacion financiera: suben
// conscientiousness y bajan neuroticism.
var commitmentMarkers = []string{
	"i will", "i promise", "on time", "as agreed", "paid", "payment sent",
	"budget", "saving", "savings", "planned", "scheduled", "confirmed",
	"deadline met", "transferred",
}

// Marcadores de promesas rotas y estres financiero: el efecto inverso.
var stressMarkers = []string{
	"can't pay", "cant pay", "couldn't pay", "pay you later", "forgot to pay",
	"i'm late", "im late", "missed the", "overdraft", "broke", "in debt",
	"stressed", "borrow again", "sorry again",
}

var politeMarkers = []string{
	"thanks", "thank you", "please", "appreciate", "no problem",
}

var rudeMarkers = []string{
	"whatever", "shut up", "don't care", "dont care", "leave me alone",
}

var curiosityMarkers = []string{
	"what if", "i read", "interesting", "did you know", "i wonder", "new idea",
}

var socialMarkers = []string{
	"let's meet", "lets meet", "party", "see you", "join us", "come over",
}

// InferTraits calcula los ejes a partir de la fraccion de mensajes que
// contiene cada familia de marcadores. Cada eje queda acotado a [0,100].
func (a *LexicalAnalyzer) InferTraits(_ context.Context, texts []string) (domain.PersonalityTraits, error) {
	if len(texts) == 0 {
		return domain.PersonalityTraits{}, domain.ErrInsufficientData
	}

	var commit, stress, polite, rude, curious, social int
	for _, text := range texts {
		lower := strings.ToLower(text)
		if containsAny(lower, commitmentMarkers) {
			commit++
		}
		if containsAny(lower, stressMarkers) {
			stress++
		}
		if containsAny(lower, politeMarkers) {
			polite++
		}
		if containsAny(lower, rudeMarkers) {
			rude++
		}
		if containsAny(lower, curiosityMarkers) {
			curious++
		}
		if containsAny(lower, socialMarkers) {
			social++
		}
	}

	total := float64(len(texts))
	commitRatio := float64(commit) / total
	stressRatio := float64(stress) / total

	traits := domain.PersonalityTraits{
		Conscientiousness: clamp(50 + 80*commitRatio - 70*stressRatio),
		Neuroticism:       clamp(45 - 60*commitRatio + 70*stressRatio),
		Agreeableness:     clamp(50 + 35*float64(polite)/total - 35*float64(rude)/total),
		Openness:          clamp(45 + 40*float64(curious)/total),
		Extraversion:      clamp(50 + 30*float64(social)/total),
		Confidence:        confidenceForSample(len(texts)),
		AnalyzedAt:        time.Now().UTC(),
	}
	return traits, nil
}

// confidenceForSample crece con el tamano de la muestra y satura en 95.
func confidenceForSample(n int) float64 {
	conf := 40 + float64(n)/2
	if conf > 95 {
		conf = 95
	}
	return conf
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
