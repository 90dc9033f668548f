package service

import (
	"testing"
	"time"

	"trustlens/internal/domain"
)

func testTraits(c, n, a, o, e float64) domain.PersonalityTraits {
	return domain.PersonalityTraits{
		Conscientiousness: c,
		Neuroticism:       n,
		Agreeableness:     a,
		Openness:          o,
		Extraversion:      e,
		Confidence:        80,
	}
}

func TestComputeBestCaseClampsToCeiling(t *testing.T) {
	engine := NewScoringEngine(70, 40, 30*24*time.Hour)

	result := engine.Compute(testTraits(100, 0, 100, 100, 100), time.Now())

	if result.Score != 100 {
		t.Fatalf("expected score 100, got %d", result.Score)
	}
	if result.MappedScore != 850 {
		t.Fatalf("expected mapped score 850, got %d", result.MappedScore)
	}
	if result.RiskTier != domain.RiskLow {
		t.Fatalf("expected low risk tier, got %s", result.RiskTier)
	}
}

func TestComputeWorstCaseClampsToFloor(t *testing.T) {
	engine := NewScoringEngine(70, 40, 30*24*time.Hour)

	result := engine.Compute(testTraits(0, 100, 0, 0, 0), time.Now())

	if result.Score != 0 {
		t.Fatalf("expected score 0, got %d", result.Score)
	}
	if result.MappedScore != 300 {
		t.Fatalf("expected mapped score 300, got %d", result.MappedScore)
	}
	if result.RiskTier != domain.RiskHigh {
		t.Fatalf("expected high risk tier, got %s", result.RiskTier)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	engine := NewScoringEngine(70, 40, 30*24*time.Hour)
	traits := testTraits(72, 31, 64, 55, 48)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := engine.Compute(traits, now)
	second := engine.Compute(traits, now)

	if first.Score != second.Score || first.MappedScore != second.MappedScore || first.RiskTier != second.RiskTier {
		t.Fatalf("same traits produced different results: %+v vs %+v", first, second)
	}
}

func TestComputeWeightsFavorConscientiousness(t *testing.T) {
	engine := NewScoringEngine(70, 40, 30*24*time.Hour)
	now := time.Now()

	highC := engine.Compute(testTraits(90, 50, 50, 50, 50), now)
	highE := engine.Compute(testTraits(50, 50, 50, 50, 90), now)

	if highC.Score <= highE.Score {
		t.Fatalf("conscientiousness should weigh more than extraversion: %d vs %d", highC.Score, highE.Score)
	}
}

func TestTierBoundaries(t *testing.T) {
	engine := NewScoringEngine(70, 40, 30*24*time.Hour)

	cases := []struct {
		score int
		tier  domain.RiskTier
	}{
		{score: 70, tier: domain.RiskLow},
		{score: 69, tier: domain.RiskMedium},
		{score: 40, tier: domain.RiskMedium},
		{score: 39, tier: domain.RiskHigh},
		{score: 0, tier: domain.RiskHigh},
	}
	for _, tc := range cases {
		if got := engine.tierFor(tc.score); got != tc.tier {
			t.Fatalf("score %d: expected tier %s, got %s", tc.score, tc.tier, got)
		}
	}
}

func TestRescoreRecomputesMappedAndTier(t *testing.T) {
	engine := NewScoringEngine(70, 40, 30*24*time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	original := engine.Compute(testTraits(100, 0, 100, 100, 100), now)

	adjusted := engine.Rescore(original, 65)

	if adjusted.Score != 65 {
		t.Fatalf("expected score 65, got %d", adjusted.Score)
	}
	if adjusted.MappedScore != 300+358 {
		t.Fatalf("expected mapped score 658, got %d", adjusted.MappedScore)
	}
	if adjusted.RiskTier != domain.RiskMedium {
		t.Fatalf("expected medium tier, got %s", adjusted.RiskTier)
	}
	if !adjusted.ComputedAt.Equal(original.ComputedAt) {
		t.Fatalf("rescore must not touch timestamps")
	}
}

func TestComputeSetsValidityWindow(t *testing.T) {
	engine := NewScoringEngine(70, 40, 48*time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	result := engine.Compute(testTraits(60, 40, 60, 50, 50), now)

	if !result.ExpiresAt.Equal(now.Add(48 * time.Hour)) {
		t.Fatalf("expected expiry 48h after computation, got %s", result.ExpiresAt)
	}
}
