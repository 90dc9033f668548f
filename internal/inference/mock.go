package inference

import (
	"context"

	"trustlens/internal/domain"
)

// MockClient permite tests sin llamar al motor real.
type MockClient struct {
	Traits domain.PersonalityTraits
	Err    error
	Calls  int
}

func (m *MockClient) InferTraits(ctx context.Context, texts []string) (domain.PersonalityTraits, error) {
	m.Calls++
	return m.Traits, m.Err
}
