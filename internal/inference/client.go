package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"trustlens/internal/domain"
)

// Client define la interfaz hacia el motor externo de inferencia de
// personalidad. Recibe los cuerpos ya sanitizados y devuelve los rasgos
// Big Five con su confianza.
type Client interface {
	InferTraits(ctx context.Context, texts []string) (domain.PersonalityTraits, error)
}

// HTTPClient llama al motor via HTTP. No guarda estado compartido entre
// trabajos: solo configuracion (credenciales, politica de reintentos).
type HTTPClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	maxAttempts int
	timeout     time.Duration
	backoffBase time.Duration
	maxMessages int
	logger      *zap.Logger
}

// NewHTTPClient construye el cliente con la politica de reintentos y
// timeout por intento.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, maxAttempts, maxMessages int, logger *zap.Logger) *HTTPClient {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxMessages <= 0 {
		maxMessages = 500
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		timeout:     timeout,
		backoffBase: 200 * time.Millisecond,
		maxMessages: maxMessages,
		logger:      logger,
	}
}

type inferRequest struct {
	Texts []string `json:"texts"`
}

// inferResponse usa punteros para distinguir campo ausente de cero.
type inferResponse struct {
	Conscientiousness *float64 `json:"conscientiousness"`
	Neuroticism       *float64 `json:"neuroticism"`
	Agreeableness     *float64 `json:"agreeableness"`
	Openness          *float64 `json:"openness"`
	Extraversion      *float64 `json:"extraversion"`
	Confidence        *float64 `json:"confidence"`
}

// InferTraits ejecuta la llamada con reintentos y backoff exponencial.
// Se reintenta solo ante 429, errores de red, timeouts y 5xx; una
// respuesta con forma invalida es violacion de contrato y se surface
// de inmediato.
func (c *HTTPClient) InferTraits(ctx context.Context, texts []string) (domain.PersonalityTraits, error) {
	if len(texts) > c.maxMessages {
		texts = texts[:c.maxMessages]
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		traits, err, retryable := c.attempt(ctx, texts)
		if err == nil {
			return traits, nil
		}
		lastErr = err

		if !retryable {
			return domain.PersonalityTraits{}, err
		}
		if c.logger != nil {
			c.logger.Warn("inference attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Error(err),
			)
		}
		if attempt == c.maxAttempts {
			break
		}
		if err := sleepWithContext(ctx, c.backoffBase*(1<<(attempt-1))); err != nil {
			return domain.PersonalityTraits{}, fmt.Errorf("%w: %v", domain.ErrInferenceTimeout, err)
		}
	}

	return domain.PersonalityTraits{}, lastErr
}

// attempt hace una llamada acotada por el timeout configurado.
// Devuelve ademas si el error amerita otro intento.
func (c *HTTPClient) attempt(ctx context.Context, texts []string) (domain.PersonalityTraits, error, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(inferRequest{Texts: texts})
	if err != nil {
		return domain.PersonalityTraits{}, fmt.Errorf("marshal request: %w", err), false
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/personality/analyze", bytes.NewReader(body))
	if err != nil {
		return domain.PersonalityTraits{}, fmt.Errorf("create request: %w", err), false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() != nil {
			return domain.PersonalityTraits{}, fmt.Errorf("%w: %v", domain.ErrInferenceTimeout, err), true
		}
		return domain.PersonalityTraits{}, fmt.Errorf("%w: %v", domain.ErrInferenceServiceError, err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PersonalityTraits{}, fmt.Errorf("%w: read body: %v", domain.ErrInferenceServiceError, err), true
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.PersonalityTraits{}, fmt.Errorf("%w: status=429", domain.ErrRateLimited), true
	case resp.StatusCode >= 500:
		return domain.PersonalityTraits{}, fmt.Errorf("%w: status=%d", domain.ErrInferenceServiceError, resp.StatusCode), true
	case resp.StatusCode >= 400:
		return domain.PersonalityTraits{}, fmt.Errorf("%w: status=%d", domain.ErrInferenceServiceError, resp.StatusCode), false
	}

	traits, err := validateResponse(respBody)
	if err != nil {
		// Violacion de contrato del motor: mayor severidad, sin reintento.
		if c.logger != nil {
			c.logger.Error("inference contract violation", zap.Error(err))
		}
		return domain.PersonalityTraits{}, err, false
	}

	return traits, nil, false
}

// validateResponse exige los cinco rasgos mas confidence, numericos y
// en [0,100]. Cualquier violacion es InvalidResponseShape aunque el
// HTTP haya sido 200.
func validateResponse(body []byte) (domain.PersonalityTraits, error) {
	var parsed inferResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.PersonalityTraits{}, fmt.Errorf("%w: %v", domain.ErrInvalidResponseShape, err)
	}

	fields := map[string]*float64{
		"conscientiousness": parsed.Conscientiousness,
		"neuroticism":       parsed.Neuroticism,
		"agreeableness":     parsed.Agreeableness,
		"openness":          parsed.Openness,
		"extraversion":      parsed.Extraversion,
		"confidence":        parsed.Confidence,
	}
	for name, value := range fields {
		if value == nil {
			return domain.PersonalityTraits{}, fmt.Errorf("%w: missing field %s", domain.ErrInvalidResponseShape, name)
		}
		if *value < 0 || *value > 100 {
			return domain.PersonalityTraits{}, fmt.Errorf("%w: field %s out of range: %f", domain.ErrInvalidResponseShape, name, *value)
		}
	}

	return domain.PersonalityTraits{
		Conscientiousness: *parsed.Conscientiousness,
		Neuroticism:       *parsed.Neuroticism,
		Agreeableness:     *parsed.Agreeableness,
		Openness:          *parsed.Openness,
		Extraversion:      *parsed.Extraversion,
		Confidence:        *parsed.Confidence,
		AnalyzedAt:        time.Now().UTC(),
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
