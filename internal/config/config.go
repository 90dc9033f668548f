package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuracion del servicio. Los umbrales del
// pipeline son politica configurable, no constantes.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int    `env:"DB_MIN_CONNS" envDefault:"1"`

	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Clave hex de 32 bytes para cifrar el contenido transitorio.
	ContentEncryptionKey string `env:"CONTENT_ENCRYPTION_KEY"`

	InferenceBaseURL        string `env:"INFERENCE_BASE_URL" envDefault:"https://api.personainsights.example/v1"`
	InferenceAPIKey         string `env:"INFERENCE_API_KEY"`
	InferenceTimeoutSeconds int    `env:"INFERENCE_TIMEOUT_SECONDS" envDefault:"30"`
	InferenceMaxAttempts    int    `env:"INFERENCE_MAX_ATTEMPTS" envDefault:"3"`
	InferenceMaxMessages    int    `env:"INFERENCE_MAX_MESSAGES" envDefault:"500"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	MinMessages    int   `env:"MIN_MESSAGES" envDefault:"50"`
	MaxConcurrent  int64 `env:"MAX_CONCURRENT_JOBS" envDefault:"4"`

	RetentionHours         int `env:"RETENTION_HOURS" envDefault:"24"`
	ScoreValidityDays      int `env:"SCORE_VALIDITY_DAYS" envDefault:"30"`
	CleanupIntervalMinutes int `env:"CLEANUP_INTERVAL_MINUTES" envDefault:"10"`

	RiskLowThreshold    int `env:"RISK_LOW_THRESHOLD" envDefault:"70"`
	RiskMediumThreshold int `env:"RISK_MEDIUM_THRESHOLD" envDefault:"40"`

	BiasConfidenceFloor  float64 `env:"BIAS_CONFIDENCE_FLOOR" envDefault:"60"`
	BiasExtremeLow       int     `env:"BIAS_EXTREME_LOW" envDefault:"5"`
	BiasExtremeHigh      int     `env:"BIAS_EXTREME_HIGH" envDefault:"95"`
	BiasCohortSigma      float64 `env:"BIAS_COHORT_SIGMA" envDefault:"2.0"`
	BiasCohortMinSamples int     `env:"BIAS_COHORT_MIN_SAMPLES" envDefault:"30"`
	BiasShrinkFactor     float64 `env:"BIAS_SHRINK_FACTOR" envDefault:"0.30"`
	BiasWithholdSeverity string  `env:"BIAS_WITHHOLD_SEVERITY" envDefault:"critical"`

	UploadRateWindowMinutes int `env:"UPLOAD_RATE_WINDOW_MINUTES" envDefault:"60"`
	UploadRateMax           int `env:"UPLOAD_RATE_MAX" envDefault:"5"`

	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	SMTPFrom      string `env:"SMTP_FROM"`
	SMTPFromName  string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS    bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	ReviewerEmail string `env:"REVIEWER_EMAIL"`
}

// LoadConfig carga la configuracion desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
