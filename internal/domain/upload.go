package domain

import "time"

// UploadStatus representa el ciclo de vida de un trabajo de carga.
type UploadStatus string

const (
	StatusPending    UploadStatus = "pending"
	StatusValidating UploadStatus = "validating"
	StatusProcessing UploadStatus = "processing"
	StatusCompleted  UploadStatus = "completed"
	StatusFailed     UploadStatus = "failed"
	StatusExpired    UploadStatus = "expired"
)

// validTransitions define el grafo de transiciones permitidas.
// expired es alcanzable desde cualquier estado via el barrido de retencion.
var validTransitions = map[UploadStatus][]UploadStatus{
	StatusPending:    {StatusValidating, StatusFailed, StatusExpired},
	StatusValidating: {StatusProcessing, StatusFailed, StatusExpired},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusExpired},
	StatusCompleted:  {StatusExpired},
	StatusFailed:     {StatusExpired},
	StatusExpired:    {},
}

// CanTransition indica si el cambio de estado es legal.
func (s UploadStatus) CanTransition(to UploadStatus) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal indica si el estado no admite mas procesamiento.
func (s UploadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Pasos del pipeline reportados en current_step.
const (
	StepQueued     = "queued"
	StepValidating = "validating file"
	StepParsing    = "parsing messages"
	StepSanitizing = "sanitizing content"
	StepInferring  = "inferring traits"
	StepScoring    = "computing score"
	StepAuditing   = "auditing for bias"
	StepDone       = "done"
)

// UploadJob es el registro de una carga de historial de mensajes.
// Nunca contiene texto de mensajes: solo metadatos y el hash del
// contenido ya sanitizado.
type UploadJob struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Filename       string        `json:"filename"`
	DeclaredMIME   string        `json:"declared_mime"`
	DetectedFormat MessageFormat `json:"detected_format,omitempty"`
	SizeBytes      int64         `json:"size_bytes"`
	Status         UploadStatus  `json:"status"`
	Progress       int           `json:"progress"`
	CurrentStep    string        `json:"current_step"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	MessageCount   int           `json:"message_count"`
	ContentHash    string        `json:"content_hash,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at"`
}
