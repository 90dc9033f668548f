package domain

import "time"

// MessageFormat identifica el formato de exportacion detectado.
type MessageFormat string

const (
	FormatChatJSON MessageFormat = "chat_json"  // export JSON de plataforma de chat
	FormatChatLog  MessageFormat = "chat_log"   // export de texto linea por linea
	FormatMailbox  MessageFormat = "mailbox"    // mbox RFC-822 concatenado
	FormatGeneric  MessageFormat = "generic"    // JSON/CSV generico con columnas conocidas
	FormatUnknown  MessageFormat = ""
)

// MessageRecord es un mensaje normalizado dentro del pipeline.
// Es efimero: vive solo en memoria o en el store transitorio cifrado,
// nunca se persiste en crudo.
type MessageRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Platform  string    `json:"platform,omitempty"`
	Index     int       `json:"index"`
}
