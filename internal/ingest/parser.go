package ingest

import (
	"fmt"

	"trustlens/internal/domain"
)

// Claves aceptadas por el formato generico, en minusculas.
var (
	timestampKeys = []string{"timestamp", "date", "time", "datetime", "sent_at", "created_at"}
	senderKeys    = []string{"sender", "from", "author", "name", "user"}
	contentKeys   = []string{"content", "text", "message", "body"}
)

// ParseResult es la salida de cualquier parser: la secuencia ordenada de
// registros mas cuantos registros individuales se saltaron por corrupcion.
type ParseResult struct {
	Records []domain.MessageRecord
	Skipped int
}

// Parser convierte bytes crudos de un formato detectado en registros
// normalizados. Un registro malformado aislado se salta con aviso; una
// rotura estructural devuelve MalformedInputError.
type Parser interface {
	Parse(data []byte) (ParseResult, error)
}

// ForFormat devuelve el parser del formato detectado.
func ForFormat(format domain.MessageFormat) (Parser, error) {
	switch format {
	case domain.FormatChatJSON:
		return &chatJSONParser{}, nil
	case domain.FormatChatLog:
		return &chatLogParser{}, nil
	case domain.FormatMailbox:
		return &mailboxParser{}, nil
	case domain.FormatGeneric:
		return &genericParser{}, nil
	default:
		return nil, fmt.Errorf("%w: no parser for format %q", domain.ErrUnrecognizedFormat, format)
	}
}

// reindex asigna el indice de secuencia final preservando el orden del archivo.
func reindex(records []domain.MessageRecord) []domain.MessageRecord {
	for i := range records {
		records[i].Index = i
	}
	return records
}
