package ingest

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"trustlens/internal/domain"
)

// Detection es el resultado del detector de formato.
type Detection struct {
	Format     domain.MessageFormat
	Confidence float64
}

// chatLogLineRegex reconoce el patron "M/D/YY, H:MM AM - Sender: mensaje".
var chatLogLineRegex = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}, \d{1,2}:\d{2}\s?(?:[AP]M)? - [^:]+: `)

// Detect clasifica los bytes crudos en un formato conocido. La deteccion
// es por firma estructural, nunca por extension. El hint del usuario es
// consultivo: se revalida contra la firma y un desajuste degrada a
// autodeteccion en lugar de confiar a ciegas.
func Detect(data []byte, declaredMIME, hint string) (Detection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Detection{}, domain.ErrUnrecognizedFormat
	}

	if hinted := formatFromHint(hint); hinted != domain.FormatUnknown {
		if d, ok := matchSignature(data, hinted); ok {
			return d, nil
		}
		// El hint no coincide con la estructura: seguimos con autodeteccion.
	}

	// Orden de prueba: de la firma mas estricta a la mas laxa.
	for _, format := range []domain.MessageFormat{
		domain.FormatChatJSON,
		domain.FormatChatLog,
		domain.FormatMailbox,
		domain.FormatGeneric,
	} {
		if d, ok := matchSignature(data, format); ok {
			return d, nil
		}
	}

	return Detection{}, domain.ErrUnrecognizedFormat
}

func formatFromHint(hint string) domain.MessageFormat {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "chat_json", "chatjson":
		return domain.FormatChatJSON
	case "chat_log", "chatlog", "txt":
		return domain.FormatChatLog
	case "mailbox", "mbox", "email":
		return domain.FormatMailbox
	case "generic", "json", "csv":
		return domain.FormatGeneric
	default:
		return domain.FormatUnknown
	}
}

func matchSignature(data []byte, format domain.MessageFormat) (Detection, bool) {
	switch format {
	case domain.FormatChatJSON:
		if hasChatJSONSignature(data) {
			return Detection{Format: format, Confidence: 0.95}, true
		}
	case domain.FormatChatLog:
		if ratio := chatLogLineRatio(data); ratio >= 0.5 {
			return Detection{Format: format, Confidence: ratio}, true
		}
	case domain.FormatMailbox:
		if hasMailboxSignature(data) {
			return Detection{Format: format, Confidence: 0.9}, true
		}
	case domain.FormatGeneric:
		if hasGenericSignature(data) {
			return Detection{Format: format, Confidence: 0.7}, true
		}
	}
	return Detection{}, false
}

// hasChatJSONSignature busca un array JSON cuyo primer objeto traiga
// los campos timestamp/sender/content del export de chat.
func hasChatJSONSignature(data []byte) bool {
	first, ok := firstJSONObject(data)
	if !ok {
		return false
	}
	_, hasTS := first["timestamp"]
	_, hasSender := first["sender"]
	_, hasContent := first["content"]
	return hasTS && hasSender && hasContent
}

// hasGenericSignature acepta JSON con claves flexibles o CSV con las
// columnas minimas timestamp/sender/content.
func hasGenericSignature(data []byte) bool {
	if first, ok := firstJSONObject(data); ok {
		return hasFlexibleKey(first, timestampKeys) &&
			hasFlexibleKey(first, senderKeys) &&
			hasFlexibleKey(first, contentKeys)
	}

	header := firstLine(data)
	if !strings.Contains(header, ",") {
		return false
	}
	cols := splitCSVHeader(header)
	return findColumn(cols, timestampKeys) >= 0 &&
		findColumn(cols, senderKeys) >= 0 &&
		findColumn(cols, contentKeys) >= 0
}

func hasMailboxSignature(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	if bytes.HasPrefix(bytes.TrimLeft(head, "\n\r "), []byte("From ")) {
		return true
	}
	return bytes.Contains(head, []byte("Message-ID:")) && bytes.Contains(head, []byte("From:"))
}

// chatLogLineRatio mide que fraccion de las primeras lineas no vacias
// sigue el patron de export de chat en texto.
func chatLogLineRatio(data []byte) float64 {
	lines := strings.Split(string(sample(data, 16*1024)), "\n")
	var seen, matched int
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if chatLogLineRegex.MatchString(line) {
			matched++
		}
		if seen >= 20 {
			break
		}
	}
	if seen == 0 {
		return 0
	}
	return float64(matched) / float64(seen)
}

// firstJSONObject decodifica el primer elemento de un array JSON sin
// cargar el archivo completo.
func firstJSONObject(data []byte) (map[string]json.RawMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, false
	}
	if !dec.More() {
		return nil, false
	}
	var first map[string]json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return nil, false
	}
	return first, true
}

func hasFlexibleKey(obj map[string]json.RawMessage, candidates []string) bool {
	for key := range obj {
		lower := strings.ToLower(key)
		for _, c := range candidates {
			if lower == c {
				return true
			}
		}
	}
	return false
}

func firstLine(data []byte) string {
	s := string(sample(data, 8*1024))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimRight(s, "\r")
}

func splitCSVHeader(header string) []string {
	parts := strings.Split(header, ",")
	for i := range parts {
		parts[i] = strings.ToLower(strings.Trim(strings.TrimSpace(parts[i]), `"`))
	}
	return parts
}

func findColumn(cols []string, candidates []string) int {
	for i, col := range cols {
		for _, c := range candidates {
			if col == c {
				return i
			}
		}
	}
	return -1
}

func sample(data []byte, max int) []byte {
	if len(data) > max {
		return data[:max]
	}
	return data
}
