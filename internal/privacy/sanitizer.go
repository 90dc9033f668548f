package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"trustlens/internal/domain"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	// Minimo nueve digitos para no confundir fechas con telefonos.
	phoneRegex    = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	ibanRegex     = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)
	digitRunRegex = regexp.MustCompile(`\b\d{8,}\b`)
)

// Result es la salida del sanitizador: misma cantidad y orden de
// registros, con identificadores reemplazados por placeholders.
type Result struct {
	Records  []domain.MessageRecord
	Warnings int
}

// Sanitizer reemplaza identificadores directos por tokens estables
// dentro de un mismo trabajo. El mapeo real-a-placeholder vive solo
// durante la llamada y se descarta al retornar: nunca se persiste.
type Sanitizer struct {
	logger *zap.Logger
}

func NewSanitizer(logger *zap.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

// Sanitize procesa la secuencia completa. Un registro ilegible degrada
// a redaccion best-effort con warning; solo falla si no sobrevive
// ningun contenido.
func (s *Sanitizer) Sanitize(jobID string, records []domain.MessageRecord) (Result, error) {
	mapping := newPlaceholderMapping()

	// Primero registramos los remitentes en orden de aparicion para que
	// el placeholder de cada persona sea estable en todo el trabajo.
	for _, r := range records {
		mapping.personFor(r.Sender)
	}

	out := make([]domain.MessageRecord, len(records))
	var warnings, surviving int

	for i, r := range records {
		clean := r
		clean.Sender = mapping.personFor(r.Sender)

		body, ok := s.sanitizeBody(r.Body, mapping)
		if !ok {
			warnings++
		}
		clean.Body = body
		if strings.TrimSpace(body) != "" {
			surviving++
		}
		out[i] = clean
	}

	if surviving == 0 {
		return Result{}, fmt.Errorf("%w: no content survived redaction", domain.ErrSanitizationFailed)
	}
	if warnings > 0 && s.logger != nil {
		s.logger.Warn("best-effort redaction applied",
			zap.String("job_id", jobID),
			zap.Int("warnings", warnings),
		)
	}

	return Result{Records: out, Warnings: warnings}, nil
}

func (s *Sanitizer) sanitizeBody(body string, mapping *placeholderMapping) (string, bool) {
	ok := true
	if !isValidText(body) {
		body = strings.ToValidUTF8(body, " ")
		ok = false
	}

	// Orden importa: IBAN antes que telefonos para que la cola numerica
	// de una cuenta no se clasifique como telefono.
	body = emailRegex.ReplaceAllStringFunc(body, mapping.emailFor)
	body = ibanRegex.ReplaceAllStringFunc(body, mapping.accountFor)
	body = phoneRegex.ReplaceAllStringFunc(body, func(m string) string {
		if countDigits(m) < 9 {
			return m
		}
		return mapping.phoneFor(m)
	})
	body = digitRunRegex.ReplaceAllStringFunc(body, mapping.accountFor)
	body = mapping.replaceNames(body)

	return body, ok
}

// placeholderMapping asigna tokens estables por valor real dentro de un
// trabajo. Los tokens no son derivables del valor original.
type placeholderMapping struct {
	persons  map[string]string
	emails   map[string]string
	phones   map[string]string
	accounts map[string]string
}

func newPlaceholderMapping() *placeholderMapping {
	return &placeholderMapping{
		persons:  make(map[string]string),
		emails:   make(map[string]string),
		phones:   make(map[string]string),
		accounts: make(map[string]string),
	}
}

func (m *placeholderMapping) personFor(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Person-0"
	}
	if isPlaceholder(name, "Person-") {
		return name
	}
	if tok, ok := m.persons[name]; ok {
		return tok
	}
	tok := fmt.Sprintf("Person-%d", len(m.persons)+1)
	m.persons[name] = tok
	return tok
}

func (m *placeholderMapping) emailFor(value string) string {
	return stableToken(m.emails, value, "[email-%d]")
}

func (m *placeholderMapping) phoneFor(value string) string {
	return stableToken(m.phones, value, "[phone-%d]")
}

func (m *placeholderMapping) accountFor(value string) string {
	return stableToken(m.accounts, value, "[account-%d]")
}

// replaceNames redacta menciones de remitentes conocidos dentro de los
// cuerpos. Nombres mas largos primero para no dejar restos parciales.
func (m *placeholderMapping) replaceNames(body string) string {
	if len(m.persons) == 0 {
		return body
	}
	names := make([]string, 0, len(m.persons))
	for name := range m.persons {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		if len(name) < 3 {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		body = re.ReplaceAllString(body, m.persons[name])
	}
	return body
}

func stableToken(cache map[string]string, value, format string) string {
	if tok, ok := cache[value]; ok {
		return tok
	}
	tok := fmt.Sprintf(format, len(cache)+1)
	cache[value] = tok
	return tok
}

func isPlaceholder(value, prefix string) bool {
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	rest := value[len(prefix):]
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func isValidText(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return strings.ToValidUTF8(s, "") == s
}

// ContentHash calcula el hash sha256 del contenido ya sanitizado, en
// orden. Se computa solo despues de la redaccion: el texto crudo nunca
// alimenta el digest.
func ContentHash(records []domain.MessageRecord) string {
	h := sha256.New()
	for _, r := range records {
		h.Write([]byte(r.Sender))
		h.Write([]byte{0})
		h.Write([]byte(r.Body))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
