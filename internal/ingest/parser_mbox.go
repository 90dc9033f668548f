package ingest

import (
	"bufio"
	"bytes"
	"io"
	"net/mail"
	"strings"

	"trustlens/internal/domain"
)

// mailboxParser procesa un mailbox generico: mensajes RFC-822
// concatenados separados por lineas "From ".
type mailboxParser struct{}

func (p *mailboxParser) Parse(data []byte) (ParseResult, error) {
	chunks := splitMailbox(data)
	if len(chunks) == 0 {
		return ParseResult{}, &domain.MalformedInputError{Line: 1, Reason: "no mailbox messages found"}
	}

	var result ParseResult
	for _, chunk := range chunks {
		record, ok := parseMailMessage(chunk)
		if !ok {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, record)
	}

	result.Records = reindex(result.Records)
	return result, nil
}

// splitMailbox corta el archivo en mensajes usando el separador
// "From " al inicio de linea.
func splitMailbox(data []byte) [][]byte {
	var chunks [][]byte
	var current bytes.Buffer

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	flush := func() {
		if current.Len() > 0 {
			chunk := make([]byte, current.Len())
			copy(chunk, current.Bytes())
			chunks = append(chunks, chunk)
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "From ") {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return chunks
}

func parseMailMessage(chunk []byte) (domain.MessageRecord, bool) {
	msg, err := mail.ReadMessage(bytes.NewReader(chunk))
	if err != nil {
		return domain.MessageRecord{}, false
	}

	ts, err := msg.Header.Date()
	if err != nil {
		return domain.MessageRecord{}, false
	}

	sender := msg.Header.Get("From")
	if addr, err := mail.ParseAddress(sender); err == nil {
		if addr.Name != "" {
			sender = addr.Name
		} else {
			sender = addr.Address
		}
	}
	if strings.TrimSpace(sender) == "" {
		return domain.MessageRecord{}, false
	}

	body, err := io.ReadAll(io.LimitReader(msg.Body, 256*1024))
	if err != nil || strings.TrimSpace(string(body)) == "" {
		return domain.MessageRecord{}, false
	}

	return domain.MessageRecord{
		Timestamp: ts.UTC(),
		Sender:    sender,
		Body:      strings.TrimSpace(string(body)),
		Platform:  "email",
	}, true
}
