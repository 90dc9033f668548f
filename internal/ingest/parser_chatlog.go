package ingest

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"time"

	"trustlens/internal/domain"
)

// chatLogParser procesa el export de chat en texto plano:
// "M/D/YY, H:MM AM/PM - Sender: mensaje". Las lineas sin encabezado se
// tratan como continuacion del mensaje anterior.
type chatLogParser struct{}

var chatLogEntryRegex = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}, \d{1,2}:\d{2}(?:\s?[AP]M)?) - ([^:]+): (.*)$`)

var chatLogLayouts = []string{
	"1/2/06, 3:04 PM",
	"1/2/2006, 3:04 PM",
	"1/2/06, 15:04",
	"1/2/2006, 15:04",
}

func (p *chatLogParser) Parse(data []byte) (ParseResult, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var result ParseResult
	var lineNo int
	var sawHeader bool

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		m := chatLogEntryRegex.FindStringSubmatch(line)
		if m == nil {
			// Continuacion de un mensaje multilinea, o linea de sistema
			// al inicio del archivo que se descarta.
			if n := len(result.Records); n > 0 {
				result.Records[n-1].Body += "\n" + line
			}
			continue
		}
		sawHeader = true

		ts, ok := parseChatLogTime(m[1])
		if !ok {
			result.Skipped++
			continue
		}
		sender := strings.TrimSpace(m[2])
		body := m[3]
		if sender == "" || strings.TrimSpace(body) == "" {
			result.Skipped++
			continue
		}

		result.Records = append(result.Records, domain.MessageRecord{
			Timestamp: ts,
			Sender:    sender,
			Body:      body,
			Platform:  "chat",
		})
	}

	if err := scanner.Err(); err != nil {
		return ParseResult{}, &domain.MalformedInputError{Line: lineNo, Reason: err.Error()}
	}
	if !sawHeader {
		return ParseResult{}, &domain.MalformedInputError{Line: 1, Reason: "no chat log entries found"}
	}

	result.Records = reindex(result.Records)
	return result, nil
}

func parseChatLogTime(value string) (time.Time, bool) {
	// Algunos exports usan espacios no separables antes de AM/PM.
	value = strings.ReplaceAll(value, " ", " ")
	value = strings.ReplaceAll(value, " ", " ")
	for _, layout := range chatLogLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
