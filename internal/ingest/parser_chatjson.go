package ingest

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"trustlens/internal/domain"
)

// chatJSONParser procesa el export JSON de chat: un array de objetos
// {timestamp, sender, content, platform}.
type chatJSONParser struct{}

type chatJSONEntry struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Sender    string          `json:"sender"`
	Content   string          `json:"content"`
	Platform  string          `json:"platform"`
}

func (p *chatJSONParser) Parse(data []byte) (ParseResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return ParseResult{}, &domain.MalformedInputError{Offset: dec.InputOffset(), Reason: "not valid JSON"}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return ParseResult{}, &domain.MalformedInputError{Offset: dec.InputOffset(), Reason: "expected top-level JSON array"}
	}

	var result ParseResult
	for dec.More() {
		// Decodificamos primero a RawMessage para que un elemento roto
		// se pueda saltar sin abortar el stream completo.
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return result, &domain.MalformedInputError{Offset: dec.InputOffset(), Reason: err.Error()}
		}

		var entry chatJSONEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			result.Skipped++
			continue
		}
		if strings.TrimSpace(entry.Sender) == "" || strings.TrimSpace(entry.Content) == "" {
			result.Skipped++
			continue
		}
		ts, ok := parseFlexibleTimestamp(entry.Timestamp)
		if !ok {
			result.Skipped++
			continue
		}

		result.Records = append(result.Records, domain.MessageRecord{
			Timestamp: ts,
			Sender:    entry.Sender,
			Body:      entry.Content,
			Platform:  entry.Platform,
		})
	}

	result.Records = reindex(result.Records)
	return result, nil
}

// parseFlexibleTimestamp acepta RFC3339, fecha simple o epoch en
// segundos/milisegundos.
func parseFlexibleTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02",
		} {
			if ts, err := time.Parse(layout, asString); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil && asNumber > 0 {
		// Heuristica: valores mayores a 10^12 son milisegundos.
		if asNumber > 1e12 {
			return time.UnixMilli(int64(asNumber)).UTC(), true
		}
		return time.Unix(int64(asNumber), 0).UTC(), true
	}

	return time.Time{}, false
}
