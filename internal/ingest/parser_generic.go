package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"trustlens/internal/domain"
)

// genericParser procesa el formato estructurado generico: JSON o CSV
// con columnas timestamp/sender/content bajo nombres flexibles.
type genericParser struct{}

func (p *genericParser) Parse(data []byte) (ParseResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return p.parseJSON(data)
	}
	return p.parseCSV(data)
}

func (p *genericParser) parseJSON(data []byte) (ParseResult, error) {
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
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return result, &domain.MalformedInputError{Offset: dec.InputOffset(), Reason: err.Error()}
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			result.Skipped++
			continue
		}

		record, ok := recordFromFlexibleObject(obj)
		if !ok {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, record)
	}

	result.Records = reindex(result.Records)
	return result, nil
}

func (p *genericParser) parseCSV(data []byte) (ParseResult, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return ParseResult{}, &domain.MalformedInputError{Line: 1, Reason: "missing CSV header"}
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	tsCol := findColumn(header, timestampKeys)
	senderCol := findColumn(header, senderKeys)
	contentCol := findColumn(header, contentKeys)
	if tsCol < 0 || senderCol < 0 || contentCol < 0 {
		return ParseResult{}, &domain.MalformedInputError{Line: 1, Reason: "CSV header lacks timestamp/sender/content columns"}
	}

	var result ParseResult
	line := 1
	for {
		line++
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Una fila rota se salta; el resto del archivo sigue.
			result.Skipped++
			continue
		}
		if len(row) <= tsCol || len(row) <= senderCol || len(row) <= contentCol {
			result.Skipped++
			continue
		}

		ts, ok := parseFlexibleTimestamp(json.RawMessage(`"` + row[tsCol] + `"`))
		if !ok {
			result.Skipped++
			continue
		}
		sender := strings.TrimSpace(row[senderCol])
		body := strings.TrimSpace(row[contentCol])
		if sender == "" || body == "" {
			result.Skipped++
			continue
		}

		result.Records = append(result.Records, domain.MessageRecord{
			Timestamp: ts,
			Sender:    sender,
			Body:      body,
			Platform:  "generic",
		})
	}

	result.Records = reindex(result.Records)
	return result, nil
}

// recordFromFlexibleObject arma un registro desde un objeto JSON con
// claves bajo cualquiera de los alias conocidos.
func recordFromFlexibleObject(obj map[string]json.RawMessage) (domain.MessageRecord, bool) {
	lower := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		lower[strings.ToLower(k)] = v
	}

	lookup := func(candidates []string) (json.RawMessage, bool) {
		for _, c := range candidates {
			if v, ok := lower[c]; ok {
				return v, true
			}
		}
		return nil, false
	}

	tsRaw, ok := lookup(timestampKeys)
	if !ok {
		return domain.MessageRecord{}, false
	}
	ts, ok := parseFlexibleTimestamp(tsRaw)
	if !ok {
		return domain.MessageRecord{}, false
	}

	senderRaw, ok := lookup(senderKeys)
	if !ok {
		return domain.MessageRecord{}, false
	}
	contentRaw, ok := lookup(contentKeys)
	if !ok {
		return domain.MessageRecord{}, false
	}

	var sender, body string
	if json.Unmarshal(senderRaw, &sender) != nil || strings.TrimSpace(sender) == "" {
		return domain.MessageRecord{}, false
	}
	if json.Unmarshal(contentRaw, &body) != nil || strings.TrimSpace(body) == "" {
		return domain.MessageRecord{}, false
	}

	return domain.MessageRecord{
		Timestamp: ts,
		Sender:    sender,
		Body:      body,
		Platform:  "generic",
	}, true
}
