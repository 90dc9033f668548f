package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"trustlens/internal/domain"
)

func TestChatJSONParserHappyPath(t *testing.T) {
	data := `[
		{"timestamp":"2024-01-15T10:00:00Z","sender":"Ana","content":"hola","platform":"chat"},
		{"timestamp":1705312800,"sender":"Luis","content":"que tal"},
		{"timestamp":1705312900000,"sender":"Ana","content":"bien"}
	]`

	parser, err := ForFormat(domain.FormatChatJSON)
	if err != nil {
		t.Fatalf("expected parser, got %v", err)
	}
	result, err := parser.Parse([]byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(result.Records))
	}
	if result.Skipped != 0 {
		t.Fatalf("expected no skipped records, got %d", result.Skipped)
	}
	for i, r := range result.Records {
		if r.Index != i {
			t.Fatalf("expected sequential index %d, got %d", i, r.Index)
		}
		if r.Timestamp.IsZero() {
			t.Fatalf("expected parsed timestamp at index %d", i)
		}
	}
	if result.Records[1].Sender != "Luis" {
		t.Fatalf("expected sender Luis, got %s", result.Records[1].Sender)
	}
}

func TestChatJSONParserSkipsMalformedRecord(t *testing.T) {
	data := `[
		{"timestamp":"2024-01-15T10:00:00Z","sender":"Ana","content":"hola"},
		{"timestamp":"not-a-date","sender":"Luis","content":"rota"},
		{"sender":"Luis","content":"sin fecha"},
		{"timestamp":"2024-01-15T10:02:00Z","sender":"Luis","content":"sigue"}
	]`

	parser, _ := ForFormat(domain.FormatChatJSON)
	result, err := parser.Parse([]byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Skipped != 2 {
		t.Fatalf("expected 2 skipped, got %d", result.Skipped)
	}
}

func TestChatJSONParserStructuralBreak(t *testing.T) {
	parser, _ := ForFormat(domain.FormatChatJSON)
	_, err := parser.Parse([]byte(`{"not":"an array"}`))

	var malformed *domain.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestChatLogParserMultiline(t *testing.T) {
	data := "1/15/24, 3:04 PM - Ana: primera linea\n" +
		"segunda linea del mismo mensaje\n" +
		"1/15/24, 3:05 PM - Luis: respuesta\n"

	parser, _ := ForFormat(domain.FormatChatLog)
	result, err := parser.Parse([]byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if !strings.Contains(result.Records[0].Body, "segunda linea") {
		t.Fatalf("expected continuation line merged, got %q", result.Records[0].Body)
	}
	if result.Records[0].Timestamp.Hour() != 15 {
		t.Fatalf("expected 3 PM parsed as 15h, got %d", result.Records[0].Timestamp.Hour())
	}
}

func TestChatLogParserNoEntries(t *testing.T) {
	parser, _ := ForFormat(domain.FormatChatLog)
	_, err := parser.Parse([]byte("esto no es un chat\npara nada\n"))

	var malformed *domain.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestMailboxParser(t *testing.T) {
	data := "From ana@example.com Mon Jan 15 10:00:00 2024\n" +
		"From: Ana <ana@example.com>\n" +
		"Date: Mon, 15 Jan 2024 10:00:00 +0000\n" +
		"Subject: saludo\n" +
		"\n" +
		"hola desde el correo\n" +
		"From luis@example.com Mon Jan 15 11:00:00 2024\n" +
		"From: luis@example.com\n" +
		"Date: Mon, 15 Jan 2024 11:00:00 +0000\n" +
		"\n" +
		"respuesta\n"

	parser, _ := ForFormat(domain.FormatMailbox)
	result, err := parser.Parse([]byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[0].Sender != "Ana" {
		t.Fatalf("expected display name Ana, got %s", result.Records[0].Sender)
	}
	if result.Records[1].Sender != "luis@example.com" {
		t.Fatalf("expected bare address sender, got %s", result.Records[1].Sender)
	}
}

func TestMailboxParserSkipsBrokenMessage(t *testing.T) {
	data := "From ana@example.com Mon Jan 15 10:00:00 2024\n" +
		"From: Ana <ana@example.com>\n" +
		"Date: esto no es una fecha\n" +
		"\n" +
		"cuerpo\n" +
		"From luis@example.com Mon Jan 15 11:00:00 2024\n" +
		"From: luis@example.com\n" +
		"Date: Mon, 15 Jan 2024 11:00:00 +0000\n" +
		"\n" +
		"respuesta\n"

	parser, _ := ForFormat(domain.FormatMailbox)
	result, err := parser.Parse([]byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 record and 1 skipped, got %d and %d", len(result.Records), result.Skipped)
	}
}

func TestGenericParserCSV(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("date,author,text\n")
	for i := 0; i < 5; i++ {
		sb.WriteString(fmt.Sprintf("2024-01-%02d,Ana,mensaje %d\n", i+1, i))
	}
	sb.WriteString("no-es-fecha,Luis,roto\n")

	parser, _ := ForFormat(domain.FormatGeneric)
	result, err := parser.Parse([]byte(sb.String()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(result.Records))
	}
	if result.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", result.Skipped)
	}
}

func TestGenericParserJSONFlexibleKeys(t *testing.T) {
	data := `[
		{"date":"2024-01-15","from":"Ana","text":"hola"},
		{"sent_at":"2024-01-16T08:00:00Z","author":"Luis","message":"que tal"}
	]`

	parser, _ := ForFormat(domain.FormatGeneric)
	result, err := parser.Parse([]byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
}

func TestGenericParserBadHeader(t *testing.T) {
	parser, _ := ForFormat(domain.FormatGeneric)
	_, err := parser.Parse([]byte("colA,colB\n1,2\n"))

	var malformed *domain.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestForFormatUnknown(t *testing.T) {
	_, err := ForFormat(domain.FormatUnknown)
	if !errors.Is(err, domain.ErrUnrecognizedFormat) {
		t.Fatalf("expected ErrUnrecognizedFormat, got %v", err)
	}
}
