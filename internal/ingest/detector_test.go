package ingest

import (
	"errors"
	"testing"

	"trustlens/internal/domain"
)

const chatJSONSample = `[{"timestamp":"2024-01-15T10:00:00Z","sender":"Ana","content":"hola","platform":"chat"}]`

const chatLogSample = `1/15/24, 3:04 PM - Ana: hola
1/15/24, 3:05 PM - Luis: que tal
1/15/24, 3:06 PM - Ana: todo bien`

const mailboxSample = `From ana@example.com Mon Jan 15 10:00:00 2024
From: Ana <ana@example.com>
Date: Mon, 15 Jan 2024 10:00:00 +0000
Message-ID: <abc@example.com>

hola desde el correo
`

const genericCSVSample = `date,author,text
2024-01-15,Ana,hola
2024-01-16,Luis,que tal`

func TestDetectChatJSON(t *testing.T) {
	d, err := Detect([]byte(chatJSONSample), "application/json", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Format != domain.FormatChatJSON {
		t.Fatalf("expected chat_json, got %s", d.Format)
	}
	if d.Confidence < 0.9 {
		t.Fatalf("expected high confidence, got %f", d.Confidence)
	}
}

func TestDetectChatLog(t *testing.T) {
	d, err := Detect([]byte(chatLogSample), "text/plain", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Format != domain.FormatChatLog {
		t.Fatalf("expected chat_log, got %s", d.Format)
	}
}

func TestDetectMailbox(t *testing.T) {
	d, err := Detect([]byte(mailboxSample), "application/mbox", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Format != domain.FormatMailbox {
		t.Fatalf("expected mailbox, got %s", d.Format)
	}
}

func TestDetectGenericCSV(t *testing.T) {
	d, err := Detect([]byte(genericCSVSample), "text/csv", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Format != domain.FormatGeneric {
		t.Fatalf("expected generic, got %s", d.Format)
	}
}

func TestDetectHintShortCircuits(t *testing.T) {
	d, err := Detect([]byte(chatJSONSample), "application/json", "chat_json")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Format != domain.FormatChatJSON {
		t.Fatalf("expected chat_json, got %s", d.Format)
	}
}

func TestDetectHintMismatchDowngradesToAuto(t *testing.T) {
	// El hint dice mailbox pero la estructura es chat log: se ignora el
	// hint y gana la firma real.
	d, err := Detect([]byte(chatLogSample), "text/plain", "mailbox")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Format != domain.FormatChatLog {
		t.Fatalf("expected chat_log after hint mismatch, got %s", d.Format)
	}
}

func TestDetectUnrecognized(t *testing.T) {
	_, err := Detect([]byte("PK\x03\x04 some binary junk"), "application/zip", "")
	if !errors.Is(err, domain.ErrUnrecognizedFormat) {
		t.Fatalf("expected ErrUnrecognizedFormat, got %v", err)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	_, err := Detect([]byte("   "), "text/plain", "")
	if !errors.Is(err, domain.ErrUnrecognizedFormat) {
		t.Fatalf("expected ErrUnrecognizedFormat, got %v", err)
	}
}
