package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trustlens/internal/domain"
)

// ReviewNotifier arma el correo de revision manual para resultados
// retenidos. El cuerpo nunca incluye contenido de mensajes ni rasgos:
// solo identificadores y los flags emitidos.
type ReviewNotifier struct {
	sender Sender
	to     string
}

func NewReviewNotifier(sender Sender, to string) *ReviewNotifier {
	if sender == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	return &ReviewNotifier{sender: sender, to: to}
}

func (n *ReviewNotifier) NotifyWithheld(ctx context.Context, result domain.TrustScoreResult, flags []domain.BiasFlag) error {
	subject := fmt.Sprintf("Result withheld for review: job %s", result.JobID)

	var b strings.Builder
	fmt.Fprintf(&b, "A trust score result was withheld pending manual review.\n\n")
	fmt.Fprintf(&b, "Job ID:      %s\n", result.JobID)
	fmt.Fprintf(&b, "Result ID:   %s\n", result.ID)
	fmt.Fprintf(&b, "Computed at: %s\n", result.ComputedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Flags:\n")
	for _, flag := range flags {
		fmt.Fprintf(&b, "  - [%s] %s: %s\n", flag.Severity, flag.Type, flag.Description)
	}

	return n.sender.Send(ctx, n.to, subject, b.String())
}
