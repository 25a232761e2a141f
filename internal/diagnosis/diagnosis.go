package diagnosis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/leafdoctor/internal/image"
	"github.com/jo-hoe/leafdoctor/internal/llm"
)

// ServiceError reports a failed call to the model service.
type ServiceError struct {
	Cause error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("diagnosis service: %v", e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Requester issues one model call per image.
type Requester struct {
	log    *slog.Logger
	client llm.Client
	prompt string
}

// New returns a Requester. An empty prompt selects DefaultPrompt.
func New(log *slog.Logger, client llm.Client, prompt string) *Requester {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Requester{log: log, client: client, prompt: prompt}
}

// Prompt returns the instruction sent with every image.
func (q *Requester) Prompt() string { return q.prompt }

// Request sends the prompt and rec to the model once and returns its answer verbatim.
// Any failure is returned as *ServiceError and the string is empty.
func (q *Requester) Request(ctx context.Context, rec image.Record) (string, error) {
	start := time.Now()
	text, err := q.client.Analyze(ctx, q.prompt, bytes.NewReader(rec.Bytes()), rec.MimeType())
	if err != nil {
		q.log.Warn("diagnosis failed", "mime", rec.MimeType(), "bytes", rec.Len(), "duration", time.Since(start), "err", err)
		return "", &ServiceError{Cause: err}
	}
	q.log.Info("diagnosis completed", "mime", rec.MimeType(), "bytes", rec.Len(), "chars", len(text), "duration", time.Since(start))
	if missing := MissingSections(text); len(missing) > 0 {
		q.log.Warn("response lacks expected sections", "missing", missing)
	}
	return text, nil
}
