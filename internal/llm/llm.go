package llm

import (
	"context"
	"io"
)

// Client defines the capability to answer a prompt about an image.
type Client interface {
	// Analyze reads an image from r (seek not required) with the given mime type,
	// sends it together with prompt and returns the model's text unmodified.
	Analyze(ctx context.Context, prompt string, r io.Reader, mime string) (string, error)
}
