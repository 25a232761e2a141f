package mock

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jo-hoe/leafdoctor/internal/config"
	"github.com/jo-hoe/leafdoctor/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client is an offline llm.Client producing a canned three-section report.
type Client struct {
	delay  time.Duration
	prefix string
}

func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

func (c *Client) Analyze(ctx context.Context, prompt string, r io.Reader, mime string) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("image is empty")
	}

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	return fmt.Sprintf(`_%s (%s, %d bytes)_

### 1. Plant & Disease Identification
- **Plant Species (if identifiable):** Unknown
- **Diagnosis:** No diagnosis, offline mode
- **Cause Type:** n/a

### 2. Symptom Analysis
- No analysis performed.

### 3. Recommended Treatment & Prevention
- **Immediate Treatment:** n/a
- **Long-term Prevention:** n/a
`, c.prefix, mime, n), nil
}
