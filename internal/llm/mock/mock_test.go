package mock

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/leafdoctor/internal/config"
)

func TestMockLLM_Analyze(t *testing.T) {
	c := New(config.MockSettings{Delay: 0, Prefix: "MockPrefix"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	md, err := c.Analyze(ctx, "prompt", bytes.NewBufferString("fakeimagedata"), "image/png")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if !strings.Contains(md, "MockPrefix") {
		t.Fatalf("Analyze missing prefix, got: %q", md)
	}
	if !strings.Contains(md, "image/png") {
		t.Fatalf("Analyze missing mime info, got: %q", md)
	}
	if !strings.Contains(md, "### 3. Recommended Treatment & Prevention") {
		t.Fatalf("Analyze missing section, got: %q", md)
	}
}

func TestMockLLM_RespectsContextCancel(t *testing.T) {
	c := New(config.MockSettings{Delay: 200 * time.Millisecond, Prefix: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Analyze(ctx, "p", bytes.NewBufferString("x"), "image/png"); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestMockLLM_EmptyImage(t *testing.T) {
	c := New(config.MockSettings{})
	if _, err := c.Analyze(context.Background(), "p", bytes.NewBuffer(nil), "image/png"); err == nil {
		t.Fatalf("expected error for empty image")
	}
}
