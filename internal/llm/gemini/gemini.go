package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/leafdoctor/internal/common"
	"github.com/jo-hoe/leafdoctor/internal/config"
	"github.com/jo-hoe/leafdoctor/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	headerAPIKey = "x-goog-api-key" // #nosec G101 - header name constant, not a credential

	apiVersion     = "v1beta"
	methodGenerate = ":generateContent"
	roleUser       = "user"

	defaultTimeout    = 60 * time.Second
	errorSnippetLimit = 400
)

// Client implements llm.Client against the Generative Language generateContent endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature *float32
	maxTokens   int
}

// New creates a Gemini client. A zero timeout uses the default.
func New(cfg config.GeminiSettings, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var temp *float32
	if cfg.Temperature != 0 {
		v := cfg.Temperature
		temp = &v
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       strings.TrimPrefix(cfg.Model, "models/"),
		temperature: temp,
		maxTokens:   cfg.MaxOutputTokens,
	}
}

// Analyze sends prompt and image as one user turn and returns the text of the first candidate.
func (c *Client) Analyze(ctx context.Context, prompt string, r io.Reader, mime string) (string, error) {
	imgData, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(imgData) == 0 {
		return "", fmt.Errorf("image is empty")
	}

	u, err := url.JoinPath(c.baseURL, apiVersion, "models", c.model+methodGenerate)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	body, err := json.Marshal(c.buildRequest(prompt, mime, imgData))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(common.HeaderContentType, common.ContentTypeJSON)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	var out generateResponse
	parseErr := json.Unmarshal(respBytes, &out)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if parseErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("gemini status %d (%s): %s", resp.StatusCode, out.Error.Status, out.Error.Message)
		}
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}
	if parseErr != nil {
		return "", fmt.Errorf("parse response: %w", parseErr)
	}
	if out.Error != nil {
		return "", fmt.Errorf("gemini error %d: %s", out.Error.Code, out.Error.Message)
	}
	return out.text()
}

func (c *Client) buildRequest(prompt, mime string, data []byte) generateRequest {
	mt := strings.TrimSpace(mime)
	if mt == "" {
		mt = common.ContentTypeOctet
	}
	return generateRequest{
		Contents: []content{{
			Role: roleUser,
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: mt, Data: base64.StdEncoding.EncodeToString(data)}},
			},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
		},
	}
}

// text joins the text parts of the first candidate, skipping thought parts.
func (g generateResponse) text() (string, error) {
	if len(g.Candidates) == 0 {
		if g.PromptFeedback != nil && g.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", g.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("no candidates returned")
	}
	cand := g.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Thought != nil && *p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		if cand.FinishReason != "" {
			return "", fmt.Errorf("empty response (finish reason %s)", cand.FinishReason)
		}
		return "", fmt.Errorf("empty response")
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// generateContent wire types

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	Thought    *bool       `json:"thought,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	Error          *apiError       `json:"error,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type apiError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}
