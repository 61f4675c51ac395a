package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// MaxPromptBytes bounds the prompt forwarded upstream
const MaxPromptBytes = 1 << 20

// maxErrorBody bounds how much of an upstream error body is logged
const maxErrorBody = 2048

// Result is the response shape of POST /api/analyze-code
type Result struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Gateway forwards opaque prompts to a generateContent-style endpoint.
// It holds no classroom state.
type Gateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewGateway creates a gateway. An empty apiKey is allowed; Analyze then reports it.
func NewGateway(endpoint, apiKey string, timeout time.Duration) *Gateway {
	return &Gateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present
func (g *Gateway) Configured() bool {
	return g.apiKey != ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Analyze sends promptText upstream and never returns a Go error; failures
// become {success:false,error}
func (g *Gateway) Analyze(ctx context.Context, promptText string) Result {
	text, err := g.generate(ctx, promptText)
	if err != nil {
		log.Printf("Analysis request failed: %v", err)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Result: text}
}

func (g *Gateway) generate(ctx context.Context, promptText string) (string, error) {
	if g.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(promptText) == "" {
		return "", ErrEmptyPrompt
	}
	if len(promptText) > MaxPromptBytes {
		return "", ErrPromptTooLarge
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: promptText}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach analysis service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Printf("Analysis service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		return "", fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", ErrMalformedResponse
	}

	var out strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return out.String(), nil
}
