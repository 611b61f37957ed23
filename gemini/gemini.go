// Package gemini talks to the Gemini generateContent endpoint through the
// genai SDK. Callers see a small Model interface so classification and
// analysis can run against fakes.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	ErrNoCandidates = errors.New("gemini: response has no candidates")
	ErrEmptyText    = errors.New("gemini: response text is empty")
)

// Part is one request part: text, or inline binary data with its MIME type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func Text(s string) Part { return Part{Text: s} }

func Inline(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

type Model interface {
	Generate(ctx context.Context, model string, parts []Part) (string, error)
}

type Options struct {
	APIKey string
	// BaseURL overrides the API host, used by tests.
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	client *genai.Client
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewTracedClient()
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Generate(ctx context.Context, model string, parts []Part) (string, error) {
	gparts := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Data != nil {
			gparts = append(gparts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		gparts = append(gparts, genai.NewPartFromText(p.Text))
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{
		{Parts: gparts, Role: "user"},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini %s: %w", model, ErrNoCandidates)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("gemini %s: %w", model, ErrEmptyText)
	}
	return sb.String(), nil
}
