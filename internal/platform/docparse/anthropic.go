package docparse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	anthropicModel   = "claude-sonnet-4-20250514"
)

// AnthropicParser implements Parser against the Anthropic Messages API.
type AnthropicParser struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicParser(apiKey string) *AnthropicParser {
	return &AnthropicParser{
		apiKey:  apiKey,
		model:   anthropicModel,
		baseURL: anthropicBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (p *AnthropicParser) SetBaseURL(u string) { p.baseURL = strings.TrimSuffix(u, "/") }

type anthropicContentBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicParser) ParseBloodReport(ctx context.Context, doc []byte, mimeType string) (*ParsedBloodReport, error) {
	text, err := p.complete(ctx, doc, mimeType, bloodReportPrompt)
	if err != nil {
		return nil, err
	}
	var report ParsedBloodReport
	if err := decodeModelJSON(text, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (p *AnthropicParser) ParsePrescription(ctx context.Context, doc []byte, mimeType string) (*ParsedPrescription, error) {
	text, err := p.complete(ctx, doc, mimeType, prescriptionPrompt)
	if err != nil {
		return nil, err
	}
	var rx ParsedPrescription
	if err := decodeModelJSON(text, &rx); err != nil {
		return nil, err
	}
	return &rx, nil
}

func (p *AnthropicParser) complete(ctx context.Context, doc []byte, mimeType, prompt string) (string, error) {
	docBlock := anthropicContentBlock{
		Source: &anthropicSource{
			Type:      "base64",
			MediaType: mimeType,
			Data:      base64.StdEncoding.EncodeToString(doc),
		},
	}
	if mimeType == "application/pdf" {
		docBlock.Type = "document"
	} else {
		docBlock.Type = "image"
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		MaxTokens: 4096,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicContentBlock{
				docBlock,
				{Type: "text", Text: prompt},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("anthropic API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("anthropic API returned status %d", resp.StatusCode)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
