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
	openaiBaseURL = "https://api.openai.com"
	openaiModel   = "gpt-4o"
)

// OpenAIParser implements Parser against the OpenAI Chat Completions API.
type OpenAIParser struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAIParser(apiKey string) *OpenAIParser {
	return &OpenAIParser{
		apiKey:  apiKey,
		model:   openaiModel,
		baseURL: openaiBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (p *OpenAIParser) SetBaseURL(u string) { p.baseURL = strings.TrimSuffix(u, "/") }

type openaiContentPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *openaiImageURL  `json:"image_url,omitempty"`
	File     *openaiFilePart  `json:"file,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiFilePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string              `json:"role"`
	Content []openaiContentPart `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIParser) ParseBloodReport(ctx context.Context, doc []byte, mimeType string) (*ParsedBloodReport, error) {
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

func (p *OpenAIParser) ParsePrescription(ctx context.Context, doc []byte, mimeType string) (*ParsedPrescription, error) {
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

func (p *OpenAIParser) complete(ctx context.Context, doc []byte, mimeType, prompt string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(doc))

	var docPart openaiContentPart
	if mimeType == "application/pdf" {
		docPart = openaiContentPart{
			Type: "file",
			File: &openaiFilePart{Filename: "document.pdf", FileData: dataURL},
		}
	} else {
		docPart = openaiContentPart{
			Type:     "image_url",
			ImageURL: &openaiImageURL{URL: dataURL},
		}
	}

	body, err := json.Marshal(openaiRequest{
		Model: p.model,
		Messages: []openaiMessage{{
			Role: "user",
			Content: []openaiContentPart{
				docPart,
				{Type: "text", Text: prompt},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("openai API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("openai API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}
