package recommend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"cinewise/internal/upstream"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-3-flash-preview"
)

var (
	errGeminiNotConfigured = errors.New("gemini api key not configured")
	errGeminiEmpty         = errors.New("gemini returned empty response")
)

type geminiClient struct {
	apiKey  string
	model   string
	baseURL string
	up      *upstream.Client
}

func newGeminiClient(apiKey, model, baseURL string, httpc *http.Client) *geminiClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = geminiBaseURL
	}
	return &geminiClient{
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		baseURL: strings.TrimRight(baseURL, "/"),
		up: upstream.New(httpc, upstream.Options{
			Service:     "gemini",
			MinInterval: 100 * time.Millisecond,
			Backoff:     500 * time.Millisecond,
		}),
	}
}

func (c *geminiClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// geminiRequest is the request body for the generateContent API.
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64       `json:"temperature,omitempty"`
	ResponseMIMEType string        `json:"responseMimeType,omitempty"`
	ResponseSchema   *geminiSchema `json:"responseSchema,omitempty"`
}

// geminiSchema is the OpenAPI subset accepted as a structured output schema.
type geminiSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Enum        []string                 `json:"enum,omitempty"`
	Items       *geminiSchema            `json:"items,omitempty"`
	Properties  map[string]*geminiSchema `json:"properties,omitempty"`
	Required    []string                 `json:"required,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// generate sends one prompt with a structured output schema and returns the
// raw JSON text of the first candidate. An empty text is not an error.
func (c *geminiClient) generate(ctx context.Context, operation, prompt string, schema *geminiSchema) (string, error) {
	if !c.isConfigured() {
		return "", errGeminiNotConfigured
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.9,
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	body, err := c.up.Do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini API error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", errGeminiEmpty
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return strings.TrimSpace(text.String()), nil
}

// decodeJSONText unmarshals model output, tolerating a markdown code fence
// around the JSON.
func decodeJSONText(text string, v any) error {
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if err2 := json.Unmarshal([]byte(cleaned), v); err2 != nil {
		return fmt.Errorf("parse gemini output: %w (raw: %s)", err, text[:min(200, len(text))])
	}
	return nil
}
