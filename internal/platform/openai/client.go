package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Ridou/Omnii-One-sub008/internal/platform/envutil"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// RawEntity is one candidate produced by the extractor, before any
// calibration. The type string is free-form here; normalization happens
// downstream.
type RawEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// EntityExtractor is the language-model extraction interface. Treated as a
// black box; failures propagate to the caller.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]RawEntity, error)
}

type client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	log        *logger.Logger
}

// NewFromEnv builds the extractor from OPENAI_* env. Returns (nil, nil) when
// no API key is configured so callers can treat the extractor as optional in
// dev setups.
func NewFromEnv(log *logger.Logger) (EntityExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("openai: logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, nil
	}
	baseURL := envutil.String("OPENAI_BASE_URL", "https://api.openai.com/v1")
	model := envutil.String("OPENAI_EXTRACTION_MODEL", "gpt-4o-mini")
	timeout := envutil.DurationSeconds("OPENAI_TIMEOUT_SECONDS", 60*time.Second)

	return &client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		log:        log.With("client", "OpenAIExtractor"),
	}, nil
}

const extractionSystemPrompt = `You extract named entities from short personal text fragments (calendar entries, emails, notes, tasks, contact cards).
Return every distinct entity with a type from: Person, Organization, Location, Date, Event, Concept, Project.
Confidence is your own estimate in [0,1] that the span is a real entity of that type. Do not invent entities not present in the text.`

var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"type":       map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
				"required":             []string{"name", "type", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"entities"},
	"additionalProperties": false,
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *client) ExtractEntities(ctx context.Context, text string) ([]RawEntity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "entity_extraction",
				"strict": true,
				"schema": extractionSchema,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: extraction call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("openai: extraction failed (status %d): %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty completion")
	}

	var out struct {
		Entities []RawEntity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("openai: decode entities: %w", err)
	}

	c.log.Debug("extraction completed",
		"model", c.model,
		"entities", len(out.Entities),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out.Entities, nil
}
