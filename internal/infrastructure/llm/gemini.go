package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ChannelRelay/internal/config"
	"ChannelRelay/internal/ports"
)

// GeminiClient implements ports.Generator on the Gemini API.
// A client is opened per call because the key changes with rotation.
type GeminiClient struct {
	model string
	opts  []option.ClientOption
}

var _ ports.Generator = (*GeminiClient)(nil)

// NewGeminiClient builds a generator for cfg.Model. Extra options are appended to the API key.
func NewGeminiClient(cfg config.GeminiConfig, opts ...option.ClientOption) *GeminiClient {
	return &GeminiClient{model: cfg.Model, opts: opts}
}

// Generate runs one GenerateContent call with the request's key.
func (c *GeminiClient) Generate(ctx context.Context, in ports.GenerateRequest) (string, error) {
	if in.APIKey == "" || c.model == "" {
		return "", fmt.Errorf("gemini client misconfigured")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(in.APIKey)}, c.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	if system := strings.TrimSpace(in.System); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	model.SetTemperature(float32(in.Temperature))
	if in.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(in.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(in.Prompt))
	if err != nil {
		return "", geminiError(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini response has no text")
	}
	return text, nil
}

// geminiError surfaces the HTTP status of API failures as *ports.StatusError.
func geminiError(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return &ports.StatusError{Service: "gemini", StatusCode: apiErr.HTTPCode(), Body: apiErr.Reason()}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code > 0 {
		return &ports.StatusError{Service: "gemini", StatusCode: gErr.Code, Body: gErr.Message}
	}
	return fmt.Errorf("gemini generate: %w", err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s
		}
	}
	return ""
}
