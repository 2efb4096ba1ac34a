// Package llm abstracts the external language-model capability used to
// classify announcements, with Groq and Gemini implementations.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// TransientError marks a failure worth retrying: throttling or a timeout.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// GroqProvider calls Groq's OpenAI-compatible chat completions API.
type GroqProvider struct {
	Model  string
	APIKey string
	client *http.Client
}

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// NewGroqProvider creates a new Groq provider reading the API key from the
// given environment variable.
func NewGroqProvider(model, apiKeyEnv string) *GroqProvider {
	return &GroqProvider{
		Model:  model,
		APIKey: os.Getenv(apiKeyEnv),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (g *GroqProvider) IsConfigured() bool {
	return g.APIKey != ""
}

// Generate sends a prompt to Groq and returns the response text.
func (g *GroqProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("groq API key not configured")
	}

	body := map[string]any{
		"model": g.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": 0.2,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", groqEndpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", &TransientError{Err: fmt.Errorf("groq API timeout: %w", err)}
		}
		return "", fmt.Errorf("groq API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &TransientError{
			Err: fmt.Errorf("groq API returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("groq API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in groq response")
	}

	return result.Choices[0].Message.Content, nil
}

// GeminiProvider calls the Gemini API via the official SDK.
type GeminiProvider struct {
	Model  string
	APIKey string
}

// NewGeminiProvider creates a new Gemini provider reading the API key from
// the given environment variable.
func NewGeminiProvider(model, apiKeyEnv string) *GeminiProvider {
	return &GeminiProvider{
		Model:  model,
		APIKey: os.Getenv(apiKeyEnv),
	}
}

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	return g.APIKey != ""
}

// Generate sends a prompt to Gemini and returns the response text.
// Responses are requested as JSON so downstream parsing sees no prose.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{{Text: prompt}},
			Role:  "user",
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  int32(maxTokens),
	})
	if err != nil {
		if strings.Contains(err.Error(), "429") || strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
			return "", &TransientError{Err: fmt.Errorf("gemini API throttled: %w", err)}
		}
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return resp.Text(), nil
}

// CreateProvider creates an LLM provider based on configuration.
func CreateProvider(provider, groqModel, groqKeyEnv, geminiModel, geminiKeyEnv string) Provider {
	if strings.ToLower(provider) == "gemini" {
		p := NewGeminiProvider(geminiModel, geminiKeyEnv)
		if p.IsConfigured() {
			log.Printf("Using Gemini with model: %s", geminiModel)
			return p
		}
		log.Println("Gemini not configured, trying Groq fallback...")
	}

	p := NewGroqProvider(groqModel, groqKeyEnv)
	if p.IsConfigured() {
		log.Printf("Using Groq with model: %s", groqModel)
		return p
	}

	log.Printf("No LLM provider available. Set %s or %s.", groqKeyEnv, geminiKeyEnv)
	return nil
}
