package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Oracle is the transport to the reasoning service.
type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// transientOracleError marks oracle failures that are worth a bounded retry:
// timeouts, 429 and 5xx. Credential and request errors surface immediately.
type transientOracleError struct {
	err error
}

func (e *transientOracleError) Error() string { return e.err.Error() }
func (e *transientOracleError) Unwrap() error { return e.err }

func transientOracle(err error) error {
	if err == nil {
		return nil
	}
	return &transientOracleError{err: err}
}

// IsRetryable reports whether an oracle error may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *transientOracleError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// HTTPOracle talks to an OpenAI-compatible chat-completions endpoint.
type HTTPOracle struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

func NewHTTPOracle(baseURL, apiKey, model string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPOracle{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (o *HTTPOracle) endpoint() string {
	url := strings.TrimSpace(o.BaseURL)
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	// Tolerate configs that already carry the full path.
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (o *HTTPOracle) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body, _ := json.Marshal(map[string]any{
		"model":       o.Model,
		"messages":    messages,
		"temperature": 0.2,
	})

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", transientOracle(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("oracle status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
			return "", transientOracle(err)
		}
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("oracle response decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
