package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// openRouterTimeout is the secondary providers' per-call budget, looser than
// Gemini's because the free-tier models queue.
const openRouterTimeout = 15 * time.Second

// OpenRouter is the adapter for one OpenRouter-hosted model. The backend id
// is the short local name; model is the full provider identifier.
type OpenRouter struct {
	id     string
	model  string
	apiKey string
	apiURL string
	client *http.Client
}

func NewOpenRouter(id, model, apiKey string) *OpenRouter {
	return &OpenRouter{
		id:     id,
		model:  model,
		apiKey: apiKey,
		apiURL: defaultOpenRouterURL,
		client: &http.Client{Timeout: openRouterTimeout},
	}
}

// SetTestURL points the adapter at a test server.
func (o *OpenRouter) SetTestURL(url string) {
	o.apiURL = url
}

func (o *OpenRouter) ID() string { return o.id }

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model            string              `json:"model"`
	Messages         []openRouterMessage `json:"messages"`
	MaxTokens        int                 `json:"max_tokens"`
	Temperature      float64             `json:"temperature"`
	TopP             float64             `json:"top_p"`
	FrequencyPenalty float64             `json:"frequency_penalty"`
	PresencePenalty  float64             `json:"presence_penalty"`
}

type openRouterResponse struct {
	Choices []struct {
		Message openRouterMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Query sends the prompt to OpenRouter and returns raw text. Deadline
// overruns surface as ErrTimeout.
func (o *OpenRouter) Query(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, openRouterTimeout)
	defer cancel()

	body, err := json.Marshal(openRouterRequest{
		Model:            o.model,
		Messages:         []openRouterMessage{{Role: "user", Content: prompt}},
		MaxTokens:        800,
		Temperature:      0.8,
		TopP:             0.95,
		FrequencyPenalty: 0.1,
		PresencePenalty:  0.1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://quorum-ai.dev")
	httpReq.Header.Set("X-Title", "Quorum")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", timeoutErr(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", timeoutErr(ctx, err)
	}

	var apiResp openRouterResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return "No response", nil
	}
	return apiResp.Choices[0].Message.Content, nil
}
