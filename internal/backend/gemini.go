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

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash-latest:generateContent"

// geminiTimeout is the primary provider's per-call budget.
const geminiTimeout = 10 * time.Second

// Gemini is the adapter for Google's Gemini Flash endpoint.
type Gemini struct {
	id     string
	apiKey string
	apiURL string
	client *http.Client
}

func NewGemini(id, apiKey string) *Gemini {
	return &Gemini{
		id:     id,
		apiKey: apiKey,
		apiURL: defaultGeminiURL,
		client: &http.Client{Timeout: geminiTimeout},
	}
}

// SetTestURL points the adapter at a test server.
func (g *Gemini) SetTestURL(url string) {
	g.apiURL = url
}

func (g *Gemini) ID() string { return g.id }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Query sends the prompt to Gemini and returns raw text. Deadline overruns
// surface as ErrTimeout.
func (g *Gemini) Query(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens: 800,
			Temperature:     0.8,
			TopP:            0.95,
			TopK:            40,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"?key="+g.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", timeoutErr(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", timeoutErr(ctx, err)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "No response", nil
	}
	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}
