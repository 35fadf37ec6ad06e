package llm

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

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 800
)

// Compile-time checks.
var (
	_ Provider = (*OpenAIClient)(nil)
	_ Embedder = (*OpenAIClient)(nil)
)

// OpenAIClient talks to an OpenAI-compatible chat/embeddings API.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	chatModel   string
	visionModel string
	embedModel  string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// OpenAIConfig configures an OpenAIClient. Zero values fall back to defaults.
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	ChatModel         string
	VisionModel       string
	EmbedModel        string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewOpenAIClient creates a client. RequestsPerSecond <= 0 disables rate limiting.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		chatModel:   cfg.ChatModel,
		visionModel: cfg.VisionModel,
		embedModel:  cfg.EmbedModel,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     limiter,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a chat completion with an optional system message.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	cr := chatRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		cr.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return c.chat(ctx, "complete", cr)
}

// DescribeImage sends the image inline as a base64 data URL.
func (c *OpenAIClient) DescribeImage(ctx context.Context, img Image, prompt string) (string, error) {
	if len(img.Data) == 0 {
		return "", &PermanentError{Op: "describe_image", Err: fmt.Errorf("empty image")}
	}
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	cr := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens:      1500,
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	return c.chat(ctx, "describe_image", cr)
}

func (c *OpenAIClient) chat(ctx context.Context, op string, cr chatRequest) (string, error) {
	body, err := json.Marshal(cr)
	if err != nil {
		return "", &PermanentError{Op: op, Err: fmt.Errorf("marshaling request: %w", err)}
	}
	respBody, err := c.post(ctx, op, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &PermanentError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(result.Choices) == 0 {
		return "", &TransientError{Op: op, Err: fmt.Errorf("empty choices array")}
	}
	return result.Choices[0].Message.Content, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.embedModel, Input: text})
	if err != nil {
		return nil, &PermanentError{Op: "embed", Err: err}
	}
	respBody, err := c.post(ctx, "embed", "/embeddings", body)
	if err != nil {
		return nil, err
	}
	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &PermanentError{Op: "embed", Err: fmt.Errorf("decoding embed response: %w", err)}
	}
	if len(result.Data) == 0 {
		return nil, &PermanentError{Op: "embed", Err: fmt.Errorf("empty embeddings array")}
	}
	return result.Data[0].Embedding, nil
}

func (c *OpenAIClient) post(ctx context.Context, op, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
