package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"storynerd/internal/logging"
)

// OpenAIConfig holds configuration for the OpenAI-compatible client.
// NVIDIA NIM and other compatible gateways reuse this with a different
// base URL.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		Timeout:     defaultTimeout,
		MaxRetries:  defaultMaxRetries,
		BackoffBase: defaultBackoffBase,
	}
}

// OpenAIClient implements Client against any /chat/completions endpoint.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIClient creates a client from config, filling zero values
// with defaults.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends a one-shot prompt without tools.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a one-shot prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userPrompt})
	resp, err := c.Chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Chat sends the conversation and returns the model's next turn.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: API key not configured", ErrAuth)
	}

	// Auto-apply timeout if context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[OpenAI] Chat: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestInterval {
		time.Sleep(minRequestInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := openAIRequest{
		Model:       c.model,
		Messages:    mapMessagesToOpenAI(messages),
		Tools:       mapToolDefinitionsToOpenAI(tools),
		MaxTokens:   4096,
		Temperature: 0.7,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoffBase * time.Duration(1<<uint(attempt-1))):
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			// fall through to parse
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
			logging.APIWarn("[OpenAI] Chat: 429, attempt %d/%d", attempt+1, c.maxRetries+1)
			continue
		case http.StatusUnauthorized, http.StatusForbidden:
			logging.APIError("[OpenAI] Chat: auth rejected with status %d", resp.StatusCode)
			return nil, fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
				continue
			}
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, ErrNoCompletion
		}

		choice := parsed.Choices[0]
		toolCalls, err := mapOpenAIToolCallsToInternal(choice.Message.ToolCalls)
		if err != nil {
			return nil, err
		}

		out := &Response{
			Text:       choice.Message.Content,
			ToolCalls:  toolCalls,
			StopReason: choice.FinishReason,
			Usage: Usage{
				PromptTokens:     parsed.Usage.PromptTokens,
				CompletionTokens: parsed.Usage.CompletionTokens,
				TotalTokens:      parsed.Usage.TotalTokens,
			},
		}
		logging.API("[OpenAI] Chat: completed in %v text_len=%d tool_calls=%d stop_reason=%s",
			time.Since(startTime), len(out.Text), len(out.ToolCalls), out.StopReason)
		return out, nil
	}

	logging.APIError("[OpenAI] Chat: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// --- wire types ---

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func mapMessagesToOpenAI(messages []Message) []openAIMessage {
	out := make([]openAIMessage, len(messages))
	for i, m := range messages {
		wm := openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Input)
			if err != nil {
				args = []byte("{}")
			}
			call := openAIToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, call)
		}
		out[i] = wm
	}
	return out
}

func mapToolDefinitionsToOpenAI(tools []ToolDefinition) []openAITool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAITool, len(tools))
	for i, t := range tools {
		out[i] = openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

func mapOpenAIToolCallsToInternal(calls []openAIToolCall) ([]ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Type != "" && c.Type != "function" {
			continue
		}
		var args map[string]any
		if strings.TrimSpace(c.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(c.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal arguments for tool %s: %w", c.Function.Name, err)
			}
		}
		out = append(out, ToolCall{ID: c.ID, Name: c.Function.Name, Input: args})
	}
	return out, nil
}
