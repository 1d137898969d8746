package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modforge/moduled/internal/ledger"
)

type Config struct {
	BaseURL string
	Model   string
	APIKey  string
}

// Client implements Completer against an OpenAI-compatible chat-completions
// endpoint.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("model base url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("model api key is required")
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function map[string]any `json:"function"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	payload := wireRequest{Model: c.config.Model}
	if strings.TrimSpace(req.Instructions) != "" {
		payload.Messages = append(payload.Messages, wireMessage{Role: "system", Content: req.Instructions})
	}
	for _, msg := range req.History {
		payload.Messages = append(payload.Messages, wireFromLedger(msg))
	}
	for _, schema := range req.Catalog {
		payload.Tools = append(payload.Tools, wireTool{
			Type: "function",
			Function: map[string]any{
				"name":        schema.Name,
				"description": schema.Description,
				"parameters":  schema.Parameters,
			},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("encode completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Completion{}, fmt.Errorf("read completion response: %w", err)
	}
	var decoded wireResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Completion{}, fmt.Errorf("decode completion response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return Completion{}, fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, msg)
	}
	if len(decoded.Choices) == 0 {
		return Completion{}, fmt.Errorf("completion response has no choices")
	}

	choice := decoded.Choices[0].Message
	out := Completion{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		out.Actions = append(out.Actions, ActionRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	return out, nil
}

// wireFromLedger maps a ledger record back into the conversation shape the
// completion endpoint expects, using the tool views the ledger reconstructs.
func wireFromLedger(msg ledger.Message) wireMessage {
	switch msg.MessageType {
	case ledger.TypeToolCall:
		call := wireToolCall{Type: "function"}
		if msg.RequestedAction != nil {
			call.ID, _ = msg.RequestedAction["id"].(string)
			call.Function.Name, _ = msg.RequestedAction["name"].(string)
			call.Function.Arguments, _ = msg.RequestedAction["arguments"].(string)
		}
		return wireMessage{Role: "assistant", ToolCalls: []wireToolCall{call}}
	case ledger.TypeToolResult:
		out := wireMessage{Role: "tool", Content: msg.Content}
		if msg.ActionOutput != nil {
			out.ToolCallID, _ = msg.ActionOutput["id"].(string)
			if encoded, err := json.Marshal(msg.ActionOutput); err == nil {
				out.Content = string(encoded)
			}
		}
		return out
	default:
		return wireMessage{Role: msg.Role, Content: msg.Content}
	}
}
