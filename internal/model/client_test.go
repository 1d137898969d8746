package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modforge/moduled/internal/ledger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL, Model: "test-model", APIKey: "key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestCompletePlainContent(t *testing.T) {
	var captured wireRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "done"}}},
		})
	})

	completion, err := client.Complete(context.Background(), CompletionRequest{
		Instructions: "be brief",
		History: []ledger.Message{
			{Role: ledger.RoleUser, MessageType: ledger.TypeText, Content: "hello"},
		},
		Catalog: []ActionSchema{{Name: "read_file"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Content != "done" || len(completion.Actions) != 0 {
		t.Fatalf("completion = %+v", completion)
	}

	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "hello" {
		t.Fatalf("request messages = %+v", captured.Messages)
	}
	if len(captured.Tools) != 1 {
		t.Fatalf("request tools = %+v", captured.Tools)
	}
}

func TestCompleteRequestedActions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{{
					"id":   "call-1",
					"type": "function",
					"function": map[string]any{
						"name":      "edit_code",
						"arguments": `{"path":"main.go"}`,
					},
				}},
			}}},
		})
	})

	completion, err := client.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(completion.Actions) != 1 {
		t.Fatalf("actions = %+v", completion.Actions)
	}
	action := completion.Actions[0]
	if action.ID != "call-1" || action.Name != "edit_code" || string(action.Arguments) != `{"path":"main.go"}` {
		t.Fatalf("action = %+v", action)
	}
}

func TestCompleteErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "slow down"}})
	})

	if _, err := client.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("Complete succeeded on error status")
	}
}

func TestWireFromLedgerToolShapes(t *testing.T) {
	call := wireFromLedger(ledger.Message{
		MessageType:     ledger.TypeToolCall,
		Role:            ledger.RoleAssistant,
		RequestedAction: map[string]any{"id": "call-1", "name": "edit_code", "arguments": "{}"},
	})
	if len(call.ToolCalls) != 1 || call.ToolCalls[0].Function.Name != "edit_code" {
		t.Fatalf("tool_call wire = %+v", call)
	}

	result := wireFromLedger(ledger.Message{
		MessageType:  ledger.TypeToolResult,
		Role:         ledger.RoleTool,
		Content:      "ok",
		ActionOutput: map[string]any{"id": "call-1", "output": "ok"},
	})
	if result.Role != "tool" || result.ToolCallID != "call-1" {
		t.Fatalf("tool_result wire = %+v", result)
	}
}
