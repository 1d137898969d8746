package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/modforge/moduled/internal/idgen"
	"github.com/modforge/moduled/internal/testutil"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, closeFn := testutil.OpenTestDB(t)
	t.Cleanup(closeFn)
	return New(db)
}

func TestAppendReadPreservesWriteOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	const n = 25
	for i := 0; i < n; i++ {
		_, err := l.Append(ctx, AppendInput{
			ModuleID: "mod",
			Section:  "maintain",
			Role:     RoleUser,
			Content:  fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := l.Read(ctx, "mod", "maintain", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("read %d messages, want %d", len(msgs), n)
	}
	for i, msg := range msgs {
		want := fmt.Sprintf("message %d", i)
		if msg.Content != want {
			t.Errorf("message[%d].Content = %q, want %q", i, msg.Content, want)
		}
		if msg.Seq != int64(i+1) {
			t.Errorf("message[%d].Seq = %d, want %d", i, msg.Seq, i+1)
		}
	}
}

func TestAppendDefaultsSessionID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	msg, err := l.Append(ctx, AppendInput{ModuleID: "mod", Section: "maintain", Role: RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.SessionID != idgen.DefaultSessionID {
		t.Fatalf("session id = %q, want %q", msg.SessionID, idgen.DefaultSessionID)
	}

	// Reading with an explicit default session sees the same record.
	msgs, err := l.Read(ctx, "mod", "maintain", idgen.DefaultSessionID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("read %d messages, want 1", len(msgs))
	}
}

func TestAppendReplacesEmptyContent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	msg, err := l.Append(ctx, AppendInput{ModuleID: "mod", Section: "maintain", Role: RoleAssistant, Content: "   "})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Content != PlaceholderContent {
		t.Fatalf("content = %q, want placeholder", msg.Content)
	}

	msgs, _ := l.Read(ctx, "mod", "maintain", "")
	if msgs[0].Content != PlaceholderContent {
		t.Fatalf("stored content = %q, want placeholder", msgs[0].Content)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, _ = l.Append(ctx, AppendInput{ModuleID: "mod", Section: "maintain", SessionID: "s1", Role: RoleUser, Content: "one"})
	_, _ = l.Append(ctx, AppendInput{ModuleID: "mod", Section: "maintain", SessionID: "s2", Role: RoleUser, Content: "two"})
	_, _ = l.Append(ctx, AppendInput{ModuleID: "mod", Section: "initialize", SessionID: "s1", Role: RoleUser, Content: "three"})

	msgs, err := l.Read(ctx, "mod", "maintain", "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "one" {
		t.Fatalf("s1 messages = %+v", msgs)
	}
}

func TestReadReconstructsToolViews(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	call := map[string]any{"id": "call-1", "name": "edit_code", "arguments": `{"path":"main.go"}`}
	result := map[string]any{"id": "call-1", "output": "ok"}

	_, err := l.Append(ctx, AppendInput{ModuleID: "mod", Section: "maintain", Role: RoleAssistant, MessageType: TypeToolCall, ToolData: call})
	if err != nil {
		t.Fatalf("append tool_call: %v", err)
	}
	_, err = l.Append(ctx, AppendInput{ModuleID: "mod", Section: "maintain", Role: RoleTool, MessageType: TypeToolResult, ToolData: result})
	if err != nil {
		t.Fatalf("append tool_result: %v", err)
	}

	msgs, err := l.Read(ctx, "mod", "maintain", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("read %d messages, want 2", len(msgs))
	}
	if msgs[0].RequestedAction == nil || msgs[0].RequestedAction["name"] != "edit_code" {
		t.Errorf("tool_call view = %v", msgs[0].RequestedAction)
	}
	if msgs[0].ActionOutput != nil {
		t.Errorf("tool_call has action output view: %v", msgs[0].ActionOutput)
	}
	if msgs[1].ActionOutput == nil || msgs[1].ActionOutput["output"] != "ok" {
		t.Errorf("tool_result view = %v", msgs[1].ActionOutput)
	}
	if msgs[1].RequestedAction != nil {
		t.Errorf("tool_result has requested action view: %v", msgs[1].RequestedAction)
	}
}

func TestAppendRejectsBadInput(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	cases := []AppendInput{
		{Section: "maintain", Role: RoleUser, Content: "x"},
		{ModuleID: "mod", Role: RoleUser, Content: "x"},
		{ModuleID: "mod", Section: "maintain", Role: "narrator", Content: "x"},
		{ModuleID: "mod", Section: "maintain", Role: RoleUser, MessageType: "carrier-pigeon", Content: "x"},
	}
	for i, input := range cases {
		if _, err := l.Append(ctx, input); err == nil {
			t.Errorf("append case %d succeeded, want error", i)
		}
	}
}

func TestSubscribeReceivesAppends(t *testing.T) {
	l := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := l.Subscribe(ctx, "mod")
	other := l.Subscribe(ctx, "unrelated")

	_, err := l.Append(context.Background(), AppendInput{ModuleID: "mod", Section: "maintain", Role: RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case msg := <-sub:
		if msg.Content != "hello" {
			t.Fatalf("streamed content = %q", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message streamed to subscriber")
	}

	select {
	case msg := <-other:
		t.Fatalf("unrelated subscriber received %+v", msg)
	default:
	}
}
