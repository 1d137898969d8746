package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modforge/moduled/internal/idgen"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	TypeText       = "text"
	TypeToolCall   = "tool_call"
	TypeToolResult = "tool_result"
)

// PlaceholderContent is stored in place of empty message content so that
// downstream renderers never see an empty string.
const PlaceholderContent = "(no content)"

// Message is one immutable ledger record. RequestedAction and ActionOutput
// are view fields reconstructed from ToolData at read time; they are not
// stored separately.
type Message struct {
	ID              string         `json:"id"`
	ModuleID        string         `json:"module_id"`
	Section         string         `json:"section"`
	SessionID       string         `json:"session_id"`
	Seq             int64          `json:"seq"`
	Role            string         `json:"role"`
	MessageType     string         `json:"message_type"`
	Content         string         `json:"content"`
	ToolData        map[string]any `json:"tool_data,omitempty"`
	RequestedAction map[string]any `json:"requested_action,omitempty"`
	ActionOutput    map[string]any `json:"action_output,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

type AppendInput struct {
	ModuleID    string
	Section     string
	SessionID   string
	Role        string
	MessageType string
	Content     string
	ToolData    map[string]any
}

// Ledger is the append-only, session-scoped chat history store. There is no
// update or delete; correcting history means appending another record. Reads
// return records in write order: appends within a session are stamped with a
// monotonic sequence counter, so ordering holds even when the clock ties.
type Ledger struct {
	db *sql.DB

	seqMu sync.Mutex
	seqs  map[string]int64

	subMu sync.RWMutex
	subs  map[string]*subscriber
}

type subscriber struct {
	moduleID string
	ch       chan Message
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, seqs: map[string]int64{}, subs: map[string]*subscriber{}}
}

func (l *Ledger) Append(ctx context.Context, input AppendInput) (Message, error) {
	if strings.TrimSpace(input.ModuleID) == "" {
		return Message{}, fmt.Errorf("module_id is required")
	}
	if strings.TrimSpace(input.Section) == "" {
		return Message{}, fmt.Errorf("section is required")
	}
	role := strings.TrimSpace(input.Role)
	switch role {
	case RoleUser, RoleAssistant, RoleTool:
	default:
		return Message{}, fmt.Errorf("unknown role %q", input.Role)
	}
	msgType := strings.TrimSpace(input.MessageType)
	if msgType == "" {
		msgType = TypeText
	}
	switch msgType {
	case TypeText, TypeToolCall, TypeToolResult:
	default:
		return Message{}, fmt.Errorf("unknown message type %q", input.MessageType)
	}
	sessionID := idgen.SessionID(strings.TrimSpace(input.SessionID))

	content := input.Content
	if strings.TrimSpace(content) == "" {
		content = PlaceholderContent
	}

	toolDataJSON, err := encodeJSON(input.ToolData)
	if err != nil {
		return Message{}, fmt.Errorf("encode tool data: %w", err)
	}

	l.seqMu.Lock()
	defer l.seqMu.Unlock()

	seq, err := l.nextSeqLocked(ctx, input.ModuleID, input.Section, sessionID)
	if err != nil {
		return Message{}, err
	}

	id := ulid.Make().String()
	createdAt := time.Now().UTC()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, module_id, section, session_id, seq, role, message_type, content, tool_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, input.ModuleID, input.Section, sessionID, seq, role, msgType, content, nullString(toolDataJSON), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return Message{}, fmt.Errorf("insert chat message: %w", err)
	}
	l.seqs[sessionKey(input.ModuleID, input.Section, sessionID)] = seq

	msg := Message{
		ID:          id,
		ModuleID:    input.ModuleID,
		Section:     input.Section,
		SessionID:   sessionID,
		Seq:         seq,
		Role:        role,
		MessageType: msgType,
		Content:     content,
		ToolData:    input.ToolData,
		CreatedAt:   createdAt,
	}
	msg.attachViews()

	l.broadcast(msg)
	return msg, nil
}

func (l *Ledger) Read(ctx context.Context, moduleID, section, sessionID string) ([]Message, error) {
	if strings.TrimSpace(moduleID) == "" {
		return nil, fmt.Errorf("module_id is required")
	}
	if strings.TrimSpace(section) == "" {
		return nil, fmt.Errorf("section is required")
	}
	sessionID = idgen.SessionID(strings.TrimSpace(sessionID))

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, module_id, section, session_id, seq, role, message_type, content, tool_data, created_at
		FROM chat_messages
		WHERE module_id = ? AND section = ? AND session_id = ?
		ORDER BY seq ASC
	`, moduleID, section, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read chat messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var toolDataStr sql.NullString
		var createdAtStr string
		if err := rows.Scan(&msg.ID, &msg.ModuleID, &msg.Section, &msg.SessionID, &msg.Seq, &msg.Role, &msg.MessageType, &msg.Content, &toolDataStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.ToolData = decodeJSONMap(toolDataStr.String)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		msg.attachViews()
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

// Subscribe streams every message appended after the call. An empty moduleID
// subscribes to all modules. The channel closes when ctx is done.
func (l *Ledger) Subscribe(ctx context.Context, moduleID string) <-chan Message {
	ch := make(chan Message, 64)
	id := ulid.Make().String()

	sub := &subscriber{moduleID: strings.TrimSpace(moduleID), ch: ch}
	l.subMu.Lock()
	l.subs[id] = sub
	l.subMu.Unlock()

	go func() {
		<-ctx.Done()
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
		close(ch)
	}()

	return ch
}

func (l *Ledger) broadcast(msg Message) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for _, sub := range l.subs {
		if sub.moduleID != "" && sub.moduleID != msg.ModuleID {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Drop if subscriber is slow.
		}
	}
}

// nextSeqLocked returns the next sequence number for the session. The caller
// holds seqMu.
func (l *Ledger) nextSeqLocked(ctx context.Context, moduleID, section, sessionID string) (int64, error) {
	key := sessionKey(moduleID, section, sessionID)
	if last, ok := l.seqs[key]; ok {
		return last + 1, nil
	}
	var maxSeq sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM chat_messages WHERE module_id = ? AND section = ? AND session_id = ?
	`, moduleID, section, sessionID).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("load max seq: %w", err)
	}
	if !maxSeq.Valid {
		return 1, nil
	}
	return maxSeq.Int64 + 1, nil
}

func (m *Message) attachViews() {
	if m.ToolData == nil {
		return
	}
	switch m.MessageType {
	case TypeToolCall:
		m.RequestedAction = m.ToolData
	case TypeToolResult:
		m.ActionOutput = m.ToolData
	}
}

func sessionKey(moduleID, section, sessionID string) string {
	return moduleID + "\x00" + section + "\x00" + sessionID
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSONMap(v string) map[string]any {
	if v == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
