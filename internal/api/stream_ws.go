package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/modforge/moduled/internal/ledger"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// handleStreamWS pushes every ledger append over a websocket, optionally
// filtered to one module via ?module=.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeError(w, http.StatusInternalServerError, errNotFound("ledger"))
		return
	}
	moduleID := r.URL.Query().Get("module")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	if err := streamMessages(ctx, s.Ledger, moduleID, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func streamMessages(ctx context.Context, led *ledger.Ledger, moduleID string, writer wsWriter) error {
	sub := led.Subscribe(ctx, moduleID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}
