package devserver

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/getmockd/pocketmock/pkg/requestlog"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// handleStream handles GET <prefix>/logs/stream. Each new record is sent as
// one JSON text message. ?backlog=N first replays the N most recent records,
// oldest first.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	// Subscribe before accepting so no record added during the handshake is lost.
	sub, unsubscribe := h.feed.Subscribe(streamBuffer)
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // dev-only endpoint, served to any local origin
	})
	if err != nil {
		h.log.Debug("log stream upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// Clients never send; CloseRead handles control frames and cancels ctx on close.
	ctx := conn.CloseRead(r.Context())

	if n, ok := parseNonNegativeInt(r.URL.Query().Get("backlog")); ok && n > 0 && h.logs != nil {
		backlog := h.logs.List(&requestlog.Filter{Limit: n})
		slices.Reverse(backlog)
		for _, rec := range backlog {
			if err := writeRecord(ctx, conn, rec); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "log closed")
				return
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				h.log.Debug("log stream write failed", "error", err)
				return
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec requestlog.Record) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, rec)
}
