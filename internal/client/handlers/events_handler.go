package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/openmined/kbsync/internal/wsproto"
)

const (
	eventsWriteTimeout = 10 * time.Second
	eventsPingInterval = 30 * time.Second
)

type EventsHandler struct {
	events EventSource
	opts   *websocket.AcceptOptions
}

// NewEventsHandler creates the websocket event stream. originPatterns are
// passed to websocket.Accept; empty means same origin only.
func NewEventsHandler(events EventSource, originPatterns ...string) *EventsHandler {
	return &EventsHandler{
		events: events,
		opts:   &websocket.AcceptOptions{OriginPatterns: originPatterns},
	}
}

// Stream godoc
//
//	@Summary		Stream sync events
//	@Description	Websocket stream of scheduler events, one object per message
//	@Tags			sync
//	@Param			encoding	query	string	false	"json (default) or msgpack"
//	@Success		101
//	@Failure		400	{object}	ControlPlaneError
//	@Router			/v1/sync/events [get]
//	@Security		APIToken
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, h.opts)
	if err != nil {
		// Accept already wrote the response
		c.Abort()
		c.Error(fmt.Errorf("websocket accept failed: %w", err))
		return
	}
	defer conn.CloseNow()

	enc := wsproto.PreferredEncoding(c.Query("encoding"))

	events := h.events.Subscribe()
	defer h.events.Unsubscribe(events)

	// the stream is one way, CloseRead handles control frames and cancels
	// ctx once the peer goes away
	ctx := conn.CloseRead(c.Request.Context())

	slog.Debug("events stream open", "ip", c.ClientIP(), "encoding", enc)
	defer slog.Debug("events stream closed", "ip", c.ClientIP())

	if last := h.events.LastFinish(); last != nil {
		if err := writeEvent(ctx, conn, enc, last); err != nil {
			return
		}
	}

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutdown")
				return
			}
			if err := writeEvent(ctx, conn, enc, ev); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					slog.Warn("events stream write", "error", err)
				}
				return
			}

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, enc wsproto.Encoding, v any) error {
	typ, data, err := wsproto.Marshal(v, enc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, typ, data)
}
