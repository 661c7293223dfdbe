package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/core"
	"github.com/vovakirdan/relayhub/internal/proto"
)

// WSHandler upgrades HTTP connections and streams committed hub events.
type WSHandler struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger}
}

// eventFilter is the subscription a client asked for. The zero value
// matches every event.
type eventFilter struct {
	mu        sync.RWMutex
	kinds     map[string]struct{}
	messageID uint64
}

func (f *eventFilter) set(data proto.SubscribeData) {
	kinds := make(map[string]struct{}, len(data.Events))
	for _, k := range data.Events {
		kinds[k] = struct{}{}
	}

	f.mu.Lock()
	f.kinds = kinds
	f.messageID = data.MessageID
	f.mu.Unlock()
}

func (f *eventFilter) match(event *core.Event) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.kinds) > 0 {
		if _, ok := f.kinds[event.Kind.String()]; !ok {
			return false
		}
	}
	return f.messageID == 0 || f.messageID == event.MessageID
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sub := core.NewSubscriber(uuid.NewString())
	h.hub.Subscribe(sub)
	defer h.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	filter := &eventFilter{}
	// Replies from the read loop and events from the write loop share one writer.
	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return wsjson.Write(ctx, conn, v)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sub, filter, write)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, sub, filter, write)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("subscriber_id", sub.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	sub *core.Subscriber,
	filter *eventFilter,
	write func(any) error,
) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("read ws inbound")
			return err
		}

		reply := h.handleInbound(sub, filter, inbound)
		if reply == nil {
			continue
		}
		if err := write(reply); err != nil {
			return err
		}
	}
}

func (h *WSHandler) handleInbound(sub *core.Subscriber, filter *eventFilter, inbound proto.Inbound) *proto.Outbound {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var data proto.HelloData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &data); err != nil {
				return protoError("bad_request", "invalid hello payload")
			}
		}
		if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
			return protoError("unsupported_version", "unsupported protocol version")
		}
		return &proto.Outbound{
			Type: proto.OutboundTypeHello,
			Data: proto.Welcome{Protocol: proto.ProtocolVersion, SubscriberID: sub.ID},
		}

	case proto.InboundTypeSubscribe:
		var data proto.SubscribeData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &data); err != nil {
				return protoError("bad_request", "invalid subscribe payload")
			}
		}
		filter.set(data)
		h.log.Debug().
			Str("subscriber_id", sub.ID).
			Strs("events", data.Events).
			Uint64("message_id", data.MessageID).
			Msg("subscription updated")
		return nil

	default:
		return protoError("invalid_message", "unknown message type")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, sub *core.Subscriber, filter *eventFilter, write func(any) error) error {
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if !filter.match(event) {
				continue
			}
			if err := write(outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("subscriber_id", sub.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func protoError(code, msg string) *proto.Outbound {
	return &proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}
