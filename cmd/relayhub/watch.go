package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/relayhub/internal/proto"
)

// newWatchCmd streams hub events from a running server to stdout.
func newWatchCmd() *cobra.Command {
	var (
		addr      string
		events    []string
		messageID uint64
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "print hub events from a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return watch(ctx, cmd, addr, proto.SubscribeData{Events: events, MessageID: messageID})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws", "WebSocket address")
	cmd.Flags().StringSliceVar(&events, "events", nil, "event kinds to show (default all)")
	cmd.Flags().Uint64Var(&messageID, "message", 0, "only show events for this message id")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, addr string, sub proto.SubscribeData) error {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeHello, proto.HelloData{Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSubscribe, sub); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch outbound.Type {
		case proto.OutboundTypeHello:
			var welcome proto.Welcome
			if err := json.Unmarshal(outbound.Data, &welcome); err == nil {
				fmt.Fprintf(out, "connected: subscriber=%s protocol=%d\n", welcome.SubscriberID, welcome.Protocol)
			}
		case proto.OutboundTypeError:
			if outbound.Error != nil {
				return fmt.Errorf("server error %s: %s", outbound.Error.Code, outbound.Error.Msg)
			}
		case proto.OutboundTypeEvent:
			var ev proto.HubEvent
			if err := json.Unmarshal(outbound.Data, &ev); err != nil {
				fmt.Fprintf(out, "raw: %s\n", outbound.Data)
				continue
			}
			printEvent(cmd, ev)
		}
	}
}

func printEvent(cmd *cobra.Command, ev proto.HubEvent) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d %s", ev.Timestamp, ev.Kind)
	if ev.MessageID != 0 {
		fmt.Fprintf(out, " message=%d", ev.MessageID)
	}
	if ev.ChainID != 0 {
		fmt.Fprintf(out, " chain=%d", ev.ChainID)
	}
	if ev.Account != "" {
		fmt.Fprintf(out, " account=%s", ev.Account)
	}
	if ev.Target != "" {
		fmt.Fprintf(out, " target=%s", ev.Target)
	}
	if ev.Amount != "" {
		fmt.Fprintf(out, " amount=%s", ev.Amount)
	}
	if ev.Deadline != 0 {
		fmt.Fprintf(out, " deadline=%d", ev.Deadline)
	}
	fmt.Fprintln(out)
}
