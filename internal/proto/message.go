// Package proto defines the websocket event stream protocol.
package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello     = "hello"
	InboundTypeSubscribe = "subscribe"

	OutboundTypeHello = "hello"
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	Protocol int `json:"protocol,omitempty"`
}

// SubscribeData narrows the stream. Empty fields match everything.
type SubscribeData struct {
	Events    []string `json:"events,omitempty"`
	MessageID uint64   `json:"message_id,omitempty"`
}

// Welcome answers a hello.
type Welcome struct {
	Protocol     int    `json:"protocol"`
	SubscriberID string `json:"subscriber_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// HubEvent is a committed hub event. Amounts are decimal strings, addresses
// and data are 0x-hex. Which fields are set depends on Kind.
type HubEvent struct {
	Kind      string `json:"kind"`
	MessageID uint64 `json:"message_id,omitempty"`
	ChainID   uint32 `json:"chain_id,omitempty"`
	Account   string `json:"account,omitempty"`
	Target    string `json:"target,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Deadline  uint64 `json:"deadline,omitempty"`
	Data      string `json:"data,omitempty"`
	Timestamp uint64 `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
