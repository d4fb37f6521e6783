package krakenfeed

import (
	"github.com/goccy/go-json"
)

// messageKind tags an incoming frame after decoding. Dispatch happens on the
// kind so ordering stays deterministic and each variant can be tested without
// a live connection.
type messageKind int

const (
	kindUnhandled messageKind = iota
	kindTick
	kindSubscriptionAck
	kindHeartbeat
	kindStatus
)

// envelope is the common outer shape of every Kraken v2 frame. Channel is set
// on data frames, Method on request/response frames.
type envelope struct {
	Channel string          `json:"channel"`
	Method  string          `json:"method"`
	Type    string          `json:"type"`
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Result  json.RawMessage `json:"result"`
}

// kind classifies the frame. Subscription acks are identified by method,
// everything else by channel.
func (e *envelope) kind() messageKind {
	switch e.Method {
	case "subscribe", "unsubscribe":
		return kindSubscriptionAck
	}
	switch e.Channel {
	case "ticker":
		return kindTick
	case "heartbeat":
		return kindHeartbeat
	case "status":
		return kindStatus
	}
	return kindUnhandled
}

// tickerEntry is one element of a ticker snapshot/update data array. Only the
// last trade price is consumed; the remaining book fields are ignored. Last is
// kept as a json.Number so the source precision survives into the decimal.
type tickerEntry struct {
	Symbol string      `json:"symbol"`
	Last   json.Number `json:"last"`
}

// subscriptionResult carries the channel/symbol a subscribe ack refers to.
type subscriptionResult struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// statusEntry is one element of a status frame's data array.
type statusEntry struct {
	System  string `json:"system"`
	Version string `json:"api_version"`
}

// subscribeRequest is the outbound subscribe/unsubscribe control message.
type subscribeRequest struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channel string   `json:"channel"`
	Symbol  []string `json:"symbol"`
}
