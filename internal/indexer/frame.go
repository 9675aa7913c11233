package indexer

import "github.com/and161185/villagekeeper/internal/convert"

// WebSocket frame types.
const (
	FrameSubscribe = "subscribe"
	FrameBatch     = "batch"
	FrameError     = "error"
)

// Frame is the JSON message exchanged over the WebSocket push channel.
type Frame struct {
	Type    string           `json:"type"`
	Kinds   []string         `json:"kinds,omitempty"`
	Owners  []string         `json:"owners,omitempty"`
	Kind    string           `json:"kind,omitempty"`
	Records []convert.Record `json:"records,omitempty"`
	Error   string           `json:"error,omitempty"`
}
