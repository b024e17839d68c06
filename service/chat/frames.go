package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"NexusProject/tools/decode"
)

// Envelope family tags. The set is closed: anything else is dropped by the
// dispatcher's explicit default branch.
const (
	TypeAuth   = "auth"
	TypeChat   = "chat"
	TypeTyping = "typing"

	TypeCallOffer    = "call-offer"
	TypeCallAnswer   = "call-answer"
	TypeICECandidate = "ice-candidate"
	TypeCallEnd      = "call-end"
	TypeCallReject   = "call-reject"

	// server -> client only
	TypeChatAck     = "chat-ack"
	TypeChatError   = "chat-error"
	TypeAuthError   = "auth-error"
	TypeOnlineUsers = "online-users"
	TypeUserStatus  = "user-status"
)

// SignalTypes are relayed verbatim between two peers; the server only stamps
// the sender and never interprets the contents.
var SignalTypes = []string{
	TypeCallOffer, TypeCallAnswer, TypeICECandidate, TypeCallEnd, TypeCallReject,
}

// Frame is one decoded envelope. Raw keeps the full object so signaling
// frames can be forwarded without re-modelling their fields.
type Frame struct {
	Type string
	Raw  map[string]any
}

func ParseFrame(raw []byte) (*Frame, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	t, _ := m["type"].(string)
	if t == "" {
		return nil, fmt.Errorf("frame has no type")
	}
	return &Frame{Type: t, Raw: m}, nil
}

type AuthPayload struct {
	Token string `json:"token"`
}

type ChatPayload struct {
	To      int64  `json:"to"`
	Content string `json:"content"`
}

type TargetPayload struct {
	To int64 `json:"to"`
}

func (f *Frame) AuthPayload() (*AuthPayload, error) {
	return decode.DecodeMap[AuthPayload](f.Raw)
}

func (f *Frame) ChatPayload() (*ChatPayload, error) {
	return decode.DecodeMap[ChatPayload](f.Raw)
}

func (f *Frame) TargetPayload() (*TargetPayload, error) {
	return decode.DecodeMap[TargetPayload](f.Raw)
}

// ---- server-built envelopes ----

func marshal(m map[string]any) []byte {
	b, _ := json.Marshal(m)
	return b
}

func wireTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func BuildChatDeliver(id, from int64, content string, ts time.Time) []byte {
	return marshal(map[string]any{
		"type":      TypeChat,
		"id":        id,
		"from":      from,
		"content":   content,
		"timestamp": wireTime(ts),
	})
}

func BuildChatAck(id, to int64, content string, ts time.Time) []byte {
	return marshal(map[string]any{
		"type":      TypeChatAck,
		"id":        id,
		"to":        to,
		"content":   content,
		"timestamp": wireTime(ts),
	})
}

func BuildChatError(to int64, msg string) []byte {
	return marshal(map[string]any{
		"type":  TypeChatError,
		"to":    to,
		"error": msg,
	})
}

func BuildTyping(from int64) []byte {
	return marshal(map[string]any{
		"type": TypeTyping,
		"from": from,
	})
}

func BuildAuthError(msg string) []byte {
	return marshal(map[string]any{
		"type":  TypeAuthError,
		"error": msg,
	})
}

func BuildOnlineUsers(users []int64) []byte {
	if users == nil {
		users = []int64{}
	}
	return marshal(map[string]any{
		"type":  TypeOnlineUsers,
		"users": users,
	})
}

func BuildUserStatus(userID int64, online bool) []byte {
	return marshal(map[string]any{
		"type":   TypeUserStatus,
		"userId": userID,
		"online": online,
	})
}

// BuildSignal forwards the original envelope with from overwritten to the
// authenticated sender. Client-supplied from is never trusted.
func BuildSignal(f *Frame, from int64) []byte {
	out := make(map[string]any, len(f.Raw)+1)
	for k, v := range f.Raw {
		out[k] = v
	}
	out["from"] = from
	return marshal(out)
}
