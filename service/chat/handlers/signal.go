package handlers

import (
	"NexusProject/service/chat"
)

// SignalHandler relays one call-signaling family (offer/answer/candidate/
// end/reject) verbatim between two peers, with from stamped server-side.
// The relay never interprets the payload. One instance per family tag.
type SignalHandler struct {
	typ string
}

func NewSignalHandler(typ string) chat.Handler { return &SignalHandler{typ: typ} }

func (h *SignalHandler) Type() string { return h.typ }

func (h *SignalHandler) Handle(ctx *chat.Context, f *chat.Frame, c *chat.Client) error {
	sender, ok := c.Identity()
	if !ok {
		return nil
	}

	p, err := f.TargetPayload()
	if err != nil || p.To <= 0 {
		return nil
	}

	if rc, online := ctx.S.Reg().Lookup(p.To); online {
		ctx.S.Push(rc, chat.BuildSignal(f, sender.UserID))
	}
	return nil
}
