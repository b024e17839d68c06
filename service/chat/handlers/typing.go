package handlers

import (
	"NexusProject/service/chat"
)

// TypingHandler relays typing indicators. Ephemeral: an offline recipient is
// a no-op, never an error.
type TypingHandler struct{}

func NewTypingHandler() chat.Handler { return &TypingHandler{} }

func (h *TypingHandler) Type() string { return chat.TypeTyping }

func (h *TypingHandler) Handle(ctx *chat.Context, f *chat.Frame, c *chat.Client) error {
	sender, ok := c.Identity()
	if !ok {
		return nil
	}

	p, err := f.TargetPayload()
	if err != nil || p.To <= 0 {
		return nil
	}

	if rc, online := ctx.S.Reg().Lookup(p.To); online {
		ctx.S.Push(rc, chat.BuildTyping(sender.UserID))
	}
	return nil
}
