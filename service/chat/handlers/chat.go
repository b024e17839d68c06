package handlers

import (
	"context"
	"time"

	"NexusProject/logger"
	"NexusProject/service/chat"
)

const saveTimeout = 5 * time.Second

// ChatHandler persists, then delivers. The save always happens before the
// online check so history never loses to a disconnect race, and the sender
// always hears back: chat-ack on success, chat-error when the store failed.
type ChatHandler struct{}

func NewChatHandler() chat.Handler { return &ChatHandler{} }

func (h *ChatHandler) Type() string { return chat.TypeChat }

func (h *ChatHandler) Handle(ctx *chat.Context, f *chat.Frame, c *chat.Client) error {
	sender, ok := c.Identity()
	if !ok {
		return nil // unauthenticated: silent drop
	}

	p, err := f.ChatPayload()
	if err != nil || p.To <= 0 || p.Content == "" {
		return nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	id, ts, serr := ctx.S.Store().SaveMessage(sctx, sender.UserID, p.To, p.Content)
	cancel()
	if serr != nil {
		logger.Errorf("[chat] save failed from=%d to=%d: %v", sender.UserID, p.To, serr)
		ctx.S.Push(c, chat.BuildChatError(p.To, "message not saved"))
		return nil
	}

	if rc, online := ctx.S.Reg().Lookup(p.To); online {
		ctx.S.Push(rc, chat.BuildChatDeliver(id, sender.UserID, p.Content, ts))
	}

	// acknowledged regardless of recipient liveness: the record is durable
	ctx.S.Push(c, chat.BuildChatAck(id, p.To, p.Content, ts))
	return nil
}
