package handlers

import (
	"context"
	"time"

	"NexusProject/logger"
	"NexusProject/service/chat"
)

// AuthHandler drives the session's only state transition. Verifier failure is
// answered on this connection alone and leaves the session re-authenticable;
// success registers the connection and announces the transition.
type AuthHandler struct{}

func NewAuthHandler() chat.Handler { return &AuthHandler{} }

func (h *AuthHandler) Type() string { return chat.TypeAuth }

func (h *AuthHandler) Handle(ctx *chat.Context, f *chat.Frame, c *chat.Client) error {
	if _, ok := c.Identity(); ok {
		// identity is immutable once bound; re-auth is a no-op
		return nil
	}

	ap, err := f.AuthPayload()
	if err != nil || ap.Token == "" {
		ctx.S.Push(c, chat.BuildAuthError("Invalid token"))
		return nil
	}

	ident, verr := ctx.S.Verifier().Verify(ap.Token)
	if verr != nil {
		logger.Debugf("[auth] verify failed conn=%s: %v", c.ConnID, verr)
		ctx.S.Push(c, chat.BuildAuthError("Invalid token"))
		return nil
	}

	c.Bind(ident)

	// replace policy: a second login evicts the old handle entirely
	prev := ctx.S.Reg().Register(ident.UserID, c)
	if prev != nil {
		logger.Infof("[auth] user %d reconnected, evicting conn=%s", ident.UserID, prev.ConnID)
		prev.Close()
	}

	if m := ctx.S.Mirror(); m != nil {
		mctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := m.Online(mctx, ident.UserID, c.ConnID); err != nil {
			logger.Warnf("[presence] online err user=%d: %v", ident.UserID, err)
		}
		cancel()
	}

	// the user transitions online only when it was not connected before;
	// a replaced handle means it never went offline
	if prev == nil {
		ctx.S.BroadcastStatus(ident.UserID, true)
	}

	ctx.S.Push(c, chat.BuildOnlineUsers(ctx.S.Reg().Snapshot()))

	logger.Infof("[auth] user %s (%d) connected conn=%s", ident.DisplayName, ident.UserID, c.ConnID)
	return nil
}
