package message

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"NexusProject/logger"
	midsec "NexusProject/middleware/security"
	"NexusProject/service/chat"
	"NexusProject/store/pg"
	"NexusProject/tools/errs"
)

var (
	store *pg.Store
	relay *chat.Server
)

// Init wires the store and the relay; call once from main(). The relay is
// consulted only for its IsOnline view, never for delivery.
func Init(s *pg.Store, r *chat.Server) {
	store = s
	relay = r
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errs.ErrArgs)
		return 0, false
	}
	return id, true
}

// HandlerHistory returns up to 50 messages between the caller and a peer,
// oldest first.
func HandlerHistory(c *gin.Context) {
	peer, ok := paramID(c, "userId")
	if !ok {
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	msgs, err := store.History(c.Request.Context(), midsec.UserID(c), peer, limit)
	if err != nil {
		logger.Errorf("[message] history: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if msgs == nil {
		msgs = []pg.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// HandlerOnline is the liveness view for CRUD surfaces that want to show
// live status without joining the relay.
func HandlerOnline(c *gin.Context) {
	id, ok := paramID(c, "userId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": id, "online": relay.IsOnline(id)})
}

func HandlerAddContact(c *gin.Context) {
	id, ok := paramID(c, "userId")
	if !ok {
		return
	}
	if err := store.AddContact(c.Request.Context(), midsec.UserID(c), id); err != nil {
		logger.Errorf("[message] add contact: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func HandlerContacts(c *gin.Context) {
	contacts, err := store.ListContacts(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		logger.Errorf("[message] contacts: %v", err)
		c.JSON(http.StatusInternalServerError, errs.ErrInternal)
		return
	}
	if contacts == nil {
		contacts = []pg.User{}
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}
