package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"NexusProject/logger"
	"NexusProject/tools/ids"
)

const (
	readLimit = 1 << 20 // 1MB
	pongWait  = 60 * time.Second
)

// CredentialVerifier validates a bearer token and yields the identity claim.
// Invalid or expired tokens come back as an error, never a panic.
type CredentialVerifier interface {
	Verify(token string) (Identity, error)
}

// MessageStore is the durable store consulted once per routed chat envelope.
type MessageStore interface {
	SaveMessage(ctx context.Context, senderID, receiverID int64, content string) (int64, time.Time, error)
}

// PresenceMirror optionally publishes liveness to a shared store so other
// nodes can read it. The in-process registry stays authoritative.
type PresenceMirror interface {
	Online(ctx context.Context, userID int64, connID string) error
	Renew(ctx context.Context, userID int64, connID string) error
	Offline(ctx context.Context, userID int64, connID string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the relay: registry, dispatcher, fan-out and the collaborator
// interfaces. One read goroutine per connection; the registry is the only
// shared state and is never held across verifier/store calls.
type Server struct {
	reg      *Registry
	disp     *Dispatcher
	fan      *Fanout
	verifier CredentialVerifier
	store    MessageStore
	mirror   PresenceMirror // nil => mirror disabled
}

func NewServer(verifier CredentialVerifier, store MessageStore) *Server {
	return &Server{
		reg:      NewRegistry(),
		disp:     NewDispatcher(),
		fan:      NewFanout(4, 1024),
		verifier: verifier,
		store:    store,
	}
}

func (s *Server) SetMirror(m PresenceMirror) { s.mirror = m }

func (s *Server) Reg() *Registry               { return s.reg }
func (s *Server) Disp() *Dispatcher            { return s.disp }
func (s *Server) Verifier() CredentialVerifier { return s.verifier }
func (s *Server) Store() MessageStore          { return s.store }
func (s *Server) Mirror() PresenceMirror       { return s.mirror }

// IsOnline is the liveness view exposed to CRUD surfaces.
func (s *Server) IsOnline(userID int64) bool { return s.reg.IsOnline(userID) }

func (s *Server) OnlineUsers() []int64 { return s.reg.Snapshot() }

// Push enqueues to one client; a full queue means a dead consumer, which is
// closed so back-pressure never reaches unrelated senders.
func (s *Server) Push(c *Client, payload []byte) {
	if c == nil {
		return
	}
	if !c.Enqueue(payload) {
		logger.Warnf("[ws] send queue full, closing conn=%s", c.ConnID)
		c.Close()
	}
}

// BroadcastStatus fans the online/offline transition out to every registered
// connection except the subject's own.
func (s *Server) BroadcastStatus(userID int64, online bool) {
	conns := s.reg.SnapshotClients(userID)
	s.fan.Broadcast(conns, BuildUserStatus(userID, online))
}

// HandleWS upgrades the connection and runs its read loop until close.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), ws)
	logger.Infof("[ws] connected conn=%s remote=%s", client.ConnID, ws.RemoteAddr())

	go client.writeLoop(func() { s.renewPresence(client) })

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer s.teardown(client)

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			// malformed frame from a buggy client: drop, keep the session
			logger.Debugf("[ws] bad frame conn=%s err=%v len=%d", client.ConnID, perr, len(data))
			continue
		}

		h := s.disp.GetHandler(frame.Type)
		if h == nil {
			// unknown tag: auditable no-op
			logger.Debugf("[ws] no handler conn=%s type=%q", client.ConnID, frame.Type)
			continue
		}

		if herr := h.Handle(&Context{S: s}, frame, client); herr != nil {
			// per-connection faults stay on this connection
			logger.Warnf("[ws] handler err conn=%s type=%s err=%v", client.ConnID, frame.Type, herr)
		}
	}
}

// teardown runs exactly once per connection: close, deregister (only if the
// registry still points at this client) and one offline broadcast.
func (s *Server) teardown(client *Client) {
	client.Close()

	ident, ok := client.Identity()
	if !ok {
		logger.Infof("[ws] closed unauth conn=%s", client.ConnID)
		return
	}
	if !s.reg.Deregister(ident.UserID, client) {
		// replaced by a newer connection; that session owns presence now
		logger.Infof("[ws] closed superseded conn=%s user=%d", client.ConnID, ident.UserID)
		return
	}

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.mirror.Offline(ctx, ident.UserID, client.ConnID); err != nil {
			logger.Warnf("[presence] offline err user=%d: %v", ident.UserID, err)
		}
		cancel()
	}

	s.BroadcastStatus(ident.UserID, false)
	logger.Infof("[ws] user %d disconnected conn=%s", ident.UserID, client.ConnID)
}

func (s *Server) renewPresence(client *Client) {
	if s.mirror == nil {
		return
	}
	ident, ok := client.Identity()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.mirror.Renew(ctx, ident.UserID, client.ConnID); err != nil {
		logger.Debugf("[presence] renew err user=%d: %v", ident.UserID, err)
	}
}
