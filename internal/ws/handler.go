package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/termbed/termbed/internal/adapter"
	"github.com/termbed/termbed/internal/console"
	"github.com/termbed/termbed/internal/logging"
	"github.com/termbed/termbed/internal/monitoring"
	"github.com/termbed/termbed/internal/sessions"
	"github.com/termbed/termbed/internal/surface"
)

const outboundBuffer = 256

// Message is the JSON frame exchanged with remote viewers.
type Message struct {
	Type string `json:"type"`

	// data frames
	Data string `json:"data,omitempty"`

	// key frames
	Key   string `json:"key,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`

	// start and resize frames
	Session string `json:"session,omitempty"`
	Cols    int    `json:"cols,omitempty"`
	Rows    int    `json:"rows,omitempty"`

	// state frames
	State *surface.State `json:"state,omitempty"`

	// exit frames
	Status string `json:"status,omitempty"`

	// system and error frames
	Message string `json:"message,omitempty"`
}

// Factory creates the shell session a remote viewer drives.
type Factory func(cols, rows int) (sessions.Pseudoterminal, error)

// Options configure a Handler.
type Options struct {
	Logger  *logging.Logger
	Metrics *monitoring.Metrics

	// Factory builds shell sessions; Platform labels them in metrics.
	Factory  Factory
	Platform string

	// Console is the process-wide developer console, attachable with a
	// start frame carrying session "console".
	Console *console.Session

	// ResizeDelay is the debounce window for resize frames.
	ResizeDelay time.Duration
}

// Handler bridges WebSocket clients to terminal sessions. Each
// connection hosts at most one session: output streams to the client
// as data frames, client input and key frames feed the session, and
// resize frames are debounced before they reach the process.
type Handler struct {
	log      *logging.Logger
	metrics  *monitoring.Metrics
	factory  Factory
	platform string
	console  *console.Session
	delay    time.Duration
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler.
func NewHandler(opts Options) *Handler {
	return &Handler{
		log:      opts.Logger.OrNop().Named("ws"),
		metrics:  opts.Metrics,
		factory:  opts.Factory,
		platform: opts.Platform,
		console:  opts.Console,
		delay:    opts.ResizeDelay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// bridge is the per-connection state.
type bridge struct {
	h    *Handler
	conn *websocket.Conn
	out  chan Message
	done chan struct{}

	surf *mirrorSurface
	ad   *adapter.Adapter

	// set when the connection drives the shared console
	isConsole bool
}

// mirrorSurface keeps a local model of the remote terminal and
// forwards every write to the client.
type mirrorSurface struct {
	*surface.Virtual
	send func(Message)
}

func (m *mirrorSurface) Write(data string) error {
	if err := m.Virtual.Write(data); err != nil {
		return err
	}
	m.send(Message{Type: "data", Data: data})
	return nil
}

// HandleConnection upgrades the request and services frames until the
// client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.WSConnected()
	defer h.metrics.WSDisconnected()

	b := &bridge{
		h:    h,
		conn: conn,
		out:  make(chan Message, outboundBuffer),
		done: make(chan struct{}),
	}
	defer b.teardown()
	defer close(b.done)

	// Single writer; producers never write to the socket directly.
	go func() {
		broken := false
		for {
			select {
			case <-b.done:
				return
			case msg := <-b.out:
				if broken {
					continue
				}
				if err := conn.WriteJSON(msg); err != nil {
					broken = true
					continue
				}
				h.metrics.WSMessage(msg.Type, "out")
			}
		}
	}()

	b.send(Message{Type: "system", Message: "connected"})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		h.metrics.WSMessage(msg.Type, "in")
		b.dispatch(c.Request.Context(), msg)
	}
}

func (b *bridge) dispatch(ctx context.Context, msg Message) {
	switch msg.Type {
	case "start":
		b.handleStart(msg)
	case "data":
		if b.surf == nil {
			b.sendError("no session started")
			return
		}
		b.surf.EmitData(msg.Data)
	case "key":
		if b.surf == nil {
			b.sendError("no session started")
			return
		}
		b.surf.EmitKey(surface.KeyEvent{
			Key: msg.Key, Alt: msg.Alt, Ctrl: msg.Ctrl, Shift: msg.Shift,
		})
	case "resize":
		b.handleResize(msg)
	case "kill":
		b.handleKill(ctx)
	case "serialize":
		if b.surf == nil {
			b.sendError("no session started")
			return
		}
		st := b.surf.Serialize()
		b.send(Message{Type: "state", State: &st})
	case "ping":
		b.send(Message{Type: "pong"})
	default:
		b.sendError("unknown message type")
	}
}

func (b *bridge) handleStart(msg Message) {
	if b.surf != nil {
		b.sendError("session already started")
		return
	}
	cols, rows := msg.Cols, msg.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	surf := &mirrorSurface{Virtual: surface.NewVirtual(cols, rows), send: b.send}

	if msg.Session == "console" {
		if b.h.console == nil {
			b.sendError("console not available")
			return
		}
		if err := b.h.console.Pipe(surf); err != nil {
			b.sendError(err.Error())
			return
		}
		b.surf = surf
		b.isConsole = true
		b.send(Message{Type: "started", Session: "console"})
		return
	}

	if b.h.factory == nil {
		b.sendError("no session factory configured")
		return
	}
	ad, err := adapter.New(surf, func() (sessions.Pseudoterminal, error) {
		return b.h.factory(cols, rows)
	}, adapter.Options{Logger: b.h.log, ResizeDelay: b.h.delay})
	if err != nil {
		b.sendError(err.Error())
		return
	}
	// The adapter is registered before the spawn completes and the
	// spawn is awaited off the request context: a client that vanishes
	// mid-spawn still reaches teardown's kill path, never a live
	// session with no owner.
	b.ad = ad
	term, err := ad.Session(context.Background())
	if err != nil {
		b.sendError(err.Error())
		return
	}
	b.surf = surf
	b.h.metrics.SessionSpawned(b.h.platform)
	b.send(Message{Type: "started", Session: "shell"})

	go func() {
		st, err := term.Exit().Await(context.Background())
		b.h.metrics.SessionExited(st, err)
		out := Message{Type: "exit", Status: st.String()}
		if err != nil {
			out.Status = "unknown"
			out.Message = err.Error()
		}
		b.send(out)
	}()
}

func (b *bridge) handleResize(msg Message) {
	if msg.Cols <= 0 || msg.Rows <= 0 {
		b.sendError("bad geometry")
		return
	}
	switch {
	case b.ad != nil:
		// Debounced; run off the read loop so bursts can coalesce.
		go func() {
			if err := b.ad.Resize(msg.Cols, msg.Rows); err != nil {
				b.h.log.Warn("resize failed", zap.Error(err))
				return
			}
			b.h.metrics.SessionResized()
		}()
	case b.surf != nil:
		if err := b.surf.Resize(msg.Cols, msg.Rows); err != nil {
			b.sendError(err.Error())
		}
	default:
		b.sendError("no session started")
	}
}

func (b *bridge) handleKill(ctx context.Context) {
	if b.ad == nil {
		b.sendError("no killable session")
		return
	}
	term, err := b.ad.Session(ctx)
	if err != nil {
		b.sendError(err.Error())
		return
	}
	b.h.metrics.SessionKilled()
	if err := term.Kill(); err != nil {
		b.sendError(err.Error())
	}
}

// teardown releases whatever the connection was driving: shell
// sessions are killed with the surface disposed, while the shared
// console is only detached.
func (b *bridge) teardown() {
	switch {
	case b.isConsole:
		b.h.console.Detach(b.surf)
		b.surf.Dispose()
	case b.ad != nil:
		if err := b.ad.Close(); err != nil {
			b.h.log.Warn("session teardown failed", zap.Error(err))
		}
	case b.surf != nil:
		b.surf.Dispose()
	}
}

func (b *bridge) send(msg Message) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.out <- msg:
	default:
		// Slow client; drop rather than stall the session.
	}
}

func (b *bridge) sendError(text string) {
	b.send(Message{Type: "error", Message: text})
}
