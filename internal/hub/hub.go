// Package hub keeps the websocket connections of open session pages and
// pushes toasts, navigation, timer ticks and video frames to them.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
)

var (
	ErrNoConnection = errors.New("no page connected for session")
	ErrBackpressure = errors.New("send buffer full")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// AllowedOrigins lists the page origins allowed to attach. Empty means
	// same host only; "*" allows any origin.
	AllowedOrigins []string
}

type Hub struct {
	log      zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[int64]map[*conn]struct{}
	onFrame func(sessionID int64, data []byte)
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *conn) trySend(b []byte) error {
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

func New(log zerolog.Logger, opts Options) *Hub {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	return &Hub{
		log:  log.With().Str("module", "hub").Logger(),
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
		conns: make(map[int64]map[*conn]struct{}),
	}
}

// OnFrame registers the handler for frames sent by session pages.
func (h *Hub) OnFrame(fn func(sessionID int64, data []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFrame = fn
}

// Serve upgrades the request and attaches the page to sessionID until the
// socket closes or ctx ends.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID int64) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &conn{id: uuid.NewString(), ws: ws, send: make(chan []byte, 32)}
	h.attach(sessionID, c)
	h.log.Info().Int64("session_id", sessionID).Str("conn", c.id).Msg("page connected")

	ctx, cancel := context.WithCancel(ctx)
	go h.writePump(ctx, c)
	go func() {
		defer cancel()
		defer h.detach(sessionID, c)
		h.readPump(ctx, sessionID, c)
	}()
	return nil
}

func (h *Hub) attach(sessionID int64, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[sessionID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) detach(sessionID int64, c *conn) {
	h.mu.Lock()
	if set, ok := h.conns[sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
	h.log.Info().Int64("session_id", sessionID).Str("conn", c.id).Msg("page disconnected")
}

func (h *Hub) writePump(ctx context.Context, c *conn) {
	ping := time.NewTicker(h.opts.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				h.log.Error().Err(err).Str("conn", c.id).Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Error().Err(err).Str("conn", c.id).Msg("writePump write error")
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				h.log.Warn().Err(err).Str("conn", c.id).Msg("ping failed")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, sessionID int64, c *conn) {
	c.ws.SetReadLimit(h.opts.ReadLimit)
	wait := h.opts.PingPeriod * 2
	_ = c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Int64("session_id", sessionID).Msg("readPump read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))

		h.mu.RLock()
		fn := h.onFrame
		h.mu.RUnlock()
		if fn != nil {
			fn(sessionID, data)
		}
	}
}

// Send marshals frame and queues it on every page of the session.
func (h *Hub) Send(sessionID int64, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.conns[sessionID]
	if len(set) == 0 {
		return ErrNoConnection
	}
	var errs []error
	for c := range set {
		if err := c.trySend(data); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(set) {
		return errors.Join(errs...)
	}
	return nil
}

// Connected reports how many pages are attached to a session.
func (h *Hub) Connected(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[sessionID])
}

func (h *Hub) Notify(_ context.Context, n notify.Notification) error {
	return h.Send(n.SessionID, struct {
		Type string `json:"type"`
		notify.Notification
	}{Type: "notification", Notification: n})
}

func (h *Hub) NavigateBack(_ context.Context, sessionID, planID int64) error {
	frame := map[string]any{"type": "navigate"}
	if planID != 0 {
		frame["res_model"] = model.ModelPlan
		frame["res_id"] = planID
		frame["view"] = "form"
	} else {
		frame["history_back"] = true
	}
	return h.Send(sessionID, frame)
}

func (h *Hub) MoveVideo(_ context.Context, sessionID int64, dock model.Dock) error {
	return h.Send(sessionID, map[string]any{"type": "move_video", "target": dock})
}

func (h *Hub) ShowElapsed(sessionID int64, display string) {
	// Ticks are cosmetic; a page that is not attached just misses them.
	_ = h.Send(sessionID, map[string]any{"type": "timer", "elapsed": display})
}

// originChecker returns nil for an empty list, which leaves gorilla's
// same-host check in place.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
