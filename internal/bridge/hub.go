// Package bridge connects browser clients to per-client lifecycle
// coordinators over a websocket. The browser side is web/pwa-bridge.js.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dobeutech/dobeunet/internal/pwa"
)

const (
	// DeviceCookie carries the device id between visits.
	DeviceCookie       = "device_id"
	deviceCookieMaxAge = 400 * 24 * time.Hour
)

// StorageFactory returns the device-local storage area for a device id.
type StorageFactory func(deviceID string) pwa.Storage

// MemoryStorageFactory keeps one in-process storage area per device. Areas
// are lost on restart.
func MemoryStorageFactory() StorageFactory {
	var mu sync.Mutex
	areas := make(map[string]*pwa.MemoryStorage)
	return func(deviceID string) pwa.Storage {
		mu.Lock()
		defer mu.Unlock()
		area, ok := areas[deviceID]
		if !ok {
			area = pwa.NewMemoryStorage()
			areas[deviceID] = area
		}
		return area
	}
}

// Hub upgrades websocket requests and tracks live sessions.
type Hub struct {
	upgrader websocket.Upgrader
	storage  StorageFactory
	opts     Options
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(storage StorageFactory, opts Options, allowedOrigins []string, logger *slog.Logger) *Hub {
	if storage == nil {
		storage = MemoryStorageFactory()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		storage:  storage,
		opts:     opts.withDefaults(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	}
	return h
}

// ServeHTTP upgrades the request and serves the session until it ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID, fresh := resolveDeviceID(r)
	header := http.Header{}
	if fresh {
		cookie := &http.Cookie{
			Name:     DeviceCookie,
			Value:    deviceID,
			Path:     "/",
			MaxAge:   int(deviceCookieMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	s := newSession(uuid.NewString(), deviceID, conn, h.storage(deviceID), h.opts, h.logger)
	h.add(s)
	defer h.remove(s)

	if err := s.Serve(h.ctx); err != nil {
		s.logger.Warn("session ended with error", slog.Any("error", err))
	}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	if h.opts.Recorder != nil {
		h.opts.Recorder.SessionOpened()
	}
	s.logger.Debug("session opened")
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	if h.opts.Recorder != nil {
		h.opts.Recorder.SessionClosed()
	}
	s.logger.Debug("session closed")
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Session looks up a live session by id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Close ends every live session. Sessions opened afterwards end immediately.
func (h *Hub) Close() {
	h.cancel()
}

func resolveDeviceID(r *http.Request) (string, bool) {
	if id := r.URL.Query().Get("device"); validDeviceID(id) {
		return id, false
	}
	if c, err := r.Cookie(DeviceCookie); err == nil && validDeviceID(c.Value) {
		return c.Value, false
	}
	return uuid.NewString(), true
}

func validDeviceID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
