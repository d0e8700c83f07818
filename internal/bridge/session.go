package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dobeutech/dobeunet/internal/pwa"
)

// Options tunes every session created by a Hub.
type Options struct {
	// Production enables background worker registration.
	Production bool
	// PromptTimeout bounds how long an install prompt may wait for the user.
	PromptTimeout time.Duration
	// CallTimeout bounds other commands that expect a result.
	CallTimeout  time.Duration
	WriteTimeout time.Duration
	Recorder     Recorder
}

// Recorder receives lifecycle and session counters.
type Recorder interface {
	pwa.Recorder
	SessionOpened()
	SessionClosed()
}

func (o Options) withDefaults() Options {
	if o.PromptTimeout <= 0 {
		o.PromptTimeout = 2 * time.Minute
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Session adapts one websocket connection to the coordinator's host
// interfaces and owns that client's coordinator.
type Session struct {
	id       string
	deviceID string
	conn     *websocket.Conn
	opts     Options
	logger   *slog.Logger
	coord    *pwa.Coordinator
	pending  *pendingCalls

	writeMu sync.Mutex

	flagsMu sync.RWMutex
	flags   Flags

	started atomic.Bool
	wg      sync.WaitGroup
}

func newSession(id, deviceID string, conn *websocket.Conn, storage pwa.Storage, opts Options, logger *slog.Logger) *Session {
	s := &Session{
		id:       id,
		deviceID: deviceID,
		conn:     conn,
		opts:     opts,
		logger:   logger.With(slog.String("session_id", id), slog.String("device_id", deviceID)),
		pending:  newPendingCalls(),
	}
	coordOpts := []pwa.Option{pwa.WithLogger(s.logger)}
	if opts.Recorder != nil {
		coordOpts = append(coordOpts, pwa.WithRecorder(opts.Recorder))
	}
	s.coord = pwa.NewCoordinator(s, s, storage, coordOpts...)
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) DeviceID() string { return s.deviceID }

// Coordinator exposes the session's lifecycle coordinator.
func (s *Session) Coordinator() *pwa.Coordinator { return s.coord }

// Serve reads client messages until the connection closes or ctx ends.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	subs := []*pwa.Subscription{
		s.coord.Subscribe(pwa.InstallAvailable, func(pwa.Notification) { s.offerInstall(ctx) }),
		s.coord.Subscribe(pwa.Installed, func(pwa.Notification) { s.showInstallBanner(false) }),
		s.coord.Subscribe(pwa.UpdateAvailable, func(pwa.Notification) {
			s.sendLogged(ServerMessage{Type: CmdUpdateBanner})
		}),
	}
	unregister := s.coord.SetupOnlineStatusListener(func(online bool) {
		s.sendLogged(ServerMessage{Type: CmdOnlineStatus, Online: boolPtr(online)})
	})

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	err := s.readLoop(ctx)

	cancel()
	s.pending.close()
	s.wg.Wait()
	unregister()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		s.dispatch(ctx, msg)
	}
}

func (s *Session) dispatch(ctx context.Context, msg ClientMessage) {
	if msg.Flags != nil {
		s.setFlags(*msg.Flags)
	}

	switch msg.Type {
	case MsgHello:
		s.start(ctx)
	case MsgDisplay:
		// flags applied above
	case MsgOnline:
		s.setOnline(true)
		s.coord.HandleOnline()
	case MsgOffline:
		s.setOnline(false)
		s.coord.HandleOffline()
	case MsgBeforeInstall:
		s.coord.HandleBeforeInstallPrompt(&remoteEvent{s: s, promptID: msg.PromptID})
	case MsgAppInstalled:
		s.coord.HandleAppInstalled()
	case MsgWorkerUpdateFound:
		s.logger.Debug("worker update found")
	case MsgWorkerStateChange:
		s.coord.HandleWorkerStateChange(ctx, &remoteWorker{s: s, id: msg.WorkerID}, pwa.WorkerState(msg.State))
	case MsgInstallClick:
		s.background(func() { s.promptInstall(ctx) })
	case MsgDismissClick:
		if err := s.coord.Dismiss(ctx); err != nil {
			s.logger.Error("failed to persist install dismissal", slog.Any("error", err))
		}
		s.showInstallBanner(false)
	case MsgUpdateAccept:
		if err := s.coord.ApplyUpdate(ctx); err != nil {
			s.logger.Warn("update not applied", slog.Any("error", err))
		}
	case MsgResult:
		if !s.pending.resolve(msg) {
			s.logger.Debug("result for unknown call", slog.Uint64("id", msg.ID))
		}
	case MsgPing:
		s.sendLogged(ServerMessage{Type: CmdPong})
	default:
		s.sendLogged(ServerMessage{Type: CmdError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// start runs once per session, on the first hello.
func (s *Session) start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.coord.SetupInstallPrompt()

	dismissed, err := s.coord.Dismissed(ctx)
	if err != nil {
		s.logger.Error("failed to read install dismissal", slog.Any("error", err))
	}
	if dismissed || s.coord.IsInstalled() {
		s.showInstallBanner(false)
	}

	if !s.opts.Production {
		return
	}
	s.background(func() {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
		if _, err := s.coord.RegisterServiceWorker(callCtx); err != nil {
			s.logger.Warn("continuing without background worker", slog.Any("error", err))
		}
	})
}

func (s *Session) offerInstall(ctx context.Context) {
	offer, err := s.coord.ShouldOfferInstall(ctx)
	if err != nil {
		s.logger.Error("failed to check install eligibility", slog.Any("error", err))
		return
	}
	if offer {
		s.showInstallBanner(true)
	}
}

func (s *Session) promptInstall(ctx context.Context) {
	accepted, err := s.coord.PromptInstall(ctx)
	if err != nil {
		s.logger.Warn("install prompt failed", slog.Any("error", err))
	}
	s.logger.Info("install prompt finished", slog.Bool("accepted", accepted))
	// The handle is gone either way; a new offer will show the banner again.
	s.showInstallBanner(false)
}

func (s *Session) showInstallBanner(show bool) {
	s.sendLogged(ServerMessage{Type: CmdInstallBanner, Show: boolPtr(show)})
}

// background runs fn outside the read loop. Anything that waits for a
// client result must go through here, or it would wait on itself.
func (s *Session) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) send(msg ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (s *Session) sendLogged(msg ServerMessage) {
	if err := s.send(msg); err != nil {
		s.logger.Debug("failed to send command", slog.String("type", msg.Type), slog.Any("error", err))
	}
}

// call sends msg and waits for the matching result message.
func (s *Session) call(ctx context.Context, msg ServerMessage) (ClientMessage, error) {
	id, ch, err := s.pending.add()
	if err != nil {
		return ClientMessage{}, err
	}
	msg.ID = id
	if err := s.send(msg); err != nil {
		s.pending.forget(id)
		return ClientMessage{}, fmt.Errorf("send %s: %w", msg.Type, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return ClientMessage{}, ErrSessionClosed
		}
		return reply, nil
	case <-ctx.Done():
		s.pending.forget(id)
		return ClientMessage{}, ctx.Err()
	}
}

func (s *Session) setFlags(f Flags) {
	s.flagsMu.Lock()
	s.flags = f
	s.flagsMu.Unlock()
}

func (s *Session) setOnline(online bool) {
	s.flagsMu.Lock()
	s.flags.Online = online
	s.flagsMu.Unlock()
}

func (s *Session) snapshot() Flags {
	s.flagsMu.RLock()
	defer s.flagsMu.RUnlock()
	return s.flags
}

// pwa.Host

func (s *Session) StandaloneDisplayMode() bool { return s.snapshot().Standalone }
func (s *Session) LegacyStandalone() bool      { return s.snapshot().LegacyStandalone }
func (s *Session) Online() bool                { return s.snapshot().Online }

func (s *Session) Reload(context.Context) error {
	return s.send(ServerMessage{Type: CmdReload})
}

// pwa.WorkerContainer

func (s *Session) Supported() bool  { return s.snapshot().ServiceWorker }
func (s *Session) Controlled() bool { return s.snapshot().Controlled }

func (s *Session) Register(ctx context.Context, scriptURL, scope string) (*pwa.Registration, error) {
	reply, err := s.call(ctx, ServerMessage{Type: CmdRegister, Script: scriptURL, Scope: scope})
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = "registration rejected by client"
		}
		return nil, errors.New(msg)
	}
	if reply.Scope != "" {
		scope = reply.Scope
	}
	return &pwa.Registration{ScriptURL: scriptURL, Scope: scope}, nil
}

// remoteEvent is a beforeinstallprompt event held by the bridge script.
type remoteEvent struct {
	s        *Session
	promptID uint64
}

func (e *remoteEvent) PreventDefault() {
	e.s.sendLogged(ServerMessage{Type: CmdPreventDefault, PromptID: e.promptID})
}

func (e *remoteEvent) Handle() pwa.PromptHandle {
	return &remoteHandle{s: e.s, promptID: e.promptID}
}

type remoteHandle struct {
	s        *Session
	promptID uint64
}

func (h *remoteHandle) Prompt(ctx context.Context) (pwa.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, h.s.opts.PromptTimeout)
	defer cancel()

	reply, err := h.s.call(ctx, ServerMessage{Type: CmdPrompt, PromptID: h.promptID})
	if err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	switch outcome := pwa.Outcome(reply.Outcome); outcome {
	case pwa.OutcomeAccepted, pwa.OutcomeDismissed:
		return outcome, nil
	default:
		return "", fmt.Errorf("unexpected prompt outcome %q", reply.Outcome)
	}
}

type remoteWorker struct {
	s  *Session
	id string
}

func (w *remoteWorker) PostMessage(_ context.Context, msg pwa.WorkerMessage) error {
	return w.s.send(ServerMessage{Type: CmdPostMessage, WorkerID: w.id, Message: &msg})
}
