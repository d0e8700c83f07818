// Package pwa coordinates the install and update lifecycle of an installable
// web app for a single client. The coordinator owns the deferred install
// prompt, the waiting update worker and the connectivity listeners; the host
// (a browser bridge, or a fake in tests) feeds it signals and answers its
// queries through the interfaces in host.go.
package pwa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	DefaultScriptURL = "/service-worker.js"
	DefaultScope     = "/"
)

// ErrNoUpdate is returned by ApplyUpdate when no installed worker is waiting.
var ErrNoUpdate = errors.New("pwa: no update waiting")

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithWorkerScript overrides the worker script and scope registered by
// RegisterServiceWorker.
func WithWorkerScript(scriptURL, scope string) Option {
	return func(c *Coordinator) {
		c.scriptURL = scriptURL
		c.scope = scope
	}
}

// WithUpdateConfirm makes the coordinator ask confirm synchronously when an
// update is waiting and apply it on acceptance. Without it the update is only
// announced through an UpdateAvailable notification.
func WithUpdateConfirm(confirm func(ctx context.Context) bool) Option {
	return func(c *Coordinator) {
		c.confirm = confirm
	}
}

// Coordinator is the single owner of one client's install/update state.
type Coordinator struct {
	host     Host
	workers  WorkerContainer
	storage  Storage
	logger   *slog.Logger
	recorder Recorder
	confirm  func(ctx context.Context) bool
	bus      *Bus
	online   listeners

	scriptURL string
	scope     string

	mu           sync.Mutex
	listening    bool
	handle       PromptHandle
	state        State
	registration *Registration
	waiting      Worker
}

// NewCoordinator builds a coordinator for one client. workers may be nil when
// the client has no background worker support.
func NewCoordinator(host Host, workers WorkerContainer, storage Storage, opts ...Option) *Coordinator {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	c := &Coordinator{
		host:      host,
		workers:   workers,
		storage:   storage,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder:  noopRecorder{},
		bus:       NewBus(),
		scriptURL: DefaultScriptURL,
		scope:     DefaultScope,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn for notifications of the given kind.
func (c *Coordinator) Subscribe(kind Kind, fn func(Notification)) *Subscription {
	return c.bus.Subscribe(kind, fn)
}

// State returns the current install lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RegisterServiceWorker registers the update worker. Clients without worker
// support resolve to (nil, nil) after a warning.
func (c *Coordinator) RegisterServiceWorker(ctx context.Context) (*Registration, error) {
	if c.workers == nil || !c.workers.Supported() {
		c.logger.Warn("service workers are not supported by this client")
		return nil, nil
	}

	reg, err := c.workers.Register(ctx, c.scriptURL, c.scope)
	if err != nil {
		c.logger.Error("service worker registration failed", slog.Any("error", err))
		return nil, fmt.Errorf("register service worker: %w", err)
	}

	c.mu.Lock()
	c.registration = reg
	c.mu.Unlock()
	c.logger.Debug("service worker registered", slog.String("scope", reg.Scope))
	return reg, nil
}

// HandleWorkerStateChange is called by the host for every state change of a
// worker found installing after registration. A worker reaching "installed"
// while another worker controls the page is a waiting update.
func (c *Coordinator) HandleWorkerStateChange(ctx context.Context, w Worker, state WorkerState) {
	if state != WorkerInstalled {
		return
	}

	c.mu.Lock()
	registered := c.registration != nil
	c.mu.Unlock()
	if !registered {
		return
	}
	if !c.workers.Controlled() {
		// First install, nothing to replace.
		return
	}

	c.mu.Lock()
	c.waiting = w
	c.mu.Unlock()

	c.recorder.UpdateOffered()
	c.bus.Publish(Notification{Kind: UpdateAvailable})

	if c.confirm == nil {
		return
	}
	if !c.confirm(ctx) {
		c.logger.Info("update declined, waiting worker stays inactive")
		return
	}
	if err := c.ApplyUpdate(ctx); err != nil {
		c.logger.Error("failed to apply update", slog.Any("error", err))
	}
}

// ApplyUpdate tells the waiting worker to take over and reloads the page.
func (c *Coordinator) ApplyUpdate(ctx context.Context) error {
	c.mu.Lock()
	w := c.waiting
	c.waiting = nil
	c.mu.Unlock()

	if w == nil {
		return ErrNoUpdate
	}
	if err := w.PostMessage(ctx, SkipWaiting); err != nil {
		return fmt.Errorf("post skip waiting: %w", err)
	}
	if err := c.host.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// SetupInstallPrompt starts accepting install eligibility and completion
// signals. Signals received before setup are ignored.
func (c *Coordinator) SetupInstallPrompt() {
	c.mu.Lock()
	c.listening = true
	c.mu.Unlock()
}

// HandleBeforeInstallPrompt suppresses the host's install UI, keeps the
// prompt handle (replacing any older one) and announces InstallAvailable.
// Once the app is installed, offers are suppressed and dropped.
func (c *Coordinator) HandleBeforeInstallPrompt(ev EligibilityEvent) {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	installed := c.state == StateInstalled
	if !installed {
		c.handle = ev.Handle()
		if !c.state.Terminal() {
			c.state = StateAvailable
		}
	}
	c.mu.Unlock()

	// PreventDefault may do host I/O, so it runs outside the lock.
	ev.PreventDefault()
	if installed {
		return
	}

	c.recorder.InstallOffered()
	c.bus.Publish(Notification{Kind: InstallAvailable})
}

// HandleAppInstalled clears the prompt handle and announces Installed.
func (c *Coordinator) HandleAppInstalled() {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	c.state = StateInstalled
	c.mu.Unlock()

	c.recorder.AppInstalled()
	c.bus.Publish(Notification{Kind: Installed})
}

// PromptInstall shows the deferred install prompt and reports whether the
// user accepted. Without a live handle it returns false and does nothing.
// The handle is consumed whatever the outcome.
func (c *Coordinator) PromptInstall(ctx context.Context) (bool, error) {
	c.mu.Lock()
	h := c.handle
	if h == nil {
		c.mu.Unlock()
		return false, nil
	}
	c.handle = nil
	c.state = StateConsumed
	c.mu.Unlock()

	outcome, err := h.Prompt(ctx)
	if err != nil {
		c.recorder.PromptOutcome("error")
		return false, fmt.Errorf("prompt install: %w", err)
	}
	c.recorder.PromptOutcome(string(outcome))

	accepted := outcome == OutcomeAccepted
	if !accepted {
		c.mu.Lock()
		if c.state == StateConsumed {
			c.state = StateDeclined
		}
		c.mu.Unlock()
	}
	return accepted, nil
}

// IsInstalled reports whether the app runs as an installed app.
func (c *Coordinator) IsInstalled() bool {
	return c.host.StandaloneDisplayMode() || c.host.LegacyStandalone()
}

// Dismiss records that the user declined the install offer on this device.
func (c *Coordinator) Dismiss(ctx context.Context) error {
	if err := c.storage.Set(ctx, DismissalKey, "true"); err != nil {
		return fmt.Errorf("persist dismissal: %w", err)
	}

	c.mu.Lock()
	if c.state != StateInstalled {
		c.state = StateDismissed
	}
	c.mu.Unlock()

	c.recorder.InstallDismissed()
	return nil
}

// Dismissed reads the dismissal flag from device storage.
func (c *Coordinator) Dismissed(ctx context.Context) (bool, error) {
	v, ok, err := c.storage.Get(ctx, DismissalKey)
	if err != nil {
		return false, fmt.Errorf("read dismissal: %w", err)
	}
	return ok && v == "true", nil
}

// ShouldOfferInstall reports whether an install affordance may be shown now.
func (c *Coordinator) ShouldOfferInstall(ctx context.Context) (bool, error) {
	c.mu.Lock()
	live := c.handle != nil && c.state != StateInstalled
	c.mu.Unlock()
	if !live || c.IsInstalled() {
		return false, nil
	}
	dismissed, err := c.Dismissed(ctx)
	if err != nil {
		return false, err
	}
	return !dismissed, nil
}
