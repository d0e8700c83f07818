package pwa

import "context"

// Host exposes the client environment flags the coordinator reads on demand.
type Host interface {
	// StandaloneDisplayMode reports whether the app is rendered in the
	// standalone (installed) display mode.
	StandaloneDisplayMode() bool
	// LegacyStandalone reports the platform specific navigator.standalone flag.
	LegacyStandalone() bool
	// Online reports the current network status.
	Online() bool
	// Reload forces a full page reload.
	Reload(ctx context.Context) error
}

// WorkerContainer registers the background update worker.
type WorkerContainer interface {
	Supported() bool
	// Controlled reports whether an active worker currently controls the page.
	Controlled() bool
	Register(ctx context.Context, scriptURL, scope string) (*Registration, error)
}

// Registration describes a successful worker registration.
type Registration struct {
	ScriptURL string
	Scope     string
}

// Worker is a background update worker the coordinator can message.
type Worker interface {
	PostMessage(ctx context.Context, msg WorkerMessage) error
}

// WorkerState mirrors the service worker lifecycle states.
type WorkerState string

const (
	WorkerInstalling WorkerState = "installing"
	WorkerInstalled  WorkerState = "installed"
	WorkerActivating WorkerState = "activating"
	WorkerActivated  WorkerState = "activated"
	WorkerRedundant  WorkerState = "redundant"
)

// WorkerMessage is posted to a worker.
type WorkerMessage struct {
	Type string `json:"type"`
}

// SkipWaiting asks a waiting worker to take over immediately.
var SkipWaiting = WorkerMessage{Type: "SKIP_WAITING"}

// Outcome is the user's answer to an install prompt.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDismissed Outcome = "dismissed"
)

// PromptHandle is the host's deferred offer to install the app. It is valid
// for a single Prompt call.
type PromptHandle interface {
	Prompt(ctx context.Context) (Outcome, error)
}

// EligibilityEvent is the host signal fired when the app becomes installable.
type EligibilityEvent interface {
	// PreventDefault suppresses the host's own install UI.
	PreventDefault()
	Handle() PromptHandle
}

// Storage is a device-local key/value area, the equivalent of localStorage.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Recorder receives lifecycle counters.
type Recorder interface {
	InstallOffered()
	PromptOutcome(outcome string)
	AppInstalled()
	InstallDismissed()
	UpdateOffered()
}

type noopRecorder struct{}

func (noopRecorder) InstallOffered()      {}
func (noopRecorder) PromptOutcome(string) {}
func (noopRecorder) AppInstalled()        {}
func (noopRecorder) InstallDismissed()    {}
func (noopRecorder) UpdateOffered()       {}
