package bridge

import "github.com/dobeutech/dobeunet/internal/pwa"

// Messages sent by the browser bridge script.
const (
	MsgHello             = "hello"
	MsgDisplay           = "display"
	MsgOnline            = "online"
	MsgOffline           = "offline"
	MsgBeforeInstall     = "beforeinstallprompt"
	MsgAppInstalled      = "appinstalled"
	MsgWorkerUpdateFound = "sw-updatefound"
	MsgWorkerStateChange = "sw-statechange"
	MsgInstallClick      = "install-click"
	MsgDismissClick      = "dismiss-click"
	MsgUpdateAccept      = "update-accept"
	MsgResult            = "result"
	MsgPing              = "ping"
)

// Commands sent to the browser bridge script.
const (
	CmdRegister       = "register"
	CmdPreventDefault = "prevent-default"
	CmdPrompt         = "prompt"
	CmdPostMessage    = "post-message"
	CmdReload         = "reload"
	CmdInstallBanner  = "install-banner"
	CmdUpdateBanner   = "update-available"
	CmdOnlineStatus   = "online-status"
	CmdPong           = "pong"
	CmdError          = "error"
)

// Flags is the client environment snapshot reported with hello and display.
type Flags struct {
	ServiceWorker    bool `json:"service_worker"`
	Controlled       bool `json:"controlled"`
	Standalone       bool `json:"standalone"`
	LegacyStandalone bool `json:"legacy_standalone"`
	Online           bool `json:"online"`
}

// ClientMessage is any message read from the browser.
type ClientMessage struct {
	Type     string `json:"type"`
	ID       uint64 `json:"id,omitempty"`
	PromptID uint64 `json:"prompt_id,omitempty"`
	WorkerID string `json:"worker_id,omitempty"`
	State    string `json:"state,omitempty"`
	Flags    *Flags `json:"flags,omitempty"`
	OK       bool   `json:"ok,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ServerMessage is any command written to the browser.
type ServerMessage struct {
	Type     string             `json:"type"`
	ID       uint64             `json:"id,omitempty"`
	PromptID uint64             `json:"prompt_id,omitempty"`
	Script   string             `json:"script,omitempty"`
	Scope    string             `json:"scope,omitempty"`
	WorkerID string             `json:"worker_id,omitempty"`
	Message  *pwa.WorkerMessage `json:"message,omitempty"`
	Show     *bool              `json:"show,omitempty"`
	Online   *bool              `json:"online,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func boolPtr(b bool) *bool { return &b }
