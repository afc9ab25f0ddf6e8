// Package backend abstracts the browser automation engine driving a session.
// One Browser is one live browser process; it serves exactly one protocol
// session and can host arbitrarily many pages.
package backend

import (
	"context"
	"time"
)

// Abort reasons accepted by InterceptedRequest.Abort. These are the engine's
// net-error aliases; protocol-level error reasons are mapped down to this set.
const (
	AbortFailed             = "failed"
	AbortAborted            = "aborted"
	AbortAccessDenied       = "accessdenied"
	AbortAddressUnreachable = "addressunreachable"
	AbortBlockedByClient    = "blockedbyclient"
	AbortConnectionFailed   = "connectionfailed"
	AbortTimedOut           = "timedout"
)

// LaunchOptions configures browser startup.
type LaunchOptions struct {
	Headless       bool
	ExecPath       string   // optional browser binary override
	Args           []string // extra launch arguments
	ViewportWidth  int
	ViewportHeight int
	DefaultTimeout time.Duration // applied to navigation and evaluation
}

// NavigateOptions configures navigation-like operations.
type NavigateOptions struct {
	WaitUntil string // "load", "domcontentloaded", "networkidle"
	Timeout   time.Duration
}

// NavigateResult reports the outcome of a navigation.
type NavigateResult struct {
	Status int  // HTTP status of the main response, 0 when none was produced
	OK     bool // true for 2xx/3xx or no-response navigations (about:blank)
}

// ScreenshotOptions configures a capture.
type ScreenshotOptions struct {
	Format   string // "png" (default) or "jpeg"
	Quality  int    // jpeg only, 0 means engine default
	FullPage bool
	Clip     *Clip
}

// Clip is a capture region in CSS pixels.
type Clip struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// PDFOptions configures PDF rendering. Nil fields are left to engine
// defaults; dimensions and margins are in inches.
type PDFOptions struct {
	Landscape           *bool
	DisplayHeaderFooter *bool
	PrintBackground     *bool
	PreferCSSPageSize   *bool
	HeaderTemplate      *string
	FooterTemplate      *string
	Scale               *float64
	PaperWidth          *float64
	PaperHeight         *float64
	MarginTop           *float64
	MarginBottom        *float64
	MarginLeft          *float64
	MarginRight         *float64
	PageRanges          *string
}

// MediaOptions configures media emulation. Empty strings leave the
// corresponding feature untouched.
type MediaOptions struct {
	Media         string // "screen", "print", or "" to reset
	ColorScheme   string // "light", "dark", "no-preference"
	ReducedMotion string // "reduce", "no-preference"
}

// Cookie is a browser cookie in engine-neutral form.
type Cookie struct {
	Name     string
	Value    string
	URL      string // set-time only, alternative to Domain/Path
	Domain   string
	Path     string
	Expires  float64 // unix seconds, 0 means session cookie
	HTTPOnly bool
	Secure   bool
	SameSite string // "Strict", "Lax", "None"
}

// CookieFilter selects cookies for deletion. Empty fields match anything.
type CookieFilter struct {
	Name   string
	Domain string
	Path   string
}

// ContinueOverrides carries optional request mutations for a continued
// intercepted request. Zero values mean "keep the original".
type ContinueOverrides struct {
	URL      string
	Method   string
	PostData []byte
	Headers  map[string]string
}

// Fulfillment is a synthesized response for an intercepted request.
type Fulfillment struct {
	Status      int
	Headers     map[string]string
	ContentType string
	Body        []byte
}

// Dialog is a JavaScript dialog (alert, confirm, prompt) awaiting a decision.
type Dialog interface {
	Type() string
	Message() string
	Accept(promptText string) error
	Dismiss() error
}

// InterceptedRequest is a network request paused before leaving the browser.
// Exactly one of Continue, Fulfill, or Abort must eventually be called;
// until then the request stalls.
type InterceptedRequest interface {
	URL() string
	Method() string
	Headers() map[string]string
	ResourceType() string
	PostData() string

	Continue(overrides ContinueOverrides) error
	Fulfill(f Fulfillment) error
	Abort(reason string) error
}

// Browser is one live browser process.
type Browser interface {
	// NewPage opens a fresh page.
	NewPage(ctx context.Context) (Page, error)

	// Version reports the engine version string, e.g. "142.0.7423.9".
	Version() string

	// Close tears the process down. Safe to call more than once.
	Close() error
}

// Page is a single tab controlled by the session.
type Page interface {
	Close() error
	URL() string
	Title() (string, error)
	BringToFront() error
	StopLoading() error

	Navigate(ctx context.Context, url string, opts NavigateOptions) (*NavigateResult, error)
	Reload(ctx context.Context, opts NavigateOptions) (*NavigateResult, error)
	Content(ctx context.Context) (string, error)
	SetContent(ctx context.Context, html string, opts NavigateOptions) error

	// Evaluate runs an expression (or a function literal applied to args)
	// in page context and returns the JSON-decoded result.
	Evaluate(ctx context.Context, expression string, args ...any) (any, error)

	// AddInitScript arms a script to run before every future document load.
	AddInitScript(source string) error

	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	PDF(ctx context.Context, opts PDFOptions) ([]byte, error)

	SetViewport(width, height int) error
	SetGeolocation(latitude, longitude, accuracy float64) error
	EmulateMedia(opts MediaOptions) error
	SetBypassCSP(enabled bool) error
	SetCacheDisabled(disabled bool) error
	SetUserAgent(userAgent string) error
	SetExtraHeaders(headers map[string]string) error

	Cookies(ctx context.Context, urls ...string) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	DeleteCookies(ctx context.Context, filter CookieFilter) error

	MouseMove(x, y float64) error
	MouseDown(button string, clickCount int) error
	MouseUp(button string, clickCount int) error
	MouseWheel(deltaX, deltaY float64) error
	Click(x, y float64) error
	KeyDown(key string) error
	KeyUp(key string) error
	KeyPress(key string) error
	InsertText(text string) error

	Focus(selector string) error
	ScrollIntoView(selector string) error
	SetInputFiles(ctx context.Context, selector string, paths []string) error

	// OnDialog registers the dialog callback. Dialogs arriving with no
	// callback registered are dismissed by the engine layer.
	OnDialog(handler func(Dialog))

	// RouteRequests installs a catch-all interception hook. Every request
	// on the page is handed to the callback, which must resolve it
	// (continue, fulfill, or abort) now or later. Installing twice is a
	// no-op; pattern filtering is the caller's concern.
	RouteRequests(handler func(InterceptedRequest)) error
}
