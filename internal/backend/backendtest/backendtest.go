// Package backendtest provides in-memory implementations of the backend
// interfaces for tests. No browser process is involved; behavior is scripted
// through hook functions and every call is recorded for assertions.
package backendtest

import (
	"context"
	"sync"

	"github.com/neboloop/browserd/internal/backend"
)

var (
	_ backend.Browser            = (*Browser)(nil)
	_ backend.Page               = (*Page)(nil)
	_ backend.InterceptedRequest = (*Request)(nil)
	_ backend.Dialog             = (*Dialog)(nil)
)

// Browser is a fake backend.Browser.
type Browser struct {
	// NewPageErr, when set, makes every NewPage call fail.
	NewPageErr error

	// PageSetup, when set, configures each page NewPage creates before it
	// is returned.
	PageSetup func(*Page)

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func NewBrowser() *Browser {
	return &Browser{}
}

func (b *Browser) NewPage(ctx context.Context) (backend.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	p := NewPage()
	if b.PageSetup != nil {
		b.PageSetup(p)
	}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *Browser) Version() string {
	return "142.0.0"
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Pages returns every page opened so far, oldest first.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// Call is one recorded page method invocation.
type Call struct {
	Method string
	Args   []any
}

// Page is a fake backend.Page. The zero value is not usable; construct with
// NewPage.
type Page struct {
	// Hooks consulted before the default behavior. Nil hooks fall through.
	EvaluateFunc func(expression string, args ...any) (any, error)
	NavigateFunc func(url string, opts backend.NavigateOptions) (*backend.NavigateResult, error)

	// Err, when set, fails every operation that returns an error.
	Err error
	// CloseErr, when set, fails Close only.
	CloseErr error

	mu          sync.Mutex
	url         string
	title       string
	content     string
	cookies     []backend.Cookie
	initScripts []string
	closed      bool
	calls       []Call

	dialogHandler func(backend.Dialog)
	routeHandler  func(backend.InterceptedRequest)
}

func NewPage() *Page {
	return &Page{
		url:     "about:blank",
		content: "<html><head></head><body></body></html>",
	}
}

func (p *Page) record(method string, args ...any) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Method: method, Args: args})
	p.mu.Unlock()
}

// Calls returns the recorded invocations of one method, oldest first.
func (p *Page) Calls(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// LastCall returns the most recent invocation of one method.
func (p *Page) LastCall(method string) (Call, bool) {
	calls := p.Calls(method)
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Closed reports whether Close has been called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetURL scripts the page's current URL.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// SetTitle scripts the page's title.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

// InitScripts returns the sources armed via AddInitScript.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initScripts...)
}

// RouteInstalled reports whether RouteRequests has been called.
func (p *Page) RouteInstalled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routeHandler != nil
}

// InjectRequest hands a request to the installed route handler, as the
// engine would when traffic arrives.
func (p *Page) InjectRequest(req *Request) {
	p.mu.Lock()
	handler := p.routeHandler
	p.mu.Unlock()
	if handler != nil {
		handler(req)
	}
}

// InjectDialog hands a dialog to the installed dialog handler.
func (p *Page) InjectDialog(d *Dialog) {
	p.mu.Lock()
	handler := p.dialogHandler
	p.mu.Unlock()
	if handler != nil {
		handler(d)
	}
}

func (p *Page) Close() error {
	p.record("Close")
	if p.CloseErr != nil {
		return p.CloseErr
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, p.Err
}

func (p *Page) BringToFront() error {
	p.record("BringToFront")
	return p.Err
}

func (p *Page) StopLoading() error {
	p.record("StopLoading")
	return p.Err
}

func (p *Page) Navigate(ctx context.Context, url string, opts backend.NavigateOptions) (*backend.NavigateResult, error) {
	p.record("Navigate", url, opts)
	if p.NavigateFunc != nil {
		res, err := p.NavigateFunc(url, opts)
		if err == nil && res != nil {
			p.SetURL(url)
		}
		return res, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	p.SetURL(url)
	return &backend.NavigateResult{Status: 200, OK: true}, nil
}

func (p *Page) Reload(ctx context.Context, opts backend.NavigateOptions) (*backend.NavigateResult, error) {
	p.record("Reload", opts)
	if p.Err != nil {
		return nil, p.Err
	}
	return &backend.NavigateResult{Status: 200, OK: true}, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.record("Content")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, p.Err
}

func (p *Page) SetContent(ctx context.Context, html string, opts backend.NavigateOptions) error {
	p.record("SetContent", html, opts)
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.content = html
	p.mu.Unlock()
	return nil
}

func (p *Page) Evaluate(ctx context.Context, expression string, args ...any) (any, error) {
	p.record("Evaluate", append([]any{expression}, args...)...)
	if p.EvaluateFunc != nil {
		return p.EvaluateFunc(expression, args...)
	}
	return nil, p.Err
}

func (p *Page) AddInitScript(source string) error {
	p.record("AddInitScript", source)
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.initScripts = append(p.initScripts, source)
	p.mu.Unlock()
	return nil
}

func (p *Page) Screenshot(ctx context.Context, opts backend.ScreenshotOptions) ([]byte, error) {
	p.record("Screenshot", opts)
	if p.Err != nil {
		return nil, p.Err
	}
	return []byte("fake-image-bytes"), nil
}

func (p *Page) PDF(ctx context.Context, opts backend.PDFOptions) ([]byte, error) {
	p.record("PDF", opts)
	if p.Err != nil {
		return nil, p.Err
	}
	return []byte("%PDF-1.4 fake"), nil
}

func (p *Page) SetViewport(width, height int) error {
	p.record("SetViewport", width, height)
	return p.Err
}

func (p *Page) SetGeolocation(latitude, longitude, accuracy float64) error {
	p.record("SetGeolocation", latitude, longitude, accuracy)
	return p.Err
}

func (p *Page) EmulateMedia(opts backend.MediaOptions) error {
	p.record("EmulateMedia", opts)
	return p.Err
}

func (p *Page) SetBypassCSP(enabled bool) error {
	p.record("SetBypassCSP", enabled)
	return p.Err
}

func (p *Page) SetCacheDisabled(disabled bool) error {
	p.record("SetCacheDisabled", disabled)
	return p.Err
}

func (p *Page) SetUserAgent(userAgent string) error {
	p.record("SetUserAgent", userAgent)
	return p.Err
}

func (p *Page) SetExtraHeaders(headers map[string]string) error {
	p.record("SetExtraHeaders", headers)
	return p.Err
}

func (p *Page) Cookies(ctx context.Context, urls ...string) ([]backend.Cookie, error) {
	p.record("Cookies")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]backend.Cookie(nil), p.cookies...), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []backend.Cookie) error {
	p.record("SetCookies", cookies)
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.cookies = append(p.cookies, cookies...)
	p.mu.Unlock()
	return nil
}

func (p *Page) DeleteCookies(ctx context.Context, filter backend.CookieFilter) error {
	p.record("DeleteCookies", filter)
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.cookies[:0]
	for _, c := range p.cookies {
		if filter.Name != "" && c.Name != filter.Name {
			kept = append(kept, c)
			continue
		}
		if filter.Domain != "" && c.Domain != filter.Domain {
			kept = append(kept, c)
			continue
		}
		if filter.Path != "" && c.Path != filter.Path {
			kept = append(kept, c)
		}
	}
	p.cookies = kept
	return nil
}

func (p *Page) MouseMove(x, y float64) error {
	p.record("MouseMove", x, y)
	return p.Err
}

func (p *Page) MouseDown(button string, clickCount int) error {
	p.record("MouseDown", button, clickCount)
	return p.Err
}

func (p *Page) MouseUp(button string, clickCount int) error {
	p.record("MouseUp", button, clickCount)
	return p.Err
}

func (p *Page) MouseWheel(deltaX, deltaY float64) error {
	p.record("MouseWheel", deltaX, deltaY)
	return p.Err
}

func (p *Page) Click(x, y float64) error {
	p.record("Click", x, y)
	return p.Err
}

func (p *Page) KeyDown(key string) error {
	p.record("KeyDown", key)
	return p.Err
}

func (p *Page) KeyUp(key string) error {
	p.record("KeyUp", key)
	return p.Err
}

func (p *Page) KeyPress(key string) error {
	p.record("KeyPress", key)
	return p.Err
}

func (p *Page) InsertText(text string) error {
	p.record("InsertText", text)
	return p.Err
}

func (p *Page) Focus(selector string) error {
	p.record("Focus", selector)
	return p.Err
}

func (p *Page) ScrollIntoView(selector string) error {
	p.record("ScrollIntoView", selector)
	return p.Err
}

func (p *Page) SetInputFiles(ctx context.Context, selector string, paths []string) error {
	p.record("SetInputFiles", selector, paths)
	return p.Err
}

func (p *Page) OnDialog(handler func(backend.Dialog)) {
	p.mu.Lock()
	p.dialogHandler = handler
	p.mu.Unlock()
}

func (p *Page) RouteRequests(handler func(backend.InterceptedRequest)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.routeHandler == nil {
		p.routeHandler = handler
	}
	return nil
}

// Request is a fake backend.InterceptedRequest that records its resolution.
type Request struct {
	ReqURL  string
	ReqMeth string
	ReqType string
	ReqHdrs map[string]string
	ReqBody string

	mu          sync.Mutex
	resolution  string // "", "continue", "fulfill", "abort"
	overrides   backend.ContinueOverrides
	fulfillment backend.Fulfillment
	abortReason string
}

func NewRequest(url, method, resourceType string) *Request {
	return &Request{
		ReqURL:  url,
		ReqMeth: method,
		ReqType: resourceType,
		ReqHdrs: map[string]string{},
	}
}

func (r *Request) URL() string { return r.ReqURL }

func (r *Request) Method() string { return r.ReqMeth }

func (r *Request) Headers() map[string]string { return r.ReqHdrs }

func (r *Request) ResourceType() string { return r.ReqType }

func (r *Request) PostData() string { return r.ReqBody }

func (r *Request) Continue(overrides backend.ContinueOverrides) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolution = "continue"
	r.overrides = overrides
	return nil
}

func (r *Request) Fulfill(f backend.Fulfillment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolution = "fulfill"
	r.fulfillment = f
	return nil
}

func (r *Request) Abort(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolution = "abort"
	r.abortReason = reason
	return nil
}

/// Resolution reports how the request was resolved: "continue", "fulfill",
// "abort", or "" while still pending.
func (r *Request) Resolution() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolution
}

// Overrides returns the mutations passed to Continue.
func (r *Request) Overrides() backend.ContinueOverrides {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrides
}

// Fulfillment returns the response passed to Fulfill.
func (r *Request) Fulfillment() backend.Fulfillment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fulfillment
}

// AbortReason returns the reason passed to Abort.
func (r *Request) AbortReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abortReason
}

// Dialog is a fake backend.Dialog.
type Dialog struct {
	Kind string // "alert", "confirm", "prompt"
	Text string

	mu        sync.Mutex
	accepted  bool
	dismissed bool
	input     string
}

func (d *Dialog) Type() string { return d.Kind }

func (d *Dialog) Message() string { return d.Text }

func (d *Dialog) Accept(promptText string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accepted = true
	d.input = promptText
	return nil
}

func (d *Dialog) Dismiss() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = true
	return nil
}

// Accepted reports whether Accept was called, and with what prompt text.
func (d *Dialog) Accepted() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted, d.input
}

// Dismissed reports whether Dismiss was called.
func (d *Dialog) Dismissed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dismissed
}
