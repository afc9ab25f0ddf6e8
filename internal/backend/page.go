package backend

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type playwrightPage struct {
	page playwright.Page
	opts LaunchOptions

	mu       sync.Mutex
	cdp      playwright.CDPSession
	routed   bool
	dialogFn func(Dialog)
}

func newPlaywrightPage(pwPage playwright.Page, opts LaunchOptions) *playwrightPage {
	p := &playwrightPage{page: pwPage, opts: opts}

	pwPage.OnDialog(func(d playwright.Dialog) {
		p.mu.Lock()
		fn := p.dialogFn
		p.mu.Unlock()

		if fn != nil {
			fn(&playwrightDialog{dialog: d})
			return
		}
		_ = d.Dismiss()
	})

	return p
}

// cdpSession lazily opens a raw DevTools session on the page. Used for the
// few toggles playwright only exposes at context creation time; Chromium
// only, which holds because Launch always starts Chromium.
func (p *playwrightPage) cdpSession() (playwright.CDPSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cdp != nil {
		return p.cdp, nil
	}

	sess, err := p.page.Context().NewCDPSession(p.page)
	if err != nil {
		return nil, fmt.Errorf("failed to create cdp session: %w", err)
	}
	p.cdp = sess
	return sess, nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) BringToFront() error {
	return p.page.BringToFront()
}

func (p *playwrightPage) StopLoading() error {
	// No dedicated primitive; window.stop halts the active document load.
	_, err := p.page.Evaluate("window.stop()")
	return err
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, opts NavigateOptions) (*NavigateResult, error) {
	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if t := p.timeout(opts.Timeout); t > 0 {
		gotoOpts.Timeout = playwright.Float(t)
	}

	resp, err := p.page.Goto(url, gotoOpts)
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if resp == nil {
		// about:blank and same-document navigations produce no response
		return &NavigateResult{OK: true}, nil
	}
	return &NavigateResult{Status: resp.Status(), OK: resp.Ok()}, nil
}

func (p *playwrightPage) Reload(ctx context.Context, opts NavigateOptions) (*NavigateResult, error) {
	reloadOpts := playwright.PageReloadOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if t := p.timeout(opts.Timeout); t > 0 {
		reloadOpts.Timeout = playwright.Float(t)
	}

	resp, err := p.page.Reload(reloadOpts)
	if err != nil {
		return nil, fmt.Errorf("reload failed: %w", err)
	}
	if resp == nil {
		return &NavigateResult{OK: true}, nil
	}
	return &NavigateResult{Status: resp.Status(), OK: resp.Ok()}, nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) SetContent(ctx context.Context, html string, opts NavigateOptions) error {
	setOpts := playwright.PageSetContentOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if t := p.timeout(opts.Timeout); t > 0 {
		setOpts.Timeout = playwright.Float(t)
	}
	return p.page.SetContent(html, setOpts)
}

func (p *playwrightPage) Evaluate(ctx context.Context, expression string, args ...any) (any, error) {
	return p.page.Evaluate(expression, args...)
}

func (p *playwrightPage) AddInitScript(source string) error {
	return p.page.AddInitScript(playwright.Script{Content: playwright.String(source)})
}

func (p *playwrightPage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	shotOpts := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(opts.FullPage),
	}
	if opts.Format == "jpeg" {
		shotOpts.Type = playwright.ScreenshotTypeJpeg
		if opts.Quality > 0 {
			shotOpts.Quality = playwright.Int(opts.Quality)
		}
	}
	if opts.Clip != nil {
		shotOpts.Clip = &playwright.Rect{
			X:      opts.Clip.X,
			Y:      opts.Clip.Y,
			Width:  opts.Clip.Width,
			Height: opts.Clip.Height,
		}
	}

	data, err := p.page.Screenshot(shotOpts)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

func (p *playwrightPage) PDF(ctx context.Context, opts PDFOptions) ([]byte, error) {
	pdfOpts := playwright.PagePdfOptions{
		Landscape:           opts.Landscape,
		DisplayHeaderFooter: opts.DisplayHeaderFooter,
		PrintBackground:     opts.PrintBackground,
		PreferCSSPageSize:   opts.PreferCSSPageSize,
		HeaderTemplate:      opts.HeaderTemplate,
		FooterTemplate:      opts.FooterTemplate,
		Scale:               opts.Scale,
		PageRanges:          opts.PageRanges,
	}
	if opts.PaperWidth != nil {
		pdfOpts.Width = playwright.String(inches(*opts.PaperWidth))
	}
	if opts.PaperHeight != nil {
		pdfOpts.Height = playwright.String(inches(*opts.PaperHeight))
	}

	margin := &playwright.Margin{}
	hasMargin := false
	if opts.MarginTop != nil {
		margin.Top = playwright.String(inches(*opts.MarginTop))
		hasMargin = true
	}
	if opts.MarginBottom != nil {
		margin.Bottom = playwright.String(inches(*opts.MarginBottom))
		hasMargin = true
	}
	if opts.MarginLeft != nil {
		margin.Left = playwright.String(inches(*opts.MarginLeft))
		hasMargin = true
	}
	if opts.MarginRight != nil {
		margin.Right = playwright.String(inches(*opts.MarginRight))
		hasMargin = true
	}
	if hasMargin {
		pdfOpts.Margin = margin
	}

	data, err := p.page.PDF(pdfOpts)
	if err != nil {
		return nil, fmt.Errorf("pdf rendering failed: %w", err)
	}
	return data, nil
}

func (p *playwrightPage) SetViewport(width, height int) error {
	return p.page.SetViewportSize(width, height)
}

func (p *playwrightPage) SetGeolocation(latitude, longitude, accuracy float64) error {
	browserCtx := p.page.Context()
	if err := browserCtx.GrantPermissions([]string{"geolocation"}); err != nil {
		return fmt.Errorf("grant geolocation permission: %w", err)
	}
	return browserCtx.SetGeolocation(&playwright.Geolocation{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  playwright.Float(accuracy),
	})
}

func (p *playwrightPage) EmulateMedia(opts MediaOptions) error {
	mediaOpts := playwright.PageEmulateMediaOptions{}
	switch opts.Media {
	case "screen":
		mediaOpts.Media = playwright.MediaScreen
	case "print":
		mediaOpts.Media = playwright.MediaPrint
	}
	switch opts.ColorScheme {
	case "light":
		mediaOpts.ColorScheme = playwright.ColorSchemeLight
	case "dark":
		mediaOpts.ColorScheme = playwright.ColorSchemeDark
	case "no-preference":
		mediaOpts.ColorScheme = playwright.ColorSchemeNoPreference
	}
	switch opts.ReducedMotion {
	case "reduce":
		mediaOpts.ReducedMotion = playwright.ReducedMotionReduce
	case "no-preference":
		mediaOpts.ReducedMotion = playwright.ReducedMotionNoPreference
	}
	return p.page.EmulateMedia(mediaOpts)
}

func (p *playwrightPage) SetBypassCSP(enabled bool) error {
	sess, err := p.cdpSession()
	if err != nil {
		return err
	}
	_, err = sess.Send("Page.setBypassCSP", map[string]interface{}{"enabled": enabled})
	return err
}

func (p *playwrightPage) SetCacheDisabled(disabled bool) error {
	sess, err := p.cdpSession()
	if err != nil {
		return err
	}
	_, err = sess.Send("Network.setCacheDisabled", map[string]interface{}{"cacheDisabled": disabled})
	return err
}

func (p *playwrightPage) SetUserAgent(userAgent string) error {
	sess, err := p.cdpSession()
	if err != nil {
		return err
	}
	_, err = sess.Send("Emulation.setUserAgentOverride", map[string]interface{}{"userAgent": userAgent})
	return err
}

func (p *playwrightPage) SetExtraHeaders(headers map[string]string) error {
	return p.page.SetExtraHTTPHeaders(headers)
}

func (p *playwrightPage) Cookies(ctx context.Context, urls ...string) ([]Cookie, error) {
	pwCookies, err := p.page.Context().Cookies(urls...)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(pwCookies))
	for _, c := range pwCookies {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (p *playwrightPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	pwCookies := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		pc := playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
		}
		if c.URL != "" {
			pc.URL = playwright.String(c.URL)
		}
		if c.Domain != "" {
			pc.Domain = playwright.String(c.Domain)
		}
		if c.Path != "" {
			pc.Path = playwright.String(c.Path)
		}
		if c.Expires != 0 {
			pc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			pc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			pc.Secure = playwright.Bool(true)
		}
		switch c.SameSite {
		case "Strict":
			pc.SameSite = playwright.SameSiteAttributeStrict
		case "Lax":
			pc.SameSite = playwright.SameSiteAttributeLax
		case "None":
			pc.SameSite = playwright.SameSiteAttributeNone
		}
		pwCookies = append(pwCookies, pc)
	}
	return p.page.Context().AddCookies(pwCookies)
}

func (p *playwrightPage) DeleteCookies(ctx context.Context, filter CookieFilter) error {
	clearOpts := playwright.BrowserContextClearCookiesOptions{}
	if filter.Name != "" {
		clearOpts.Name = filter.Name
	}
	if filter.Domain != "" {
		clearOpts.Domain = filter.Domain
	}
	if filter.Path != "" {
		clearOpts.Path = filter.Path
	}
	return p.page.Context().ClearCookies(clearOpts)
}

func (p *playwrightPage) MouseMove(x, y float64) error {
	return p.page.Mouse().Move(x, y)
}

func (p *playwrightPage) MouseDown(button string, clickCount int) error {
	opts := playwright.MouseDownOptions{Button: mouseButton(button)}
	if clickCount > 0 {
		opts.ClickCount = playwright.Int(clickCount)
	}
	return p.page.Mouse().Down(opts)
}

func (p *playwrightPage) MouseUp(button string, clickCount int) error {
	opts := playwright.MouseUpOptions{Button: mouseButton(button)}
	if clickCount > 0 {
		opts.ClickCount = playwright.Int(clickCount)
	}
	return p.page.Mouse().Up(opts)
}

func (p *playwrightPage) MouseWheel(deltaX, deltaY float64) error {
	return p.page.Mouse().Wheel(deltaX, deltaY)
}

func (p *playwrightPage) Click(x, y float64) error {
	return p.page.Mouse().Click(x, y)
}

func (p *playwrightPage) KeyDown(key string) error {
	return p.page.Keyboard().Down(key)
}

func (p *playwrightPage) KeyUp(key string) error {
	return p.page.Keyboard().Up(key)
}

func (p *playwrightPage) KeyPress(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *playwrightPage) InsertText(text string) error {
	return p.page.Keyboard().InsertText(text)
}

func (p *playwrightPage) Focus(selector string) error {
	return p.page.Focus(selector)
}

func (p *playwrightPage) ScrollIntoView(selector string) error {
	return p.page.Locator(selector).ScrollIntoViewIfNeeded()
}

func (p *playwrightPage) SetInputFiles(ctx context.Context, selector string, paths []string) error {
	files := make([]playwright.InputFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read input file %s: %w", path, err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, playwright.InputFile{
			Name:     filepath.Base(path),
			MimeType: mimeType,
			Buffer:   data,
		})
	}
	return p.page.SetInputFiles(selector, files)
}

func (p *playwrightPage) OnDialog(handler func(Dialog)) {
	p.mu.Lock()
	p.dialogFn = handler
	p.mu.Unlock()
}

func (p *playwrightPage) RouteRequests(handler func(InterceptedRequest)) error {
	p.mu.Lock()
	if p.routed {
		p.mu.Unlock()
		return nil
	}
	p.routed = true
	p.mu.Unlock()

	return p.page.Route("**/*", func(route playwright.Route) {
		handler(&playwrightRoute{route: route})
	})
}

// timeout picks the per-call timeout in milliseconds, falling back to the
// launch default.
func (p *playwrightPage) timeout(override time.Duration) float64 {
	if override > 0 {
		return float64(override.Milliseconds())
	}
	if p.opts.DefaultTimeout > 0 {
		return float64(p.opts.DefaultTimeout.Milliseconds())
	}
	return 0
}

func waitUntilState(waitUntil string) *playwright.WaitUntilState {
	switch waitUntil {
	case "domcontentloaded":
		return playwright.WaitUntilStateDomcontentloaded
	case "networkidle":
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateLoad
	}
}

func mouseButton(button string) *playwright.MouseButton {
	switch button {
	case "right":
		return playwright.MouseButtonRight
	case "middle":
		return playwright.MouseButtonMiddle
	default:
		return playwright.MouseButtonLeft
	}
}

func inches(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "in"
}

type playwrightDialog struct {
	dialog playwright.Dialog
}

func (d *playwrightDialog) Type() string {
	return d.dialog.Type()
}

func (d *playwrightDialog) Message() string {
	return d.dialog.Message()
}

func (d *playwrightDialog) Accept(promptText string) error {
	if promptText != "" {
		return d.dialog.Accept(promptText)
	}
	return d.dialog.Accept()
}

func (d *playwrightDialog) Dismiss() error {
	return d.dialog.Dismiss()
}

type playwrightRoute struct {
	route playwright.Route
}

func (r *playwrightRoute) URL() string {
	return r.route.Request().URL()
}

func (r *playwrightRoute) Method() string {
	return r.route.Request().Method()
}

func (r *playwrightRoute) Headers() map[string]string {
	return r.route.Request().Headers()
}

func (r *playwrightRoute) ResourceType() string {
	return r.route.Request().ResourceType()
}

func (r *playwrightRoute) PostData() string {
	data, err := r.route.Request().PostData()
	if err != nil {
		return ""
	}
	return data
}

func (r *playwrightRoute) Continue(overrides ContinueOverrides) error {
	opts := playwright.RouteContinueOptions{}
	if overrides.URL != "" {
		opts.URL = playwright.String(overrides.URL)
	}
	if overrides.Method != "" {
		opts.Method = playwright.String(overrides.Method)
	}
	if overrides.PostData != nil {
		opts.PostData = overrides.PostData
	}
	if overrides.Headers != nil {
		opts.Headers = overrides.Headers
	}
	return r.route.Continue(opts)
}

func (r *playwrightRoute) Fulfill(f Fulfillment) error {
	opts := playwright.RouteFulfillOptions{
		Body: f.Body,
	}
	if f.Status > 0 {
		opts.Status = playwright.Int(f.Status)
	}
	if f.Headers != nil {
		opts.Headers = f.Headers
	}
	if f.ContentType != "" {
		opts.ContentType = playwright.String(f.ContentType)
	}
	return r.route.Fulfill(opts)
}

func (r *playwrightRoute) Abort(reason string) error {
	if reason == "" {
		reason = AbortFailed
	}
	return r.route.Abort(reason)
}
