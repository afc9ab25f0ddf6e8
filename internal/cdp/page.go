package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/browserd/internal/backend"
)

// timestamp is a CDP MonotonicTime in seconds.
func timestamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// securityOrigin reduces a URL to its scheme://host origin.
func securityOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "://"
	}
	return u.Scheme + "://" + u.Host
}

func frameInfo(frameID, loaderID, pageURL string) map[string]any {
	return map[string]any{
		"id":             frameID,
		"loaderId":       loaderID,
		"url":            pageURL,
		"securityOrigin": securityOrigin(pageURL),
		"mimeType":       "text/html",
	}
}

func (s *Session) pageNavigate(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		URL       string `json:"url"`
		WaitUntil string `json:"waitUntil"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.URL == "" {
		return nil, invalidParams("url is required")
	}

	loaderID := uuid.New().String()
	res, err := page.Navigate(ctx, p.URL, backend.NavigateOptions{
		WaitUntil: p.WaitUntil,
		Timeout:   s.defaultTimeout,
	})
	if err != nil {
		// The page never moved; report through errorText, not an error
		// frame, so the client can correlate the failure to its request.
		return map[string]any{
			"frameId":   targetID,
			"loaderId":  loaderID,
			"errorText": err.Error(),
		}, nil
	}

	s.emit("Page.frameNavigated", map[string]any{
		"frame": frameInfo(targetID, loaderID, page.URL()),
		"type":  "Navigation",
	})
	s.emit("Page.loadEventFired", map[string]any{"timestamp": timestamp()})

	result := map[string]any{
		"frameId":  targetID,
		"loaderId": loaderID,
	}
	if !res.OK {
		result["errorText"] = fmt.Sprintf("HTTP %d", res.Status)
	}
	return result, nil
}

func (s *Session) pageReload(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	if _, err := page.Reload(ctx, backend.NavigateOptions{Timeout: s.defaultTimeout}); err != nil {
		return nil, err
	}
	s.emit("Page.loadEventFired", map[string]any{"timestamp": timestamp()})
	return nil, nil
}

func (s *Session) pageBringToFront(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	return nil, page.BringToFront()
}

func (s *Session) pageStopLoading(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	return nil, page.StopLoading()
}

func (s *Session) pageSetBypassCSP(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return nil, page.SetBypassCSP(p.Enabled)
}

func (s *Session) pageGetFrameTree(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	return map[string]any{
		"frameTree": map[string]any{
			"frame":       frameInfo(targetID, uuid.New().String(), page.URL()),
			"childFrames": []any{},
		},
	}, nil
}

const layoutMetricsScript = `() => ({
	scrollWidth: document.documentElement.scrollWidth,
	scrollHeight: document.documentElement.scrollHeight,
	clientWidth: document.documentElement.clientWidth,
	clientHeight: document.documentElement.clientHeight,
	scrollX: window.scrollX,
	scrollY: window.scrollY,
})`

func (s *Session) pageGetLayoutMetrics(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	raw, err := page.Evaluate(ctx, layoutMetricsScript)
	if err != nil {
		return nil, err
	}
	m, _ := raw.(map[string]any)

	contentSize := map[string]any{
		"x":      0,
		"y":      0,
		"width":  number(m["scrollWidth"]),
		"height": number(m["scrollHeight"]),
	}
	layoutViewport := map[string]any{
		"pageX":        number(m["scrollX"]),
		"pageY":        number(m["scrollY"]),
		"clientWidth":  number(m["clientWidth"]),
		"clientHeight": number(m["clientHeight"]),
	}
	visualViewport := map[string]any{
		"offsetX":      0,
		"offsetY":      0,
		"pageX":        number(m["scrollX"]),
		"pageY":        number(m["scrollY"]),
		"clientWidth":  number(m["clientWidth"]),
		"clientHeight": number(m["clientHeight"]),
		"scale":        1,
		"zoom":         1,
	}

	return map[string]any{
		"layoutViewport":    layoutViewport,
		"visualViewport":    visualViewport,
		"contentSize":       contentSize,
		"cssLayoutViewport": layoutViewport,
		"cssVisualViewport": visualViewport,
		"cssContentSize":    contentSize,
	}, nil
}

func (s *Session) pageCaptureScreenshot(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Format                string `json:"format"`
		Quality               int    `json:"quality"`
		CaptureBeyondViewport bool   `json:"captureBeyondViewport"`
		FullPage              bool   `json:"fullPage"`
		Clip                  *struct {
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"clip"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	opts := backend.ScreenshotOptions{
		Format:   p.Format,
		Quality:  p.Quality,
		FullPage: p.FullPage || p.CaptureBeyondViewport,
	}
	if p.Clip != nil {
		opts.Clip = &backend.Clip{X: p.Clip.X, Y: p.Clip.Y, Width: p.Clip.Width, Height: p.Clip.Height}
	}

	data, err := page.Screenshot(ctx, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"data": base64.StdEncoding.EncodeToString(data)}, nil
}

func (s *Session) pageSetContent(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		HTML      string `json:"html"`
		WaitUntil string `json:"waitUntil"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return nil, page.SetContent(ctx, p.HTML, backend.NavigateOptions{
		WaitUntil: p.WaitUntil,
		Timeout:   s.defaultTimeout,
	})
}

func (s *Session) pagePrintToPDF(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Landscape           *bool    `json:"landscape"`
		DisplayHeaderFooter *bool    `json:"displayHeaderFooter"`
		PrintBackground     *bool    `json:"printBackground"`
		PreferCSSPageSize   *bool    `json:"preferCSSPageSize"`
		HeaderTemplate      *string  `json:"headerTemplate"`
		FooterTemplate      *string  `json:"footerTemplate"`
		Scale               *float64 `json:"scale"`
		PaperWidth          *float64 `json:"paperWidth"`
		PaperHeight         *float64 `json:"paperHeight"`
		MarginTop           *float64 `json:"marginTop"`
		MarginBottom        *float64 `json:"marginBottom"`
		MarginLeft          *float64 `json:"marginLeft"`
		MarginRight         *float64 `json:"marginRight"`
		PageRanges          *string  `json:"pageRanges"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	data, err := page.PDF(ctx, backend.PDFOptions{
		Landscape:           p.Landscape,
		DisplayHeaderFooter: p.DisplayHeaderFooter,
		PrintBackground:     p.PrintBackground,
		PreferCSSPageSize:   p.PreferCSSPageSize,
		HeaderTemplate:      p.HeaderTemplate,
		FooterTemplate:      p.FooterTemplate,
		Scale:               p.Scale,
		PaperWidth:          p.PaperWidth,
		PaperHeight:         p.PaperHeight,
		MarginTop:           p.MarginTop,
		MarginBottom:        p.MarginBottom,
		MarginLeft:          p.MarginLeft,
		MarginRight:         p.MarginRight,
		PageRanges:          p.PageRanges,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"data": base64.StdEncoding.EncodeToString(data)}, nil
}

func (s *Session) pageAddScript(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Source string `json:"source"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Source == "" {
		return nil, invalidParams("source is required")
	}

	if err := page.AddInitScript(p.Source); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.scripts.Add(p.Source)
	s.mu.Unlock()

	return map[string]any{"identifier": id}, nil
}

func (s *Session) pageRemoveScript(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Identifier string `json:"identifier"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	// Only the registration is dropped. Instances already armed on loaded
	// documents keep running; the engine offers no way to revoke them.
	s.mu.Lock()
	removed := s.scripts.Remove(p.Identifier)
	s.mu.Unlock()
	if !removed {
		s.log.Debug("removeScript for unknown identifier", "identifier", p.Identifier)
	}
	return nil, nil
}

func (s *Session) pageHandleDialog(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Accept     bool   `json:"accept"`
		PromptText string `json:"promptText"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.dialog = &dialogPolicy{accept: p.Accept, promptText: p.PromptText}
	pending := s.pendingDialog
	s.pendingDialog = nil
	s.mu.Unlock()

	if pending != nil {
		s.settleDialog(pending, p.Accept, p.PromptText)
	}
	return nil, nil
}

func (s *Session) pageGetNavigationHistory(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	title, _ := page.Title()
	return map[string]any{
		"currentIndex": 0,
		"entries": []map[string]any{{
			"id":             0,
			"url":            page.URL(),
			"userTypedURL":   page.URL(),
			"title":          title,
			"transitionType": "link",
		}},
	}, nil
}

func (s *Session) pageNavigateToHistoryEntry(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		EntryID int `json:"entryId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	// The exposed history view is single-entry with the current page at
	// index 0, so the requested entry id is also the delta to move by.
	if _, err := page.Evaluate(ctx, fmt.Sprintf("() => history.go(%d)", p.EntryID)); err != nil {
		return nil, err
	}
	return nil, nil
}
