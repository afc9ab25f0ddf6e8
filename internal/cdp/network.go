package cdp

import (
	"context"
	"encoding/json"

	"github.com/neboloop/browserd/internal/backend"
)

// cookieParams is the wire shape shared by setCookie and setCookies.
type cookieParams struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite"`
	Expires  float64 `json:"expires"`
}

func (c cookieParams) toBackend() backend.Cookie {
	return backend.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		URL:      c.URL,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

func cookieInfo(c backend.Cookie) map[string]any {
	return map[string]any{
		"name":     c.Name,
		"value":    c.Value,
		"domain":   c.Domain,
		"path":     c.Path,
		"expires":  c.Expires,
		"size":     len(c.Name) + len(c.Value),
		"httpOnly": c.HTTPOnly,
		"secure":   c.Secure,
		"session":  c.Expires <= 0,
		"sameSite": c.SameSite,
	}
}

func (s *Session) networkSetCacheDisabled(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		CacheDisabled bool `json:"cacheDisabled"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return nil, page.SetCacheDisabled(p.CacheDisabled)
}

func (s *Session) networkSetExtraHTTPHeaders(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Headers map[string]string `json:"headers"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.extraHeaders = p.Headers
	s.mu.Unlock()

	return nil, page.SetExtraHeaders(p.Headers)
}

func (s *Session) networkSetCookie(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p cookieParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParams("name is required")
	}

	if err := page.SetCookies(ctx, []backend.Cookie{p.toBackend()}); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Session) networkSetCookies(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Cookies []cookieParams `json:"cookies"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	cookies := make([]backend.Cookie, 0, len(p.Cookies))
	for _, c := range p.Cookies {
		cookies = append(cookies, c.toBackend())
	}
	return nil, page.SetCookies(ctx, cookies)
}

func (s *Session) networkGetCookies(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		URLs []string `json:"urls"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	cookies, err := page.Cookies(ctx, p.URLs...)
	if err != nil {
		return nil, err
	}

	infos := make([]map[string]any, 0, len(cookies))
	for _, c := range cookies {
		infos = append(infos, cookieInfo(c))
	}
	return map[string]any{"cookies": infos}, nil
}

func (s *Session) networkDeleteCookies(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
		Path   string `json:"path"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParams("name is required")
	}

	return nil, page.DeleteCookies(ctx, backend.CookieFilter{
		Name:   p.Name,
		Domain: p.Domain,
		Path:   p.Path,
	})
}

func (s *Session) networkClearBrowserCookies(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, err
	}

	// Cleared one by one rather than wholesale, so a single bad deletion
	// reports which cookie it stumbled on.
	for _, c := range cookies {
		filter := backend.CookieFilter{Name: c.Name, Domain: c.Domain, Path: c.Path}
		if err := page.DeleteCookies(ctx, filter); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Session) networkSetUserAgentOverride(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		UserAgent string `json:"userAgent"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.UserAgent == "" {
		return nil, invalidParams("userAgent is required")
	}
	return nil, page.SetUserAgent(p.UserAgent)
}
