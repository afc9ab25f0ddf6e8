package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/neboloop/browserd/internal/backend"
)

// requestPattern matches URLs the loose way: substring first, then the
// pattern reinterpreted as a regular expression. This is deliberately
// wider than protocol glob syntax; do not tighten it.
type requestPattern struct {
	raw string
	re  *regexp.Regexp
}

func compilePattern(raw string) requestPattern {
	p := requestPattern{raw: raw}
	if re, err := regexp.Compile(raw); err == nil {
		p.re = re
	}
	return p
}

func (p requestPattern) match(url string) bool {
	if p.raw == "" || p.raw == "*" {
		return true
	}
	if strings.Contains(url, p.raw) {
		return true
	}
	return p.re != nil && p.re.MatchString(url)
}

func matchAny(patterns []requestPattern, url string) bool {
	if len(patterns) == 0 {
		// Enabling with no filters intercepts everything.
		return true
	}
	for _, p := range patterns {
		if p.match(url) {
			return true
		}
	}
	return false
}

// headerEntry is the protocol's name/value pair form for header lists.
type headerEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func headerMap(entries []headerEntry) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Value
	}
	return m
}

// abortReason maps a protocol error-reason string onto the engine's
// smaller abort vocabulary by keyword.
func abortReason(errorReason string) string {
	r := strings.ToLower(errorReason)
	switch {
	case strings.Contains(r, "access"):
		return backend.AbortAccessDenied
	case strings.Contains(r, "address"):
		return backend.AbortAddressUnreachable
	case strings.Contains(r, "blocked"):
		return backend.AbortBlockedByClient
	case strings.Contains(r, "connection"):
		return backend.AbortConnectionFailed
	case strings.Contains(r, "timeout"), strings.Contains(r, "timed"):
		return backend.AbortTimedOut
	case strings.Contains(r, "abort"):
		return backend.AbortAborted
	default:
		return backend.AbortFailed
	}
}

func (s *Session) fetchEnable(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Patterns []struct {
			URLPattern   string `json:"urlPattern"`
			RequestStage string `json:"requestStage"`
		} `json:"patterns"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	patterns := make([]requestPattern, 0, len(p.Patterns))
	for _, raw := range p.Patterns {
		patterns = append(patterns, compilePattern(raw.URLPattern))
	}

	s.mu.Lock()
	s.patterns = patterns
	s.interception = true
	s.mu.Unlock()

	// The engine hook stays installed for the page's lifetime; the
	// interception flag decides whether arrivals park or pass through.
	return nil, page.RouteRequests(func(req backend.InterceptedRequest) {
		s.onIntercepted(targetID, req)
	})
}

// onIntercepted runs on an engine goroutine for every request of a routed
// page. It must not block on the session's command flow: it takes the lock
// only to consult state and park, and resolves pass-through requests
// directly.
func (s *Session) onIntercepted(targetID string, req backend.InterceptedRequest) {
	s.mu.Lock()
	intercept := !s.closed && s.interception && matchAny(s.patterns, req.URL())
	var parked *parkedRequest
	if intercept {
		parked = s.requests.Park(req)
	}
	s.mu.Unlock()

	if !intercept {
		if err := req.Continue(backend.ContinueOverrides{}); err != nil {
			s.log.Debug("pass-through continue failed", "url", req.URL(), "error", err)
		}
		return
	}

	request := map[string]any{
		"url":     req.URL(),
		"method":  req.Method(),
		"headers": req.Headers(),
	}
	if post := req.PostData(); post != "" {
		request["postData"] = post
	}

	s.emit("Fetch.requestPaused", map[string]any{
		"requestId":    parked.id,
		"request":      request,
		"resourceType": req.ResourceType(),
		"frameId":      targetID,
	})
}

func (s *Session) fetchDisable(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	// Already-parked requests keep waiting for an explicit resolution;
	// disabling only stops new arrivals from pausing.
	s.mu.Lock()
	s.interception = false
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) fetchContinueRequest(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		RequestID string        `json:"requestId"`
		URL       string        `json:"url"`
		Method    string        `json:"method"`
		PostData  string        `json:"postData"`
		Headers   []headerEntry `json:"headers"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	parked, ok := s.requests.Take(p.RequestID)
	s.mu.Unlock()
	if !ok {
		return nil, requestNotFound(p.RequestID)
	}

	overrides := backend.ContinueOverrides{
		URL:     p.URL,
		Method:  p.Method,
		Headers: headerMap(p.Headers),
	}
	if p.PostData != "" {
		body, err := base64.StdEncoding.DecodeString(p.PostData)
		if err != nil {
			return nil, invalidParams("postData is not valid base64")
		}
		overrides.PostData = body
	}

	if err := parked.req.Continue(overrides); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Session) fetchFulfillRequest(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		RequestID       string        `json:"requestId"`
		ResponseCode    int           `json:"responseCode"`
		ResponseHeaders []headerEntry `json:"responseHeaders"`
		Body            string        `json:"body"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ResponseCode == 0 {
		return nil, invalidParams("responseCode is required")
	}

	s.mu.Lock()
	parked, ok := s.requests.Take(p.RequestID)
	s.mu.Unlock()
	if !ok {
		return nil, requestNotFound(p.RequestID)
	}

	var body []byte
	if p.Body != "" {
		decoded, err := base64.StdEncoding.DecodeString(p.Body)
		if err != nil {
			return nil, invalidParams("body is not valid base64")
		}
		body = decoded
	}

	headers := headerMap(p.ResponseHeaders)
	fulfillment := backend.Fulfillment{
		Status:  p.ResponseCode,
		Headers: headers,
		Body:    body,
	}
	for name, value := range headers {
		if strings.EqualFold(name, "content-type") {
			fulfillment.ContentType = value
		}
	}

	if err := parked.req.Fulfill(fulfillment); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Session) fetchFailRequest(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		RequestID   string `json:"requestId"`
		ErrorReason string `json:"errorReason"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	parked, ok := s.requests.Take(p.RequestID)
	s.mu.Unlock()
	if !ok {
		return nil, requestNotFound(p.RequestID)
	}

	if err := parked.req.Abort(abortReason(p.ErrorReason)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Session) fetchGetResponseBody(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		RequestID string `json:"requestId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	known := s.requests.Has(p.RequestID)
	s.mu.Unlock()
	if !known {
		return nil, requestNotFound(p.RequestID)
	}

	// Bodies are not retained; request-stage interception has nothing to
	// serve here.
	return map[string]any{"body": "", "base64Encoded": true}, nil
}
