package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/neboloop/browserd/internal/backend"
)

func targetInfo(targetID, title, url string) map[string]any {
	return map[string]any{
		"targetId": targetID,
		"type":     "page",
		"title":    title,
		"url":      url,
		"attached": true,
	}
}

func (s *Session) browserGetVersion(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	version := s.browser.Version()
	return map[string]string{
		"protocolVersion": "1.3",
		"product":         "HeadlessChrome/" + version,
		"revision":        "0",
		"userAgent":       fmt.Sprintf("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", version),
		"jsVersion":       "V8",
	}, nil
}

func (s *Session) browserClose(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	// Best effort: the session itself stays up until the client hangs up.
	if err := s.browser.Close(); err != nil {
		s.log.Warn("browser close failed", "error", err)
	}
	return nil, nil
}

func (s *Session) targetCreate(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		URL string `json:"url"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	newPage, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}

	if p.URL != "" && p.URL != "about:blank" {
		if _, err := newPage.Navigate(ctx, p.URL, backend.NavigateOptions{Timeout: s.defaultTimeout}); err != nil {
			_ = newPage.Close()
			return nil, err
		}
	}

	id := s.addTarget(newPage)
	s.emitTargetCreated(id, newPage)

	return map[string]any{"targetId": id}, nil
}

func (s *Session) targetCloseTarget(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		TargetID string `json:"targetId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TargetID == "" {
		return nil, invalidParams("targetId is required")
	}

	s.mu.Lock()
	isDefault := p.TargetID == s.defaultTargetID
	s.mu.Unlock()
	if isDefault {
		// The default target lives exactly as long as the session.
		return nil, protocolErr(codeServerError, "cannot close the default target")
	}

	closed, ok := s.removeTarget(p.TargetID)
	if !ok {
		return nil, targetNotFound(p.TargetID)
	}

	if err := closed.Close(); err != nil {
		s.log.Warn("target close failed", "target", p.TargetID, "error", err)
	}

	s.emit("Target.targetDestroyed", map[string]any{"targetId": p.TargetID})

	return map[string]any{"success": true}, nil
}

func (s *Session) targetGetTargets(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	ids := s.targetIDs()
	sort.Strings(ids)

	targets := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		p, _, err := s.resolveTarget(id)
		if err != nil {
			continue
		}
		title, _ := p.Title()
		targets = append(targets, targetInfo(id, title, p.URL()))
	}

	return map[string]any{"targetInfos": targets}, nil
}

func (s *Session) targetAttach(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		TargetID string `json:"targetId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	attached, id, err := s.resolveTarget(p.TargetID)
	if err != nil {
		return nil, err
	}

	// Every target is implicitly attached; acknowledge with a synthesized
	// session id and replay the attachment event after the response.
	sessionID := "session-" + id
	title, _ := attached.Title()
	s.post("Target.attachedToTarget", map[string]any{
		"sessionId":          sessionID,
		"targetInfo":         targetInfo(id, title, attached.URL()),
		"waitingForDebugger": false,
	})

	return map[string]any{"sessionId": sessionID}, nil
}

func (s *Session) targetGetInfo(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		TargetID string `json:"targetId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	resolved, id, err := s.resolveTarget(p.TargetID)
	if err != nil {
		return nil, err
	}

	title, _ := resolved.Title()
	return map[string]any{"targetInfo": targetInfo(id, title, resolved.URL())}, nil
}

func (s *Session) targetSetDiscover(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Discover bool `json:"discover"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if p.Discover {
		// Replay creation events for everything already live, after the
		// response so clients see ack-then-events.
		ids := s.targetIDs()
		sort.Strings(ids)
		for _, id := range ids {
			resolved, _, err := s.resolveTarget(id)
			if err != nil {
				continue
			}
			title, _ := resolved.Title()
			s.post("Target.targetCreated", map[string]any{
				"targetInfo": targetInfo(id, title, resolved.URL()),
			})
		}
	}

	return nil, nil
}
