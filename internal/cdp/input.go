package cdp

import (
	"context"
	"encoding/json"

	"github.com/neboloop/browserd/internal/backend"
)

func (s *Session) inputDispatchMouseEvent(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Type       string  `json:"type"`
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Button     string  `json:"button"`
		ClickCount int     `json:"clickCount"`
		DeltaX     float64 `json:"deltaX"`
		DeltaY     float64 `json:"deltaY"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	button := p.Button
	if button == "" || button == "none" {
		button = "left"
	}
	clicks := p.ClickCount
	if clicks == 0 {
		clicks = 1
	}

	switch p.Type {
	case "mouseMoved":
		return nil, page.MouseMove(p.X, p.Y)
	case "mousePressed":
		if err := page.MouseMove(p.X, p.Y); err != nil {
			return nil, err
		}
		return nil, page.MouseDown(button, clicks)
	case "mouseReleased":
		return nil, page.MouseUp(button, clicks)
	case "mouseWheel":
		return nil, page.MouseWheel(p.DeltaX, p.DeltaY)
	case "click":
		// Convenience form: move, press, release in one command.
		return nil, page.Click(p.X, p.Y)
	default:
		return nil, invalidParams("unknown mouse event type: %s", p.Type)
	}
}

func (s *Session) inputDispatchKeyEvent(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Type string `json:"type"`
		Key  string `json:"key"`
		Text string `json:"text"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	switch p.Type {
	case "keyDown", "rawKeyDown":
		return nil, page.KeyDown(p.Key)
	case "keyUp":
		return nil, page.KeyUp(p.Key)
	case "char":
		text := p.Text
		if text == "" {
			text = p.Key
		}
		return nil, page.InsertText(text)
	case "press":
		return nil, page.KeyPress(p.Key)
	default:
		return nil, invalidParams("unknown key event type: %s", p.Type)
	}
}

func (s *Session) inputInsertText(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Text string `json:"text"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return nil, page.InsertText(p.Text)
}
