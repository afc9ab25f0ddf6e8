package cdp

import (
	"strings"
	"testing"
)

func TestInputMousePressedMovesFirst(t *testing.T) {
	s, b := newTestSession(t)

	rpc(t, s, 1, "Input.dispatchMouseEvent", map[string]any{
		"type": "mousePressed",
		"x":    120.5,
		"y":    64.0,
	})

	page := defaultPage(t, b)
	moves := page.Calls("MouseMove")
	if len(moves) != 1 {
		t.Fatalf("MouseMove calls = %d, want 1", len(moves))
	}
	if moves[0].Args[0] != 120.5 || moves[0].Args[1] != 64.0 {
		t.Errorf("MouseMove args = %v", moves[0].Args)
	}

	down, ok := page.LastCall("MouseDown")
	if !ok {
		t.Fatal("MouseDown not called")
	}
	// Button and click count default when omitted.
	if down.Args[0] != "left" || down.Args[1] != 1 {
		t.Errorf("MouseDown args = %v, want [left 1]", down.Args)
	}
}

func TestInputMouseReleasedForwardsButton(t *testing.T) {
	s, b := newTestSession(t)

	rpc(t, s, 1, "Input.dispatchMouseEvent", map[string]any{
		"type":       "mouseReleased",
		"button":     "right",
		"clickCount": 2,
	})

	up, ok := defaultPage(t, b).LastCall("MouseUp")
	if !ok {
		t.Fatal("MouseUp not called")
	}
	if up.Args[0] != "right" || up.Args[1] != 2 {
		t.Errorf("MouseUp args = %v", up.Args)
	}
}

func TestInputMouseNoneButtonBecomesLeft(t *testing.T) {
	s, b := newTestSession(t)

	rpc(t, s, 1, "Input.dispatchMouseEvent", map[string]any{
		"type":   "mousePressed",
		"button": "none",
	})

	down, _ := defaultPage(t, b).LastCall("MouseDown")
	if down.Args[0] != "left" {
		t.Errorf("button = %v, want left", down.Args[0])
	}
}

func TestInputMouseWheel(t *testing.T) {
	s, b := newTestSession(t)

	rpc(t, s, 1, "Input.dispatchMouseEvent", map[string]any{
		"type":   "mouseWheel",
		"deltaX": 0.0,
		"deltaY": -240.0,
	})

	wheel, ok := defaultPage(t, b).LastCall("MouseWheel")
	if !ok {
		t.Fatal("MouseWheel not called")
	}
	if wheel.Args[0] != 0.0 || wheel.Args[1] != -240.0 {
		t.Errorf("MouseWheel args = %v", wheel.Args)
	}
}

func TestInputMouseClickShorthand(t *testing.T) {
	s, b := newTestSession(t)

	rpc(t, s, 1, "Input.dispatchMouseEvent", map[string]any{
		"type": "click",
		"x":    10.0,
		"y":    20.0,
	})

	page := defaultPage(t, b)
	click, ok := page.LastCall("Click")
	if !ok {
		t.Fatal("Click not called")
	}
	if click.Args[0] != 10.0 || click.Args[1] != 20.0 {
		t.Errorf("Click args = %v", click.Args)
	}
	if len(page.Calls("MouseDown")) != 0 {
		t.Error("shorthand should not press separately")
	}
}

func TestInputMouseUnknownType(t *testing.T) {
	s, _ := newTestSession(t)

	code, msg := rpcErr(t, s, 1, "Input.dispatchMouseEvent", map[string]any{"type": "mouseHover"})
	if code != -32602 {
		t.Errorf("code = %d, want -32602", code)
	}
	if !strings.Contains(msg, "mouseHover") {
		t.Errorf("message = %q", msg)
	}
}

func TestInputKeyEvents(t *testing.T) {
	s, b := newTestSession(t)
	page := defaultPage(t, b)

	rpc(t, s, 1, "Input.dispatchKeyEvent", map[string]any{"type": "keyDown", "key": "Shift"})
	if call, ok := page.LastCall("KeyDown"); !ok || call.Args[0] != "Shift" {
		t.Errorf("KeyDown = %v, %v", call, ok)
	}

	rpc(t, s, 2, "Input.dispatchKeyEvent", map[string]any{"type": "rawKeyDown", "key": "a"})
	if calls := page.Calls("KeyDown"); len(calls) != 2 || calls[1].Args[0] != "a" {
		t.Errorf("rawKeyDown should route through KeyDown, calls = %v", calls)
	}

	rpc(t, s, 3, "Input.dispatchKeyEvent", map[string]any{"type": "keyUp", "key": "Shift"})
	if call, ok := page.LastCall("KeyUp"); !ok || call.Args[0] != "Shift" {
		t.Errorf("KeyUp = %v, %v", call, ok)
	}

	rpc(t, s, 4, "Input.dispatchKeyEvent", map[string]any{"type": "press", "key": "Enter"})
	if call, ok := page.LastCall("KeyPress"); !ok || call.Args[0] != "Enter" {
		t.Errorf("KeyPress = %v, %v", call, ok)
	}
}

func TestInputCharFallsBackToKey(t *testing.T) {
	s, b := newTestSession(t)
	page := defaultPage(t, b)

	rpc(t, s, 1, "Input.dispatchKeyEvent", map[string]any{"type": "char", "text": "é"})
	if call, _ := page.LastCall("InsertText"); call.Args[0] != "é" {
		t.Errorf("InsertText = %v", call.Args)
	}

	// No text: the key name is typed instead.
	rpc(t, s, 2, "Input.dispatchKeyEvent", map[string]any{"type": "char", "key": "x"})
	if call, _ := page.LastCall("InsertText"); call.Args[0] != "x" {
		t.Errorf("InsertText fallback = %v", call.Args)
	}
}

func TestInputKeyUnknownType(t *testing.T) {
	s, _ := newTestSession(t)

	code, msg := rpcErr(t, s, 1, "Input.dispatchKeyEvent", map[string]any{"type": "keyHold"})
	if code != -32602 {
		t.Errorf("code = %d, want -32602", code)
	}
	if !strings.Contains(msg, "keyHold") {
		t.Errorf("message = %q", msg)
	}
}

func TestInputInsertText(t *testing.T) {
	s, b := newTestSession(t)

	rpc(t, s, 1, "Input.insertText", map[string]any{"text": "hello world"})
	call, ok := defaultPage(t, b).LastCall("InsertText")
	if !ok || call.Args[0] != "hello world" {
		t.Errorf("InsertText = %v, %v", call, ok)
	}
}
