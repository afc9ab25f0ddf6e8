package cdp

import (
	"fmt"
	"strings"
	"testing"
)

// scriptedDOM returns an Evaluate hook that answers the query scripts the
// DOM handlers issue, backed by a flat selector -> exists map.
func scriptedDOM(selectors map[string]bool, counts map[string]int) func(string, ...any) (any, error) {
	return func(expression string, args ...any) (any, error) {
		sel, _ := args[0].(string)
		switch {
		case strings.Contains(expression, "document.querySelector(sel) !== null"):
			return selectors[sel], nil
		case strings.Contains(expression, "querySelectorAll(sel).length"):
			return float64(counts[sel]), nil
		default:
			return nil, nil
		}
	}
}

func TestDOMGetDocumentRegistersOnlyRoot(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{
			"nodeType":       float64(1),
			"nodeName":       "HTML",
			"localName":      "html",
			"nodeValue":      "",
			"childNodeCount": float64(2),
			"children": []any{
				map[string]any{"nodeType": float64(1), "nodeName": "HEAD", "localName": "head"},
				map[string]any{"nodeType": float64(1), "nodeName": "BODY", "localName": "body"},
			},
		}, nil
	}

	result := rpc(t, s, 1, "DOM.getDocument", map[string]any{"depth": 2})
	root := result["root"].(map[string]any)
	rootID := int(root["nodeId"].(float64))
	if rootID == 0 {
		t.Fatal("root got the sentinel id")
	}
	if root["nodeName"] != "HTML" {
		t.Errorf("nodeName = %v", root["nodeName"])
	}

	for _, child := range root["children"].([]any) {
		if id := child.(map[string]any)["nodeId"].(float64); id != 0 {
			t.Errorf("descendant nodeId = %v, want sentinel 0", id)
		}
	}

	// The root handle is usable as a query base.
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"div": true}, nil)
	q := rpc(t, s, 2, "DOM.querySelector", map[string]any{"nodeId": rootID, "selector": "div"})
	if q["nodeId"].(float64) == 0 {
		t.Error("query from root found nothing")
	}
}

func TestDOMQuerySelectorMissIsSentinelZero(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"#app": true}, nil)

	hit := rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "#app"})
	hitID := int(hit["nodeId"].(float64))
	if hitID == 0 {
		t.Fatal("match returned the sentinel")
	}

	miss := rpc(t, s, 2, "DOM.querySelector", map[string]any{"selector": "#ghost"})
	if got := miss["nodeId"].(float64); got != 0 {
		t.Errorf("nodeId = %v, want sentinel 0", got)
	}

	// The sentinel is never a live handle afterwards.
	code, _ := rpcErr(t, s, 3, "DOM.getAttributes", map[string]any{"nodeId": 0})
	if code != -32000 {
		t.Errorf("code = %d, want -32000", code)
	}
}

func TestDOMQuerySelectorUnknownBase(t *testing.T) {
	s, _ := newTestSession(t)

	code, msg := rpcErr(t, s, 1, "DOM.querySelector", map[string]any{
		"nodeId":   99,
		"selector": "div",
	})
	if code != -32000 {
		t.Errorf("code = %d, want -32000", code)
	}
	if !strings.Contains(msg, "99") {
		t.Errorf("message = %q", msg)
	}
}

func TestDOMQuerySelectorScopesToBase(t *testing.T) {
	s, b := newTestSession(t)
	var lastSelector string
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		lastSelector, _ = args[0].(string)
		return true, nil
	}

	base := rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "#list"})
	baseID := int(base["nodeId"].(float64))

	rpc(t, s, 2, "DOM.querySelector", map[string]any{"nodeId": baseID, "selector": "li"})
	if lastSelector != "#list li" {
		t.Errorf("scoped selector = %q, want %q", lastSelector, "#list li")
	}
}

func TestDOMQuerySelectorAllSynthesizesPositions(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(nil, map[string]int{".item": 3})

	result := rpc(t, s, 1, "DOM.querySelectorAll", map[string]any{"selector": ".item"})
	ids := result["nodeIds"].([]any)
	if len(ids) != 3 {
		t.Fatalf("nodeIds = %d, want 3", len(ids))
	}

	// Ids are distinct and each resolves to a positional selector.
	seen := map[float64]bool{}
	for i, raw := range ids {
		id := raw.(float64)
		if seen[id] {
			t.Fatalf("duplicate node id %v", id)
		}
		seen[id] = true

		s.mu.Lock()
		sel, ok := s.nodes.Get(int(id))
		s.mu.Unlock()
		if !ok {
			t.Fatalf("id %v not registered", id)
		}
		want := fmt.Sprintf(".item:nth-of-type(%d)", i+1)
		if sel != want {
			t.Errorf("selector = %q, want %q", sel, want)
		}
	}
}

func TestDOMGetOuterHTMLSentinelFallsBackToDocument(t *testing.T) {
	s, _ := newTestSession(t)

	result := rpc(t, s, 1, "DOM.getOuterHTML", map[string]any{"nodeId": 0})
	html := result["outerHTML"].(string)
	if !strings.Contains(html, "<html>") {
		t.Errorf("outerHTML = %q", html)
	}
}

func TestDOMGetOuterHTMLForNode(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"#box": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "#box"})["nodeId"].(float64))

	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return "<div id=\"box\">x</div>", nil
	}
	result := rpc(t, s, 2, "DOM.getOuterHTML", map[string]any{"nodeId": id})
	if result["outerHTML"] != "<div id=\"box\">x</div>" {
		t.Errorf("outerHTML = %v", result["outerHTML"])
	}

	// Element gone from the document: the handle goes stale.
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return nil, nil
	}
	code, _ := rpcErr(t, s, 3, "DOM.getOuterHTML", map[string]any{"nodeId": id})
	if code != -32000 {
		t.Errorf("code = %d, want -32000", code)
	}
}

func TestDOMGetAttributes(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"a.link": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "a.link"})["nodeId"].(float64))

	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return []any{"href", "/home", "class", "link"}, nil
	}
	result := rpc(t, s, 2, "DOM.getAttributes", map[string]any{"nodeId": id})
	attrs := result["attributes"].([]any)
	if len(attrs) != 4 || attrs[0] != "href" || attrs[1] != "/home" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestDOMSetAttributeValue(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"input": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "input"})["nodeId"].(float64))

	var gotCtx map[string]any
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		gotCtx, _ = args[0].(map[string]any)
		return true, nil
	}
	rpc(t, s, 2, "DOM.setAttributeValue", map[string]any{
		"nodeId": id,
		"name":   "placeholder",
		"value":  "type here",
	})
	if gotCtx["name"] != "placeholder" || gotCtx["value"] != "type here" {
		t.Errorf("setter ctx = %v", gotCtx)
	}

	code, _ := rpcErr(t, s, 3, "DOM.setAttributeValue", map[string]any{"nodeId": id})
	if code != -32602 {
		t.Errorf("missing name: code = %d, want -32602", code)
	}
}

func TestDOMGetBoxModel(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"#card": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "#card"})["nodeId"].(float64))

	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{
			"x": float64(10), "y": float64(20), "width": float64(100), "height": float64(50),
			"pt": float64(5), "pr": float64(5), "pb": float64(5), "pl": float64(5),
			"bt": float64(2), "br": float64(2), "bb": float64(2), "bl": float64(2),
			"mt": float64(3), "mr": float64(3), "mb": float64(3), "ml": float64(3),
		}, nil
	}
	result := rpc(t, s, 2, "DOM.getBoxModel", map[string]any{"nodeId": id})
	model := result["model"].(map[string]any)

	if w := model["width"].(float64); w != 86 {
		t.Errorf("content width = %v, want 86", w)
	}
	if h := model["height"].(float64); h != 36 {
		t.Errorf("content height = %v, want 36", h)
	}

	border := model["border"].([]any)
	if border[0].(float64) != 10 || border[1].(float64) != 20 {
		t.Errorf("border quad origin = %v, %v", border[0], border[1])
	}
	content := model["content"].([]any)
	if content[0].(float64) != 17 || content[1].(float64) != 27 {
		t.Errorf("content quad origin = %v, %v", content[0], content[1])
	}
	margin := model["margin"].([]any)
	if margin[0].(float64) != 7 || margin[1].(float64) != 17 {
		t.Errorf("margin quad origin = %v, %v", margin[0], margin[1])
	}
	if len(border) != 8 {
		t.Errorf("quad length = %d, want 8", len(border))
	}
}

func TestDOMFocusAndScroll(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"#field": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "#field"})["nodeId"].(float64))

	rpc(t, s, 2, "DOM.focus", map[string]any{"nodeId": id})
	call, ok := defaultPage(t, b).LastCall("Focus")
	if !ok || call.Args[0] != "#field" {
		t.Errorf("Focus call = %v, %v", call, ok)
	}

	rpc(t, s, 3, "DOM.scrollIntoViewIfNeeded", map[string]any{"nodeId": id})
	call, ok = defaultPage(t, b).LastCall("ScrollIntoView")
	if !ok || call.Args[0] != "#field" {
		t.Errorf("ScrollIntoView call = %v, %v", call, ok)
	}
}

func TestDOMRemoveNodeBurnsHandle(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{".gone": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": ".gone"})["nodeId"].(float64))

	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return nil, nil
	}
	rpc(t, s, 2, "DOM.removeNode", map[string]any{"nodeId": id})

	code, _ := rpcErr(t, s, 3, "DOM.removeNode", map[string]any{"nodeId": id})
	if code != -32000 {
		t.Errorf("re-remove code = %d, want -32000", code)
	}
}

func TestDOMSetFileInputFiles(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = scriptedDOM(map[string]bool{"input[type=file]": true}, nil)

	id := int(rpc(t, s, 1, "DOM.querySelector", map[string]any{"selector": "input[type=file]"})["nodeId"].(float64))

	rpc(t, s, 2, "DOM.setFileInputFiles", map[string]any{
		"nodeId": id,
		"files":  []string{"/tmp/a.txt", "/tmp/b.txt"},
	})
	call, ok := defaultPage(t, b).LastCall("SetInputFiles")
	if !ok {
		t.Fatal("SetInputFiles not called")
	}
	paths := call.Args[1].([]string)
	if len(paths) != 2 || paths[0] != "/tmp/a.txt" {
		t.Errorf("paths = %v", paths)
	}

	code, _ := rpcErr(t, s, 3, "DOM.setFileInputFiles", map[string]any{"nodeId": id})
	if code != -32602 {
		t.Errorf("missing files: code = %d, want -32602", code)
	}
}
