package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/neboloop/browserd/internal/backend"
)

// resolveNode maps a node id to its selector. Id 0 is the never-allocated
// sentinel and is handled per command before calling this.
func (s *Session) resolveNode(nodeID int) (string, error) {
	s.mu.Lock()
	selector, ok := s.nodes.Get(nodeID)
	s.mu.Unlock()
	if !ok {
		return "", nodeNotFound(nodeID)
	}
	return selector, nil
}

const serializeTreeScript = `(depth) => {
	const serialize = (node, d) => {
		const entry = {
			nodeType: node.nodeType,
			nodeName: node.nodeName,
			localName: node.localName || '',
			nodeValue: node.nodeValue || '',
			childNodeCount: node.childNodes ? node.childNodes.length : 0,
		};
		if (node.attributes && node.attributes.length) {
			const attrs = [];
			for (const a of node.attributes) attrs.push(a.name, a.value);
			entry.attributes = attrs;
		}
		if (d !== 0 && node.childNodes && node.childNodes.length) {
			entry.children = Array.from(node.childNodes).map((c) => serialize(c, d - 1));
		}
		return entry;
	};
	return serialize(document.documentElement, depth);
}`

// stampNodeIDs walks a serialized tree marking every node unaddressable.
// Only the root receives a real id afterward.
func stampNodeIDs(node map[string]any) {
	node["nodeId"] = 0
	node["backendNodeId"] = 0
	if children, ok := node["children"].([]any); ok {
		for _, child := range children {
			if m, ok := child.(map[string]any); ok {
				stampNodeIDs(m)
			}
		}
	}
}

func (s *Session) domGetDocument(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Depth *int `json:"depth"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	depth := 1
	if p.Depth != nil {
		depth = *p.Depth
	}

	raw, err := page.Evaluate(ctx, serializeTreeScript, depth)
	if err != nil {
		return nil, err
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, protocolErr(codeServerError, "document serialization failed")
	}

	// Only the root is registered; descendants carry nodeId 0 and cannot
	// be referenced by later commands without a query.
	stampNodeIDs(root)
	s.mu.Lock()
	rootID := s.nodes.Allocate("html")
	s.mu.Unlock()
	root["nodeId"] = rootID
	root["backendNodeId"] = rootID

	return map[string]any{"root": root}, nil
}

// scopedSelector joins a base node's selector with a relative one.
func scopedSelector(base, selector string) string {
	if base == "" || base == "html" {
		return selector
	}
	return base + " " + selector
}

func (s *Session) domQuerySelector(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID   int    `json:"nodeId"`
		Selector string `json:"selector"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Selector == "" {
		return nil, invalidParams("selector is required")
	}

	base := ""
	if p.NodeID != 0 {
		resolved, err := s.resolveNode(p.NodeID)
		if err != nil {
			return nil, err
		}
		base = resolved
	}
	full := scopedSelector(base, p.Selector)

	found, err := page.Evaluate(ctx, "(sel) => document.querySelector(sel) !== null", full)
	if err != nil {
		return nil, err
	}
	if ok, _ := found.(bool); !ok {
		// No match is not an error; 0 is the no-node sentinel.
		return map[string]any{"nodeId": 0}, nil
	}

	s.mu.Lock()
	id := s.nodes.Allocate(full)
	s.mu.Unlock()
	return map[string]any{"nodeId": id}, nil
}

func (s *Session) domQuerySelectorAll(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID   int    `json:"nodeId"`
		Selector string `json:"selector"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Selector == "" {
		return nil, invalidParams("selector is required")
	}

	base := ""
	if p.NodeID != 0 {
		resolved, err := s.resolveNode(p.NodeID)
		if err != nil {
			return nil, err
		}
		base = resolved
	}
	full := scopedSelector(base, p.Selector)

	raw, err := page.Evaluate(ctx, "(sel) => document.querySelectorAll(sel).length", full)
	if err != nil {
		return nil, err
	}
	count := int(number(raw))

	// Each match gets a positional selector. Reordering same-tag siblings
	// after allocation can redirect a handle to a different element.
	ids := make([]int, 0, count)
	s.mu.Lock()
	for i := 1; i <= count; i++ {
		ids = append(ids, s.nodes.Allocate(fmt.Sprintf("%s:nth-of-type(%d)", full, i)))
	}
	s.mu.Unlock()

	return map[string]any{"nodeIds": ids}, nil
}

func (s *Session) domGetOuterHTML(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if p.NodeID == 0 {
		// Sentinel falls back to the whole document.
		html, err := page.Content(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"outerHTML": html}, nil
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	raw, err := page.Evaluate(ctx, "(sel) => { const el = document.querySelector(sel); return el ? el.outerHTML : null; }", selector)
	if err != nil {
		return nil, err
	}
	html, ok := raw.(string)
	if !ok {
		return nil, nodeNotFound(p.NodeID)
	}
	return map[string]any{"outerHTML": html}, nil
}

func (s *Session) domGetAttributes(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	raw, err := page.Evaluate(ctx, `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const attrs = [];
		for (const a of el.attributes) attrs.push(a.name, a.value);
		return attrs;
	}`, selector)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, nodeNotFound(p.NodeID)
	}

	attrs := make([]string, 0, len(items))
	for _, item := range items {
		str, _ := item.(string)
		attrs = append(attrs, str)
	}
	return map[string]any{"attributes": attrs}, nil
}

func (s *Session) domSetAttributeValue(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int    `json:"nodeId"`
		Name   string `json:"name"`
		Value  string `json:"value"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParams("name is required")
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	raw, err := page.Evaluate(ctx, `(ctx) => {
		const el = document.querySelector(ctx.sel);
		if (!el) return false;
		el.setAttribute(ctx.name, ctx.value);
		return true;
	}`, map[string]any{"sel": selector, "name": p.Name, "value": p.Value})
	if err != nil {
		return nil, err
	}
	if ok, _ := raw.(bool); !ok {
		return nil, nodeNotFound(p.NodeID)
	}
	return nil, nil
}

func (s *Session) domFocus(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	return nil, page.Focus(selector)
}

const boxModelScript = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return null;
	const rect = el.getBoundingClientRect();
	const cs = getComputedStyle(el);
	const px = (v) => parseFloat(v) || 0;
	return {
		x: rect.x, y: rect.y, width: rect.width, height: rect.height,
		pt: px(cs.paddingTop), pr: px(cs.paddingRight), pb: px(cs.paddingBottom), pl: px(cs.paddingLeft),
		bt: px(cs.borderTopWidth), br: px(cs.borderRightWidth), bb: px(cs.borderBottomWidth), bl: px(cs.borderLeftWidth),
		mt: px(cs.marginTop), mr: px(cs.marginRight), mb: px(cs.marginBottom), ml: px(cs.marginLeft),
	};
}`

// quad converts a rectangle to the protocol's four-corner form, clockwise
// from the top left.
func quad(x, y, w, h float64) []float64 {
	return []float64{x, y, x + w, y, x + w, y + h, x, y + h}
}

func (s *Session) domGetBoxModel(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	raw, err := page.Evaluate(ctx, boxModelScript, selector)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nodeNotFound(p.NodeID)
	}

	x, y := number(m["x"]), number(m["y"])
	w, h := number(m["width"]), number(m["height"])
	pt, pr, pb, pl := number(m["pt"]), number(m["pr"]), number(m["pb"]), number(m["pl"])
	bt, br, bb, bl := number(m["bt"]), number(m["br"]), number(m["bb"]), number(m["bl"])
	mt, mr, mb, ml := number(m["mt"]), number(m["mr"]), number(m["mb"]), number(m["ml"])

	// The bounding rect is the border box; the others derive from it.
	contentW := w - bl - br - pl - pr
	contentH := h - bt - bb - pt - pb

	return map[string]any{
		"model": map[string]any{
			"content": quad(x+bl+pl, y+bt+pt, contentW, contentH),
			"padding": quad(x+bl, y+bt, w-bl-br, h-bt-bb),
			"border":  quad(x, y, w, h),
			"margin":  quad(x-ml, y-mt, w+ml+mr, h+mt+mb),
			"width":   int(math.Round(contentW)),
			"height":  int(math.Round(contentH)),
		},
	}, nil
}

func (s *Session) domScrollIntoView(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	return nil, page.ScrollIntoView(selector)
}

func (s *Session) domRemoveNode(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	if _, err := page.Evaluate(ctx, "(sel) => { const el = document.querySelector(sel); if (el) el.remove(); }", selector); err != nil {
		return nil, err
	}

	// The handle dies with the element.
	s.mu.Lock()
	s.nodes.Remove(p.NodeID)
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) domSetNodeValue(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		NodeID int    `json:"nodeId"`
		Value  string `json:"value"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	raw, err := page.Evaluate(ctx, `(ctx) => {
		const el = document.querySelector(ctx.sel);
		if (!el) return false;
		el.textContent = ctx.value;
		return true;
	}`, map[string]any{"sel": selector, "value": p.Value})
	if err != nil {
		return nil, err
	}
	if ok, _ := raw.(bool); !ok {
		return nil, nodeNotFound(p.NodeID)
	}
	return nil, nil
}

func (s *Session) domSetFileInputFiles(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Files  []string `json:"files"`
		NodeID int      `json:"nodeId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Files) == 0 {
		return nil, invalidParams("files is required")
	}

	selector, err := s.resolveNode(p.NodeID)
	if err != nil {
		return nil, err
	}
	return nil, page.SetInputFiles(ctx, selector, p.Files)
}
