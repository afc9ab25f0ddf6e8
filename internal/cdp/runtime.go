package cdp

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/neboloop/browserd/internal/backend"
)

// number coerces a decoded JSON value to float64. Engine results come back
// as float64 already; everything else collapses to 0.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// wrapValue shapes a decoded evaluation result as a CDP RemoteObject. With
// byValue false a non-null object is retained in the object map and handed
// back as a fresh object id instead of its value. Primitives always travel
// by value.
func (s *Session) wrapValue(v any, byValue bool) map[string]any {
	switch val := v.(type) {
	case nil:
		// Decoded results cannot distinguish undefined from null; both
		// surface as undefined, which matches the common side-effect
		// expression case.
		return map[string]any{"type": "undefined"}
	case bool:
		return map[string]any{"type": "boolean", "value": val}
	case string:
		return map[string]any{"type": "string", "value": val}
	case float64, int, int64, json.Number:
		return map[string]any{"type": "number", "value": val}
	default:
		obj := map[string]any{"type": "object"}
		if _, isArray := v.([]any); isArray {
			obj["subtype"] = "array"
		}
		if byValue {
			obj["value"] = val
			return obj
		}
		s.mu.Lock()
		obj["objectId"] = s.objects.Allocate(val)
		s.mu.Unlock()
		obj["description"] = "Object"
		return obj
	}
}

// evaluationFailure converts a script error into a successful response
// carrying exceptionDetails, per protocol convention.
func evaluationFailure(err error) map[string]any {
	return map[string]any{
		"result": map[string]any{"type": "undefined"},
		"exceptionDetails": map[string]any{
			"exceptionId":  1,
			"text":         err.Error(),
			"lineNumber":   0,
			"columnNumber": 0,
			"exception": map[string]any{
				"type":        "object",
				"subtype":     "error",
				"description": err.Error(),
			},
		},
	}
}

func (s *Session) runtimeEvaluate(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Expression    string `json:"expression"`
		ReturnByValue *bool  `json:"returnByValue"`
		AwaitPromise  bool   `json:"awaitPromise"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Expression == "" {
		return nil, invalidParams("expression is required")
	}

	byValue := true
	if p.ReturnByValue != nil {
		byValue = *p.ReturnByValue
	}

	expr := p.Expression
	if p.AwaitPromise {
		expr = "(async () => (" + p.Expression + "))()"
	}

	value, err := page.Evaluate(ctx, expr)
	if err != nil {
		return evaluationFailure(err), nil
	}
	return map[string]any{"result": s.wrapValue(value, byValue)}, nil
}

func (s *Session) runtimeCallFunctionOn(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		FunctionDeclaration string `json:"functionDeclaration"`
		ObjectID            string `json:"objectId"`
		Arguments           []struct {
			Value    json.RawMessage `json:"value"`
			ObjectID string          `json:"objectId"`
		} `json:"arguments"`
		ReturnByValue *bool `json:"returnByValue"`
		AwaitPromise  bool  `json:"awaitPromise"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.FunctionDeclaration == "" {
		return nil, invalidParams("functionDeclaration is required")
	}

	byValue := true
	if p.ReturnByValue != nil {
		byValue = *p.ReturnByValue
	}

	args := make([]any, 0, len(p.Arguments))
	for _, arg := range p.Arguments {
		if arg.ObjectID != "" {
			s.mu.Lock()
			stored, ok := s.objects.Get(arg.ObjectID)
			s.mu.Unlock()
			if !ok {
				return nil, objectNotFound(arg.ObjectID)
			}
			args = append(args, stored)
			continue
		}
		var literal any
		if len(arg.Value) > 0 {
			if err := json.Unmarshal(arg.Value, &literal); err != nil {
				return nil, invalidParams("malformed argument value")
			}
		}
		args = append(args, literal)
	}

	var self any
	if p.ObjectID != "" {
		s.mu.Lock()
		stored, ok := s.objects.Get(p.ObjectID)
		s.mu.Unlock()
		if !ok {
			return nil, objectNotFound(p.ObjectID)
		}
		self = stored
	}

	// The declaration string becomes a callable applied to the resolved
	// arguments inside the page. This is the one place client-supplied
	// code is spliced into an expression.
	expr := "(ctx) => (" + p.FunctionDeclaration + ").apply(ctx.self ?? null, ctx.args)"
	if p.AwaitPromise {
		expr = "async (ctx) => await (" + p.FunctionDeclaration + ").apply(ctx.self ?? null, ctx.args)"
	}

	value, err := page.Evaluate(ctx, expr, map[string]any{"self": self, "args": args})
	if err != nil {
		return evaluationFailure(err), nil
	}
	return map[string]any{"result": s.wrapValue(value, byValue)}, nil
}

func (s *Session) runtimeGetProperties(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		ObjectID string `json:"objectId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	value, ok := s.objects.Get(p.ObjectID)
	s.mu.Unlock()

	props := []map[string]any{}
	if !ok {
		// Released or never-issued ids degrade to an empty enumeration.
		return map[string]any{"result": props}, nil
	}

	appendProp := func(name string, v any) {
		props = append(props, map[string]any{
			"name":         name,
			"value":        s.wrapValue(v, true),
			"writable":     true,
			"configurable": true,
			"enumerable":   true,
			"isOwn":        true,
		})
	}

	switch val := value.(type) {
	case map[string]any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			appendProp(name, val[name])
		}
	case []any:
		for i, item := range val {
			appendProp(strconv.Itoa(i), item)
		}
		appendProp("length", float64(len(val)))
	}

	return map[string]any{"result": props}, nil
}

func (s *Session) runtimeReleaseObject(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		ObjectID string `json:"objectId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.objects.Remove(p.ObjectID)
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) runtimeReleaseObjectGroup(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	// Groups are not tracked; releasing any group drops the whole map.
	s.mu.Lock()
	s.objects.Clear()
	s.mu.Unlock()
	return nil, nil
}
