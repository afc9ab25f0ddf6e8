package cdp

import (
	"errors"
	"strings"
	"testing"
)

func TestRuntimeEvaluateNumber(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		if expression != "2 + 2" {
			t.Errorf("expression = %q", expression)
		}
		return float64(4), nil
	}

	result := rpc(t, s, 1, "Runtime.evaluate", map[string]any{"expression": "2 + 2"})
	remote := result["result"].(map[string]any)
	if remote["type"] != "number" {
		t.Errorf("type = %v", remote["type"])
	}
	if remote["value"] != float64(4) {
		t.Errorf("value = %v", remote["value"])
	}
}

func TestRuntimeEvaluatePrimitives(t *testing.T) {
	s, b := newTestSession(t)

	cases := []struct {
		engine   any
		wantType string
	}{
		{true, "boolean"},
		{"hello", "string"},
		{nil, "undefined"},
	}
	for i, tc := range cases {
		defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
			return tc.engine, nil
		}
		result := rpc(t, s, i+1, "Runtime.evaluate", map[string]any{"expression": "x"})
		remote := result["result"].(map[string]any)
		if remote["type"] != tc.wantType {
			t.Errorf("case %d: type = %v, want %s", i, remote["type"], tc.wantType)
		}
	}
}

func TestRuntimeEvaluateReturnsObjectByValueByDefault(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{"a": float64(1)}, nil
	}

	result := rpc(t, s, 1, "Runtime.evaluate", map[string]any{"expression": "({a: 1})"})
	remote := result["result"].(map[string]any)
	if remote["type"] != "object" {
		t.Errorf("type = %v", remote["type"])
	}
	if _, ok := remote["objectId"]; ok {
		t.Error("default returnByValue leaked an objectId")
	}
	value := remote["value"].(map[string]any)
	if value["a"] != float64(1) {
		t.Errorf("value = %v", value)
	}
}

func TestRuntimeEvaluateByReferenceAllocatesFreshIDs(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{"n": float64(1)}, nil
	}

	params := map[string]any{"expression": "({n: 1})", "returnByValue": false}
	first := rpc(t, s, 1, "Runtime.evaluate", params)["result"].(map[string]any)
	second := rpc(t, s, 2, "Runtime.evaluate", params)["result"].(map[string]any)

	firstID, _ := first["objectId"].(string)
	secondID, _ := second["objectId"].(string)
	if firstID == "" || secondID == "" {
		t.Fatalf("objectIds = %q, %q", firstID, secondID)
	}
	if firstID == secondID {
		t.Error("repeated evaluation reused an object id")
	}
	if _, ok := first["value"]; ok {
		t.Error("by-reference result carried a value")
	}
}

func TestRuntimeEvaluateArraySubtype(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return []any{float64(1), float64(2)}, nil
	}

	result := rpc(t, s, 1, "Runtime.evaluate", map[string]any{"expression": "[1,2]"})
	remote := result["result"].(map[string]any)
	if remote["subtype"] != "array" {
		t.Errorf("subtype = %v, want array", remote["subtype"])
	}
}

func TestRuntimeEvaluateAwaitPromiseWrapsExpression(t *testing.T) {
	s, b := newTestSession(t)
	var got string
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		got = expression
		return "done", nil
	}

	rpc(t, s, 1, "Runtime.evaluate", map[string]any{
		"expression":   "fetch('/x')",
		"awaitPromise": true,
	})
	if got != "(async () => (fetch('/x')))()" {
		t.Errorf("evaluated expression = %q", got)
	}
}

func TestRuntimeEvaluateScriptErrorBecomesExceptionDetails(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return nil, errors.New("ReferenceError: nope is not defined")
	}

	// A throwing script is a successful command; the failure travels in
	// exceptionDetails.
	result := rpc(t, s, 1, "Runtime.evaluate", map[string]any{"expression": "nope"})
	details := result["exceptionDetails"].(map[string]any)
	if !strings.Contains(details["text"].(string), "ReferenceError") {
		t.Errorf("text = %v", details["text"])
	}
	exception := details["exception"].(map[string]any)
	if exception["subtype"] != "error" {
		t.Errorf("exception subtype = %v", exception["subtype"])
	}
	if result["result"].(map[string]any)["type"] != "undefined" {
		t.Errorf("result type = %v", result["result"])
	}
}

func TestRuntimeEvaluateRequiresExpression(t *testing.T) {
	s, _ := newTestSession(t)

	code, _ := rpcErr(t, s, 1, "Runtime.evaluate", nil)
	if code != -32602 {
		t.Errorf("code = %d, want -32602", code)
	}
}

func TestRuntimeCallFunctionOn(t *testing.T) {
	s, b := newTestSession(t)
	var gotExpr string
	var gotArgs []any
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		gotExpr = expression
		gotArgs = args
		return float64(7), nil
	}

	result := rpc(t, s, 1, "Runtime.callFunctionOn", map[string]any{
		"functionDeclaration": "(a, b) => a + b",
		"arguments": []map[string]any{
			{"value": 3},
			{"value": 4},
		},
	})
	remote := result["result"].(map[string]any)
	if remote["value"] != float64(7) {
		t.Errorf("value = %v", remote["value"])
	}

	if !strings.Contains(gotExpr, "(a, b) => a + b") {
		t.Errorf("declaration not spliced: %q", gotExpr)
	}
	if len(gotArgs) != 1 {
		t.Fatalf("args = %d, want single context argument", len(gotArgs))
	}
	callCtx := gotArgs[0].(map[string]any)
	args := callCtx["args"].([]any)
	if len(args) != 2 || args[0] != float64(3) || args[1] != float64(4) {
		t.Errorf("resolved args = %v", args)
	}
}

func TestRuntimeCallFunctionOnResolvesObjectIDs(t *testing.T) {
	s, b := newTestSession(t)
	stored := map[string]any{"name": "gopher"}
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return stored, nil
	}

	held := rpc(t, s, 1, "Runtime.evaluate", map[string]any{
		"expression":    "obj",
		"returnByValue": false,
	})["result"].(map[string]any)
	objectID := held["objectId"].(string)

	var gotSelf any
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		gotSelf = args[0].(map[string]any)["self"]
		return nil, nil
	}
	rpc(t, s, 2, "Runtime.callFunctionOn", map[string]any{
		"functionDeclaration": "function() { return this.name }",
		"objectId":            objectID,
	})

	self, _ := gotSelf.(map[string]any)
	if self["name"] != "gopher" {
		t.Errorf("self = %v, want stored object", gotSelf)
	}

	code, msg := rpcErr(t, s, 3, "Runtime.callFunctionOn", map[string]any{
		"functionDeclaration": "function() {}",
		"objectId":            "obj-404",
	})
	if code != -32000 || !strings.Contains(msg, "obj-404") {
		t.Errorf("unknown objectId: code = %d, msg = %q", code, msg)
	}
}

func TestRuntimeGetPropertiesSortedOwnProps(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{"b": float64(2), "a": float64(1)}, nil
	}

	held := rpc(t, s, 1, "Runtime.evaluate", map[string]any{
		"expression":    "obj",
		"returnByValue": false,
	})["result"].(map[string]any)

	result := rpc(t, s, 2, "Runtime.getProperties", map[string]any{
		"objectId": held["objectId"],
	})
	props := result["result"].([]any)
	if len(props) != 2 {
		t.Fatalf("props = %d, want 2", len(props))
	}
	first := props[0].(map[string]any)
	if first["name"] != "a" {
		t.Errorf("props not sorted: first = %v", first["name"])
	}
	if first["isOwn"] != true {
		t.Errorf("isOwn = %v", first["isOwn"])
	}
	if first["value"].(map[string]any)["value"] != float64(1) {
		t.Errorf("value = %v", first["value"])
	}
}

func TestRuntimeGetPropertiesArray(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return []any{"x", "y"}, nil
	}

	held := rpc(t, s, 1, "Runtime.evaluate", map[string]any{
		"expression":    "arr",
		"returnByValue": false,
	})["result"].(map[string]any)

	result := rpc(t, s, 2, "Runtime.getProperties", map[string]any{
		"objectId": held["objectId"],
	})
	props := result["result"].([]any)
	if len(props) != 3 {
		t.Fatalf("props = %d, want indices + length", len(props))
	}
	last := props[2].(map[string]any)
	if last["name"] != "length" || last["value"].(map[string]any)["value"] != float64(2) {
		t.Errorf("length prop = %v", last)
	}
}

func TestRuntimeGetPropertiesUnknownIDIsEmpty(t *testing.T) {
	s, _ := newTestSession(t)

	result := rpc(t, s, 1, "Runtime.getProperties", map[string]any{"objectId": "obj-404"})
	if props := result["result"].([]any); len(props) != 0 {
		t.Errorf("props = %v, want empty", props)
	}
}

func TestRuntimeReleaseObjectGroupDropsEverything(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{"k": "v"}, nil
	}

	held := rpc(t, s, 1, "Runtime.evaluate", map[string]any{
		"expression":    "obj",
		"returnByValue": false,
	})["result"].(map[string]any)
	objectID := held["objectId"].(string)

	rpc(t, s, 2, "Runtime.releaseObjectGroup", map[string]any{"objectGroup": "console"})

	result := rpc(t, s, 3, "Runtime.getProperties", map[string]any{"objectId": objectID})
	if props := result["result"].([]any); len(props) != 0 {
		t.Errorf("props after group release = %v, want empty", props)
	}
}

func TestRuntimeReleaseObject(t *testing.T) {
	s, b := newTestSession(t)
	defaultPage(t, b).EvaluateFunc = func(expression string, args ...any) (any, error) {
		return map[string]any{"k": "v"}, nil
	}

	held := rpc(t, s, 1, "Runtime.evaluate", map[string]any{
		"expression":    "obj",
		"returnByValue": false,
	})["result"].(map[string]any)
	objectID := held["objectId"].(string)

	rpc(t, s, 2, "Runtime.releaseObject", map[string]any{"objectId": objectID})
	// Releasing twice is silent.
	rpc(t, s, 3, "Runtime.releaseObject", map[string]any{"objectId": objectID})

	result := rpc(t, s, 4, "Runtime.getProperties", map[string]any{"objectId": objectID})
	if props := result["result"].([]any); len(props) != 0 {
		t.Errorf("props after release = %v", props)
	}
}
