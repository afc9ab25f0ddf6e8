package cdp

import (
	"testing"

	"github.com/neboloop/browserd/internal/backend/backendtest"
)

func TestNodeRegistryNeverReusesIDs(t *testing.T) {
	r := newNodeRegistry()

	first := r.Allocate("div")
	if first != 1 {
		t.Fatalf("first id = %d, want 1", first)
	}
	r.Remove(first)

	second := r.Allocate("span")
	if second != 2 {
		t.Fatalf("id after removal = %d, want 2", second)
	}

	r.Clear()
	third := r.Allocate("p")
	if third != 3 {
		t.Fatalf("id after clear = %d, want 3", third)
	}

	if _, ok := r.Get(first); ok {
		t.Error("removed id still resolves")
	}
	if sel, ok := r.Get(third); !ok || sel != "p" {
		t.Errorf("Get(%d) = %q, %v", third, sel, ok)
	}
}

func TestObjectRegistryFreshIDs(t *testing.T) {
	r := newObjectRegistry()

	a := r.Allocate(map[string]any{"a": 1})
	b := r.Allocate([]any{1, 2})
	if a != "obj-1" || b != "obj-2" {
		t.Fatalf("ids = %q, %q, want obj-1, obj-2", a, b)
	}

	r.Remove(a)
	if _, ok := r.Get(a); ok {
		t.Error("removed object still resolves")
	}

	c := r.Allocate("x")
	if c != "obj-3" {
		t.Errorf("id after removal = %q, want obj-3", c)
	}

	r.Clear()
	if _, ok := r.Get(b); ok {
		t.Error("object survives Clear")
	}
	if d := r.Allocate("y"); d != "obj-4" {
		t.Errorf("id after clear = %q, want obj-4", d)
	}
}

func TestScriptRegistryRemove(t *testing.T) {
	r := newScriptRegistry()

	id := r.Add("console.log(1)")
	if id != "script-1" {
		t.Fatalf("id = %q, want script-1", id)
	}
	if !r.Remove(id) {
		t.Error("Remove returned false for live id")
	}
	if r.Remove(id) {
		t.Error("Remove returned true for dead id")
	}
	if r.Remove("script-99") {
		t.Error("Remove returned true for unknown id")
	}
}

func TestRequestRegistryTakeIsTerminal(t *testing.T) {
	r := newRequestRegistry()

	req := backendtest.NewRequest("https://example.com/x", "GET", "document")
	parked := r.Park(req)
	if parked.id != "req-1" {
		t.Fatalf("id = %q, want req-1", parked.id)
	}
	if !r.Has(parked.id) {
		t.Fatal("Has = false for parked request")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	taken, ok := r.Take(parked.id)
	if !ok || taken != parked {
		t.Fatalf("Take = %v, %v", taken, ok)
	}
	if _, ok := r.Take(parked.id); ok {
		t.Error("second Take succeeded")
	}
	if r.Has(parked.id) {
		t.Error("Has = true after Take")
	}

	// Ids keep climbing across the take.
	next := r.Park(backendtest.NewRequest("https://example.com/y", "GET", "xhr"))
	if next.id != "req-2" {
		t.Errorf("next id = %q, want req-2", next.id)
	}
}
