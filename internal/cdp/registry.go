package cdp

import (
	"fmt"

	"github.com/neboloop/browserd/internal/backend"
)

// Registries are owned by one Session and accessed only under its lock.
// Every counter starts at 1 and only grows, so an id is never reused within
// a session's lifetime, even after removal. Id 0 is reserved as the
// "no such node" sentinel and is never allocated.

// nodeRegistry maps node ids to the selector path that re-finds the element.
type nodeRegistry struct {
	nodes  map[int]string
	nextID int
}

func newNodeRegistry() *nodeRegistry {
	return &nodeRegistry{
		nodes:  make(map[int]string),
		nextID: 1,
	}
}

// Allocate binds a fresh node id to a selector.
func (r *nodeRegistry) Allocate(selector string) int {
	id := r.nextID
	r.nextID++
	r.nodes[id] = selector
	return id
}

// Get resolves a node id to its selector.
func (r *nodeRegistry) Get(id int) (string, bool) {
	selector, ok := r.nodes[id]
	return selector, ok
}

// Remove drops a node id. The id stays burned.
func (r *nodeRegistry) Remove(id int) {
	delete(r.nodes, id)
}

// Clear drops every node binding but keeps the counter position.
func (r *nodeRegistry) Clear() {
	r.nodes = make(map[int]string)
}

// objectRegistry maps object ids to retained evaluation results.
type objectRegistry struct {
	objects map[string]any
	nextID  int
}

func newObjectRegistry() *objectRegistry {
	return &objectRegistry{
		objects: make(map[string]any),
		nextID:  1,
	}
}

// Allocate stores a value under a fresh object id.
func (r *objectRegistry) Allocate(value any) string {
	id := fmt.Sprintf("obj-%d", r.nextID)
	r.nextID++
	r.objects[id] = value
	return id
}

// Get returns the stored value for an object id.
func (r *objectRegistry) Get(id string) (any, bool) {
	value, ok := r.objects[id]
	return value, ok
}

// Remove drops one object id.
func (r *objectRegistry) Remove(id string) {
	delete(r.objects, id)
}

// Clear drops every stored object. Groups are not tracked; a group release
// always lands here.
func (r *objectRegistry) Clear() {
	r.objects = make(map[string]any)
}

// scriptRegistry maps injected-script identifiers to their source text.
// Removal only forgets the registration; instances already injected into
// loaded documents stay live.
type scriptRegistry struct {
	scripts map[string]string
	nextID  int
}

func newScriptRegistry() *scriptRegistry {
	return &scriptRegistry{
		scripts: make(map[string]string),
		nextID:  1,
	}
}

// Add registers script source and returns its identifier.
func (r *scriptRegistry) Add(source string) string {
	id := fmt.Sprintf("script-%d", r.nextID)
	r.nextID++
	r.scripts[id] = source
	return id
}

// Remove forgets a registration. Returns false for unknown ids.
func (r *scriptRegistry) Remove(id string) bool {
	if _, ok := r.scripts[id]; !ok {
		return false
	}
	delete(r.scripts, id)
	return true
}

// parkedRequest is an intercepted network request awaiting a terminal
// decision. It leaves the registry on resolution and never re-enters.
type parkedRequest struct {
	id  string
	req backend.InterceptedRequest
}

// requestRegistry parks intercepted requests by request id.
type requestRegistry struct {
	pending map[string]*parkedRequest
	nextID  int
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{
		pending: make(map[string]*parkedRequest),
		nextID:  1,
	}
}

// Park stores a request under a fresh request id.
func (r *requestRegistry) Park(req backend.InterceptedRequest) *parkedRequest {
	id := fmt.Sprintf("req-%d", r.nextID)
	r.nextID++
	parked := &parkedRequest{id: id, req: req}
	r.pending[id] = parked
	return parked
}

// Take removes and returns a parked request. The removal is the state
// transition: once taken, the id can never resolve again.
func (r *requestRegistry) Take(id string) (*parkedRequest, bool) {
	parked, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return parked, ok
}

// Has reports whether a request is still parked, without resolving it.
func (r *requestRegistry) Has(id string) bool {
	_, ok := r.pending[id]
	return ok
}

// Len reports how many requests are currently parked.
func (r *requestRegistry) Len() int {
	return len(r.pending)
}
