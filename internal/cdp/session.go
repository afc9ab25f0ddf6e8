package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neboloop/browserd/internal/backend"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Fulfill bodies and setContent
	// HTML arrive base64/inline, so this is well above a chat-sized frame.
	maxMessageSize = 8 << 20

	// Outbound frame buffer. One writer drains it; producers never block on
	// the socket directly.
	sendBufferSize = 256
)

// Config wires a Session's collaborators.
type Config struct {
	// Launcher starts the browser process backing this session.
	Launcher func(ctx context.Context) (backend.Browser, error)

	// Logger for session lifecycle and protocol noise. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Recorder receives audit records; nil keeps auditing slog-only.
	Recorder Recorder

	// DefaultTimeout bounds navigations and evaluations when a command
	// does not carry its own.
	DefaultTimeout time.Duration

	// ViewportWidth and ViewportHeight are the dimensions device-metrics
	// overrides reset to. Zero falls back to 1280x720.
	ViewportWidth  int
	ViewportHeight int
}

// dialogPolicy is an armed accept/dismiss decision for JavaScript dialogs.
type dialogPolicy struct {
	accept     bool
	promptText string
}

// Session is one protocol conversation: a WebSocket connection, one browser
// process, and all the handle state that ties them together. Everything in
// it dies with the connection.
type Session struct {
	id      string
	conn    *websocket.Conn
	browser backend.Browser
	log     *slog.Logger
	audit   *auditLogger

	defaultTimeout time.Duration
	viewportWidth  int
	viewportHeight int

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu guards every map below. Handlers run one at a time, but backend
	// callbacks (interception, dialogs) arrive on engine goroutines and
	// take the same lock. Never held across backend I/O.
	mu              sync.Mutex
	closed          bool
	targets         map[string]backend.Page
	defaultTargetID string
	nodes           *nodeRegistry
	objects         *objectRegistry
	scripts         *scriptRegistry
	requests        *requestRegistry
	extraHeaders    map[string]string
	interception    bool
	patterns        []requestPattern
	dialog          *dialogPolicy
	pendingDialog   backend.Dialog

	// postEvents queue up during a command and flush after its response.
	// Touched only from the dispatch goroutine.
	postEvents []Event

	handlers map[string]command
}

// NewSession launches the backend, opens the default target, and queues its
// creation event. A failure here is the one fatal path: the caller closes
// the socket with an internal-error code and no command is ever processed.
func NewSession(ctx context.Context, conn *websocket.Conn, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	browser, err := cfg.Launcher(ctx)
	if err != nil {
		return nil, fmt.Errorf("backend launch: %w", err)
	}

	viewportW, viewportH := cfg.ViewportWidth, cfg.ViewportHeight
	if viewportW <= 0 {
		viewportW = 1280
	}
	if viewportH <= 0 {
		viewportH = 720
	}

	s := &Session{
		id:             uuid.New().String(),
		conn:           conn,
		browser:        browser,
		defaultTimeout: cfg.DefaultTimeout,
		viewportWidth:  viewportW,
		viewportHeight: viewportH,
		send:           make(chan []byte, sendBufferSize),
		done:           make(chan struct{}),
		targets:        make(map[string]backend.Page),
		nodes:          newNodeRegistry(),
		objects:        newObjectRegistry(),
		scripts:        newScriptRegistry(),
		requests:       newRequestRegistry(),
		extraHeaders:   make(map[string]string),
	}
	s.log = logger.With("session", truncateID(s.id))
	s.audit = newAuditLogger(logger, cfg.Recorder)
	s.registerHandlers()

	page, err := browser.NewPage(ctx)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("default page: %w", err)
	}

	targetID := s.addTarget(page)
	s.mu.Lock()
	s.defaultTargetID = targetID
	s.mu.Unlock()

	s.emitTargetCreated(targetID, page)
	s.log.Info("session started", "target", targetID)
	return s, nil
}

// ID returns the session identifier used in logs and audit records.
func (s *Session) ID() string {
	return s.id
}

// Run pumps the connection until it closes, then tears the session down.
// It blocks; the caller owns the goroutine.
func (s *Session) Run(ctx context.Context) {
	go s.writePump()
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()
	s.readPump(ctx)
	s.close()
}

// readPump reads command frames and dispatches them strictly in order.
// Handlers run to completion before the next frame is looked at; there is
// no mid-command cancellation.
func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("read failed", "error", err)
			}
			return
		}
		s.handleFrame(ctx, data)
	}
}

// writePump is the single socket writer. Responses and events share the
// same channel, so no frame is ever interleaved with another.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// close tears the session down once: browser gone, socket gone, pumps
// stopped. Teardown errors are logged, never propagated.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		parked := s.requests.Len()
		s.mu.Unlock()

		if parked > 0 {
			s.log.Debug("closing with parked requests", "count", parked)
		}

		if err := s.browser.Close(); err != nil {
			s.log.Warn("browser teardown failed", "error", err)
		}
		_ = s.conn.Close()
		s.log.Info("session closed")
	})
}

// emit queues an event frame.
func (s *Session) emit(method string, params any) {
	s.enqueue(Event{Method: method, Params: params})
}

// post defers an event until after the in-flight command's response. Some
// clients expect the ack before replayed state, so Target discovery and
// attachment go through here instead of emit.
func (s *Session) post(method string, params any) {
	s.postEvents = append(s.postEvents, Event{Method: method, Params: params})
}

// flushPostEvents emits everything queued by post, in order.
func (s *Session) flushPostEvents() {
	for _, ev := range s.postEvents {
		s.enqueue(ev)
	}
	s.postEvents = nil
}

// reply queues a result response.
func (s *Session) reply(id int64, result any) {
	if result == nil {
		result = struct{}{}
	}
	s.enqueue(Response{ID: id, Result: result})
}

// replyError queues an error response.
func (s *Session) replyError(id int64, err error) {
	s.enqueue(Response{ID: id, Error: errorInfo(err)})
}

// enqueue hands a frame to the writer. A full buffer means the client has
// stopped draining; the session drops rather than letting backend
// callbacks block behind a dead socket.
func (s *Session) enqueue(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("frame marshal failed", "error", err)
		return
	}

	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.log.Error("outbound buffer full, dropping connection")
		s.close()
	}
}

// Target bookkeeping

func newTargetID() string {
	// Stable UUID-based ids; URL-derived ids break once the page navigates.
	return fmt.Sprintf("page-%s", uuid.New().String()[:8])
}

// addTarget registers a page under a fresh target id and wires its dialog
// callback.
func (s *Session) addTarget(page backend.Page) string {
	targetID := newTargetID()

	s.mu.Lock()
	s.targets[targetID] = page
	s.mu.Unlock()

	page.OnDialog(func(d backend.Dialog) {
		s.onDialog(d)
	})

	return targetID
}

// removeTarget drops a target binding. The default target binding survives
// until teardown; callers enforce that rule.
func (s *Session) removeTarget(targetID string) (backend.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.targets[targetID]
	if ok {
		delete(s.targets, targetID)
	}
	return page, ok
}

// resolveTarget picks the addressed page: explicit target id if given,
// session default otherwise.
func (s *Session) resolveTarget(targetID string) (backend.Page, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if targetID == "" {
		targetID = s.defaultTargetID
	}
	page, ok := s.targets[targetID]
	if !ok {
		return nil, targetID, targetNotFound(targetID)
	}
	return page, targetID, nil
}

// targetIDs returns the live target ids in allocation-independent order.
func (s *Session) targetIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.targets))
	for id := range s.targets {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) emitTargetCreated(targetID string, page backend.Page) {
	title, _ := page.Title()
	s.emit("Target.targetCreated", map[string]any{
		"targetInfo": targetInfo(targetID, title, page.URL()),
	})
}

// onDialog handles a backend dialog callback: emit the opening event, then
// either apply the armed policy or hold the dialog for a
// Page.handleJavaScriptDialog command.
func (s *Session) onDialog(d backend.Dialog) {
	s.mu.Lock()
	policy := s.dialog
	if policy == nil {
		s.pendingDialog = d
	}
	s.mu.Unlock()

	s.emit("Page.javascriptDialogOpening", map[string]any{
		"message":           d.Message(),
		"type":              d.Type(),
		"hasBrowserHandler": policy != nil,
	})

	if policy != nil {
		s.settleDialog(d, policy.accept, policy.promptText)
	}
}

// settleDialog resolves a dialog and emits the closed event.
func (s *Session) settleDialog(d backend.Dialog, accept bool, promptText string) {
	var err error
	if accept {
		err = d.Accept(promptText)
	} else {
		err = d.Dismiss()
	}
	if err != nil {
		s.log.Warn("dialog handling failed", "error", err)
		return
	}

	s.emit("Page.javascriptDialogClosed", map[string]any{
		"result":    accept,
		"userInput": promptText,
	})
}
