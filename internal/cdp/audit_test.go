package cdp

import (
	"context"
	"sync"
	"testing"

	"github.com/neboloop/browserd/internal/backend"
	"github.com/neboloop/browserd/internal/backend/backendtest"
)

type captureRecorder struct {
	mu   sync.Mutex
	recs []CommandRecord
}

func (r *captureRecorder) Record(rec CommandRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *captureRecorder) records() []CommandRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CommandRecord(nil), r.recs...)
}

func TestAuditRecordsEveryCommand(t *testing.T) {
	rec := &captureRecorder{}
	b := &backendtest.Browser{}
	s, err := NewSession(context.Background(), nil, Config{
		Launcher: func(ctx context.Context) (backend.Browser, error) { return b, nil },
		Logger:   testLogger(),
		Recorder: rec,
	})
	if err != nil {
		t.Fatal(err)
	}
	drainFrames(t, s)

	rpc(t, s, 1, "Page.enable", nil)
	rpc(t, s, 2, "Runtime.evaluate", map[string]any{"expression": "1"})
	rpcErr(t, s, 3, "Animation.enable", nil)

	recs := rec.records()
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	if recs[0].Method != "Page.enable" || recs[0].Sensitive {
		t.Errorf("record 0 = %+v", recs[0])
	}
	if recs[0].Session != s.ID() {
		t.Errorf("session = %q, want %q", recs[0].Session, s.ID())
	}
	if recs[0].ErrorCode != 0 {
		t.Errorf("error code = %d", recs[0].ErrorCode)
	}

	// Script execution is flagged.
	if recs[1].Method != "Runtime.evaluate" || !recs[1].Sensitive {
		t.Errorf("record 1 = %+v", recs[1])
	}

	// Failures carry the protocol error code.
	if recs[2].Method != "Animation.enable" || recs[2].ErrorCode != -32601 {
		t.Errorf("record 2 = %+v", recs[2])
	}
}

func TestAuditSensitiveClassification(t *testing.T) {
	cases := []struct {
		method    string
		sensitive bool
	}{
		{"Runtime.evaluate", true},
		{"Runtime.callFunctionOn", true},
		{"Page.navigate", true},
		{"Network.setCookie", true},
		{"Input.insertText", true},
		{"Fetch.fulfillRequest", true},
		{"Page.enable", false},
		{"Target.getTargets", false},
		{"DOM.getDocument", false},
		{"Browser.getVersion", false},
	}
	for _, tc := range cases {
		if got := sensitiveCommands[tc.method]; got != tc.sensitive {
			t.Errorf("%s: sensitive = %v, want %v", tc.method, got, tc.sensitive)
		}
	}
}

func TestTruncateID(t *testing.T) {
	if got := truncateID("0123456789abcdef"); got != "01234567" {
		t.Errorf("truncateID = %q", got)
	}
	if got := truncateID("short"); got != "short" {
		t.Errorf("truncateID = %q", got)
	}
}
