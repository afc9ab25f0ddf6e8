package cdp

import (
	"log/slog"
	"time"
)

// sensitiveCommands are methods whose execution is flagged in the audit
// trail: they run client-supplied code, move credentials, or rewrite
// traffic.
var sensitiveCommands = map[string]bool{
	"Runtime.evaluate":                      true,
	"Runtime.callFunctionOn":                true,
	"Page.navigate":                         true,
	"Page.setContent":                       true,
	"Page.addScriptToEvaluateOnNewDocument": true,
	"Page.captureScreenshot":                true,
	"Page.printToPDF":                       true,
	"Network.setCookie":                     true,
	"Network.setCookies":                    true,
	"Network.deleteCookies":                 true,
	"Network.setExtraHTTPHeaders":           true,
	"Network.setUserAgentOverride":          true,
	"Input.dispatchKeyEvent":                true,
	"Input.insertText":                      true,
	"DOM.setAttributeValue":                 true,
	"DOM.setFileInputFiles":                 true,
	"Fetch.fulfillRequest":                  true,
	"Fetch.continueRequest":                 true,
}

// CommandRecord is one dispatched command as seen by the audit trail.
type CommandRecord struct {
	Time      time.Time
	Session   string
	Method    string
	TargetID  string
	Sensitive bool
	Duration  time.Duration
	ErrorCode int // 0 on success
}

// Recorder persists command records. Implemented by the SQLite audit store;
// a nil Recorder means slog-only auditing.
type Recorder interface {
	Record(rec CommandRecord)
}

type auditLogger struct {
	logger   *slog.Logger
	recorder Recorder
}

func newAuditLogger(logger *slog.Logger, recorder Recorder) *auditLogger {
	return &auditLogger{
		logger:   logger.With("component", "cdp"),
		recorder: recorder,
	}
}

// logCommand emits one audit entry per dispatched command. Params are never
// logged; method names plus target ids are enough to reconstruct activity
// without capturing page secrets.
func (l *auditLogger) logCommand(sessionID, method, targetID string, duration time.Duration, errCode int) {
	if l == nil {
		return
	}

	sensitive := sensitiveCommands[method]

	attrs := []any{
		"session", truncateID(sessionID),
		"method", method,
		"duration_ms", duration.Milliseconds(),
	}
	if targetID != "" {
		attrs = append(attrs, "target", targetID)
	}
	if errCode != 0 {
		attrs = append(attrs, "error_code", errCode)
	}

	if sensitive {
		l.logger.Warn("cdp_sensitive_command", attrs...)
	} else {
		l.logger.Info("cdp_command", attrs...)
	}

	if l.recorder != nil {
		l.recorder.Record(CommandRecord{
			Time:      time.Now(),
			Session:   sessionID,
			Method:    method,
			TargetID:  targetID,
			Sensitive: sensitive,
			Duration:  duration,
			ErrorCode: errCode,
		})
	}
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
