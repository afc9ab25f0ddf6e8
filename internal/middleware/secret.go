// Package middleware carries the HTTP guards in front of the protocol
// server: the shared-secret gatekeeper and the JWT admin guard.
package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/neboloop/browserd/internal/httputil"
)

// SecretProvider holds the shared connection secret. A file-backed provider
// reloads on changes so rotation does not need a restart.
type SecretProvider struct {
	mu     sync.RWMutex
	secret []byte

	path string
	log  *slog.Logger
}

// NewStaticSecret wraps a fixed secret. Empty means not configured.
func NewStaticSecret(secret string) *SecretProvider {
	p := &SecretProvider{log: slog.Default()}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// NewFileSecret loads the secret from path. Call Watch to pick up rewrites.
func NewFileSecret(path string, logger *slog.Logger) (*SecretProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SecretProvider{path: path, log: logger.With("component", "secret")}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SecretProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read secret file: %w", err)
	}
	secret := bytes.TrimRight(data, "\r\n")

	p.mu.Lock()
	p.secret = secret
	p.mu.Unlock()
	return nil
}

// Watch blocks until ctx is cancelled, reloading the secret whenever its
// file is rewritten. The parent directory is watched because editors and
// rotation scripts usually replace the file rather than write in place.
func (p *SecretProvider) Watch(ctx context.Context) error {
	if p.path == "" {
		return fmt.Errorf("no secret file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch secret dir: %w", err)
	}
	base := filepath.Base(p.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := p.reload(); err != nil {
					p.log.Error("secret reload failed", "error", err)
					continue
				}
				p.log.Info("secret reloaded")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.log.Error("secret watcher error", "error", err)
		}
	}
}

// Secret returns the current secret bytes.
func (p *SecretProvider) Secret() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.secret
}

// Configured reports whether a non-empty secret is loaded.
func (p *SecretProvider) Configured() bool {
	return len(p.Secret()) > 0
}

// SecretGate guards a route with the shared secret carried in the token
// query parameter. A missing configured secret fails closed with 503; any
// mismatch, including a length mismatch, is a 401. The comparison is
// constant time so rejection timing does not depend on where the token
// diverges.
func SecretGate(provider *SecretProvider, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !provider.Configured() {
				httputil.ServiceUnavailable(w, "authentication not configured")
				return
			}

			token := []byte(r.URL.Query().Get("token"))
			secret := provider.Secret()
			if len(token) != len(secret) || subtle.ConstantTimeCompare(token, secret) != 1 {
				logger.Warn("rejected connection", "remote", r.RemoteAddr, "path", r.URL.Path)
				httputil.Unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
