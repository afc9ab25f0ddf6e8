// Package cdp implements the DevTools-protocol translation layer: one
// session per WebSocket connection, a lookup-table dispatcher, per-domain
// handlers, and the handle registries that back them.
package cdp

import (
	"encoding/json"
	"fmt"
)

// Request is an inbound command frame.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound reply frame. Exactly one of Result or Error is set.
type Response struct {
	ID     int64      `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// Event is an outbound notification frame; it never carries an id.
type Event struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// ErrorInfo is the error member of a Response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// parseRequest decodes a raw inbound frame. A decode failure here means the
// frame is unanswerable: no id can be recovered.
func parseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	return &req, nil
}

// decodeParams unmarshals command params into v. Absent params leave v at
// its zero value.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}
