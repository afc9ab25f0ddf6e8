package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neboloop/browserd/internal/backend"
)

func (s *Session) emulationSetDeviceMetrics(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Width             int     `json:"width"`
		Height            int     `json:"height"`
		DeviceScaleFactor float64 `json:"deviceScaleFactor"`
		Mobile            bool    `json:"mobile"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	// Scale factor and mobile flag are accepted but only the viewport is
	// applied; the engine fixes the rest at context creation.
	if p.Width <= 0 || p.Height <= 0 {
		return nil, invalidParams("width and height must be positive")
	}
	return nil, page.SetViewport(p.Width, p.Height)
}

func (s *Session) emulationClearDeviceMetrics(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	return nil, page.SetViewport(s.viewportWidth, s.viewportHeight)
}

func (s *Session) emulationSetGeolocation(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Accuracy  float64 `json:"accuracy"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return nil, page.SetGeolocation(p.Latitude, p.Longitude, p.Accuracy)
}

func (s *Session) emulationClearGeolocation(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	// Granted permissions cannot be revoked mid-session; acknowledged
	// without effect.
	return nil, nil
}

// timezoneScript redirects date formatting through a fixed zone. Scripts
// that read Date.getTimezoneOffset directly still see the host zone.
const timezoneScript = `(() => {
	const tz = %q;
	const DTF = Intl.DateTimeFormat;
	const patched = function (locales, options) {
		options = Object.assign({}, options);
		if (!options.timeZone) options.timeZone = tz;
		return new DTF(locales, options);
	};
	patched.prototype = DTF.prototype;
	patched.supportedLocalesOf = DTF.supportedLocalesOf;
	Intl.DateTimeFormat = patched;
	for (const method of ['toLocaleString', 'toLocaleDateString', 'toLocaleTimeString']) {
		const orig = Date.prototype[method];
		Date.prototype[method] = function (locales, options) {
			options = Object.assign({}, options);
			if (!options.timeZone) options.timeZone = tz;
			return orig.call(this, locales, options);
		};
	}
})()`

func (s *Session) emulationSetTimezone(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		TimezoneID string `json:"timezoneId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TimezoneID == "" {
		return nil, invalidParams("timezoneId is required")
	}

	source := fmt.Sprintf(timezoneScript, p.TimezoneID)
	if _, err := page.Evaluate(ctx, source); err != nil {
		return nil, err
	}
	return nil, page.AddInitScript(source)
}

// touchScript overrides the navigator capabilities touch detection reads.
const touchScript = `(() => {
	Object.defineProperty(navigator, 'maxTouchPoints', { get: () => %d, configurable: true });
	if (%t && !('ontouchstart' in window)) {
		window.ontouchstart = null;
	}
})()`

func (s *Session) emulationSetTouch(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Enabled        bool `json:"enabled"`
		MaxTouchPoints *int `json:"maxTouchPoints"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	points := 0
	if p.Enabled {
		points = 1
		if p.MaxTouchPoints != nil && *p.MaxTouchPoints > 0 {
			points = *p.MaxTouchPoints
		}
	}

	source := fmt.Sprintf(touchScript, points, p.Enabled)
	if _, err := page.Evaluate(ctx, source); err != nil {
		return nil, err
	}
	return nil, page.AddInitScript(source)
}

func (s *Session) emulationSetEmulatedMedia(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Media    string `json:"media"`
		Features []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"features"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	opts := backend.MediaOptions{Media: p.Media}
	for _, f := range p.Features {
		switch f.Name {
		case "prefers-color-scheme":
			opts.ColorScheme = f.Value
		case "prefers-reduced-motion":
			opts.ReducedMotion = f.Value
		}
	}
	return nil, page.EmulateMedia(opts)
}

func (s *Session) emulationSetBackgroundColor(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	var p struct {
		Color *struct {
			R int      `json:"r"`
			G int      `json:"g"`
			B int      `json:"b"`
			A *float64 `json:"a"`
		} `json:"color"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	// Omitting the color resets the override; an explicit alpha of 0 is
	// the transparent-background case and must survive as-is.
	background := ""
	if p.Color != nil {
		alpha := 1.0
		if p.Color.A != nil {
			alpha = *p.Color.A
		}
		background = fmt.Sprintf("rgba(%d, %d, %d, %g)", p.Color.R, p.Color.G, p.Color.B, alpha)
	}

	_, err := page.Evaluate(ctx, "(bg) => { document.documentElement.style.background = bg; }", background)
	return nil, err
}
