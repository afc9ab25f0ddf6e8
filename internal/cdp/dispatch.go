package cdp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neboloop/browserd/internal/backend"
)

// handlerFunc is one command implementation. page is non-nil exactly when
// the command was registered as target-addressed.
type handlerFunc func(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error)

type command struct {
	fn        handlerFunc
	needsPage bool
}

// registerHandlers builds the dispatch table. New protocol surface is added
// here, not by branching inside handlers.
func (s *Session) registerHandlers() {
	s.handlers = make(map[string]command)

	bare := func(method string, fn handlerFunc) {
		s.handlers[method] = command{fn: fn}
	}
	page := func(method string, fn handlerFunc) {
		s.handlers[method] = command{fn: fn, needsPage: true}
	}

	// Browser / Target
	bare("Browser.getVersion", s.browserGetVersion)
	bare("Browser.close", s.browserClose)
	bare("Target.createTarget", s.targetCreate)
	bare("Target.closeTarget", s.targetCloseTarget)
	bare("Target.getTargets", s.targetGetTargets)
	bare("Target.attachToTarget", s.targetAttach)
	bare("Target.getTargetInfo", s.targetGetInfo)
	bare("Target.setDiscoverTargets", s.targetSetDiscover)

	// Page
	page("Page.enable", s.noop)
	page("Page.disable", s.noop)
	page("Page.navigate", s.pageNavigate)
	page("Page.reload", s.pageReload)
	page("Page.bringToFront", s.pageBringToFront)
	page("Page.stopLoading", s.pageStopLoading)
	page("Page.setBypassCSP", s.pageSetBypassCSP)
	page("Page.getFrameTree", s.pageGetFrameTree)
	page("Page.getLayoutMetrics", s.pageGetLayoutMetrics)
	page("Page.captureScreenshot", s.pageCaptureScreenshot)
	page("Page.setContent", s.pageSetContent)
	page("Page.setDocumentContent", s.pageSetContent)
	page("Page.printToPDF", s.pagePrintToPDF)
	page("Page.addScriptToEvaluateOnNewDocument", s.pageAddScript)
	page("Page.removeScriptToEvaluateOnNewDocument", s.pageRemoveScript)
	page("Page.handleJavaScriptDialog", s.pageHandleDialog)
	page("Page.getNavigationHistory", s.pageGetNavigationHistory)
	page("Page.navigateToHistoryEntry", s.pageNavigateToHistoryEntry)

	// Runtime
	page("Runtime.enable", s.noop)
	page("Runtime.disable", s.noop)
	page("Runtime.evaluate", s.runtimeEvaluate)
	page("Runtime.callFunctionOn", s.runtimeCallFunctionOn)
	page("Runtime.getProperties", s.runtimeGetProperties)
	page("Runtime.releaseObject", s.runtimeReleaseObject)
	page("Runtime.releaseObjectGroup", s.runtimeReleaseObjectGroup)

	// DOM
	page("DOM.enable", s.noop)
	page("DOM.disable", s.noop)
	page("DOM.getDocument", s.domGetDocument)
	page("DOM.querySelector", s.domQuerySelector)
	page("DOM.querySelectorAll", s.domQuerySelectorAll)
	page("DOM.getOuterHTML", s.domGetOuterHTML)
	page("DOM.getAttributes", s.domGetAttributes)
	page("DOM.setAttributeValue", s.domSetAttributeValue)
	page("DOM.focus", s.domFocus)
	page("DOM.getBoxModel", s.domGetBoxModel)
	page("DOM.scrollIntoViewIfNeeded", s.domScrollIntoView)
	page("DOM.removeNode", s.domRemoveNode)
	page("DOM.setNodeValue", s.domSetNodeValue)
	page("DOM.setFileInputFiles", s.domSetFileInputFiles)

	// Input
	page("Input.dispatchMouseEvent", s.inputDispatchMouseEvent)
	page("Input.dispatchKeyEvent", s.inputDispatchKeyEvent)
	page("Input.insertText", s.inputInsertText)

	// Network
	page("Network.enable", s.noop)
	page("Network.disable", s.noop)
	page("Network.setCacheDisabled", s.networkSetCacheDisabled)
	page("Network.setExtraHTTPHeaders", s.networkSetExtraHTTPHeaders)
	page("Network.setCookie", s.networkSetCookie)
	page("Network.setCookies", s.networkSetCookies)
	page("Network.getCookies", s.networkGetCookies)
	page("Network.deleteCookies", s.networkDeleteCookies)
	page("Network.clearBrowserCookies", s.networkClearBrowserCookies)
	page("Network.setUserAgentOverride", s.networkSetUserAgentOverride)

	// Emulation
	page("Emulation.setDeviceMetricsOverride", s.emulationSetDeviceMetrics)
	page("Emulation.clearDeviceMetricsOverride", s.emulationClearDeviceMetrics)
	page("Emulation.setGeolocationOverride", s.emulationSetGeolocation)
	page("Emulation.clearGeolocationOverride", s.emulationClearGeolocation)
	page("Emulation.setTimezoneOverride", s.emulationSetTimezone)
	page("Emulation.setTouchEmulationEnabled", s.emulationSetTouch)
	page("Emulation.setEmulatedMedia", s.emulationSetEmulatedMedia)
	page("Emulation.setDefaultBackgroundColorOverride", s.emulationSetBackgroundColor)

	// Fetch
	page("Fetch.enable", s.fetchEnable)
	bare("Fetch.disable", s.fetchDisable)
	bare("Fetch.continueRequest", s.fetchContinueRequest)
	bare("Fetch.fulfillRequest", s.fetchFulfillRequest)
	bare("Fetch.failRequest", s.fetchFailRequest)
	bare("Fetch.getResponseBody", s.fetchGetResponseBody)
}

// handleFrame processes one inbound frame end to end: parse, dispatch,
// audit, reply. Unparseable frames are logged and dropped; there is no id
// to answer with.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	req, err := parseRequest(data)
	if err != nil {
		s.log.Warn("dropping unparseable frame", "error", err)
		return
	}

	start := time.Now()
	result, targetID, err := s.dispatch(ctx, req)

	code := 0
	if err != nil {
		code = errorInfo(err).Code
	}
	s.audit.logCommand(s.id, req.Method, targetID, time.Since(start), code)

	if err != nil {
		s.postEvents = nil
		s.replyError(req.ID, err)
		return
	}
	s.reply(req.ID, result)
	s.flushPostEvents()
}

// dispatch routes a parsed request through the lookup table. Events a
// handler emits are queued before the response, preserving the
// event-then-response order clients depend on.
func (s *Session) dispatch(ctx context.Context, req *Request) (any, string, error) {
	cmd, ok := s.handlers[req.Method]
	if !ok {
		return nil, "", methodNotFound(req.Method)
	}

	// targetId rides inside params for every addressable command.
	var addr struct {
		TargetID string `json:"targetId"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &addr)
	}

	targetID := addr.TargetID
	var page backend.Page
	if cmd.needsPage {
		resolved, resolvedID, err := s.resolveTarget(addr.TargetID)
		if err != nil {
			return nil, targetID, err
		}
		page = resolved
		targetID = resolvedID
	}

	result, err := cmd.fn(ctx, page, targetID, req.Params)
	return result, targetID, err
}

func (s *Session) noop(ctx context.Context, page backend.Page, targetID string, params json.RawMessage) (any, error) {
	return nil, nil
}
