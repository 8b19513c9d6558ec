package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatrelay/balance"
	"chatrelay/blockdetect"
	"chatrelay/config"
	"chatrelay/models"
	"chatrelay/proxyclient"
	"chatrelay/storage"
	"chatrelay/utils"
)

// Engine is the hot core: generalizes the teacher's generateChatResponse /
// attemptOpenRouterRequest / processStreamingResponse trio onto a
// credential-registry-backed, proxy-aware retry/failover loop.
type Engine struct {
	credentials   *storage.CredentialStore
	usage         *storage.UsageStore
	selector      *KeySelector
	availability  *AvailabilityController
	blocks        *blockdetect.Detector
	proxies       *proxyclient.Selector
	balanceProbe  *balance.Probe
	directClient  *http.Client
	upstreamURL   string
}

func NewEngine(
	credentials *storage.CredentialStore,
	usage *storage.UsageStore,
	selector *KeySelector,
	availability *AvailabilityController,
	blocks *blockdetect.Detector,
	proxies *proxyclient.Selector,
	balanceProbe *balance.Probe,
) *Engine {
	settings := config.GetSettings()
	return &Engine{
		credentials:  credentials,
		usage:        usage,
		selector:     selector,
		availability: availability,
		blocks:       blocks,
		proxies:      proxies,
		balanceProbe: balanceProbe,
		directClient: &http.Client{Timeout: settings.UpstreamTimeout + 5*time.Second},
		upstreamURL:  config.UpstreamBaseURL + config.UpstreamChatCompletionsPath,
	}
}

type attemptKind int

const (
	outcomeSuccess attemptKind = iota
	outcomeSoftBlock
	outcomeFailure
)

type attemptResult struct {
	kind           attemptKind
	statusCode     int
	errMsg         string
	networkTrouble bool
	successDetail  string
	timedOut       bool
}

// lastFailure records the most recent failing attempt's detail, so Forward
// can report a gateway_timeout instead of a generic service_unavailable
// when credential/proxy rotation is exhausted because of upstream timeouts.
type lastFailure struct {
	errMsg   string
	timedOut bool
}

func (lf *lastFailure) errorType() string {
	if lf.timedOut {
		return models.ErrTypeGatewayTimeout
	}
	return models.ErrTypeServiceUnavailable
}

// Forward implements spec.md §4.7's public contract. disconnected is polled
// at every checkpoint named in the Cancellation paragraph.
func (e *Engine) Forward(ctx context.Context, body []byte, sink ResponseSink, disconnected func() bool) {
	if rec, err := e.blocks.Active(); err == nil && rec != nil {
		e.writeBlocked(sink, rec)
		return
	}

	var envelope models.ChatRequestEnvelope
	_ = json.Unmarshal(body, &envelope)
	streaming := envelope.IsStreaming()

	if disconnected() {
		return
	}

	cred, ok := e.selector.Current()
	if !ok {
		sink.WriteError(http.StatusServiceUnavailable, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "no usable credentials",
			Type:    models.ErrTypeServiceUnavailable,
			Reason:  "no usable credentials",
		}})
		return
	}

	var pendingRehabID uint
	var last lastFailure

	switchesLeft := config.MaxCredentialSwitchesPerRequest
	for switchesLeft > 0 {
		switchesLeft--

		if disconnected() {
			return
		}

		outcome, done := e.runCredential(ctx, cred, body, streaming, sink, disconnected, &last)
		if done {
			if outcome == outcomeSuccess && pendingRehabID != 0 && pendingRehabID != cred.ID && !disconnected() {
				e.rehabilitate(ctx, pendingRehabID)
				pendingRehabID = 0
			}
			return
		}

		// This credential was demoted (insufficient or error); remember it
		// for the "recover on next different success" rule, then rotate.
		pendingRehabID = cred.ID

		next, ok := e.selector.Advance()
		if !ok {
			sink.WriteError(http.StatusServiceUnavailable, models.ErrorResponse{Error: models.ErrorDetail{
				Message: last.errMsg,
				Type:    last.errorType(),
				Reason:  last.errMsg,
			}})
			return
		}
		cred = next
	}

	sink.WriteError(http.StatusServiceUnavailable, models.ErrorResponse{Error: models.ErrorDetail{
		Message: last.errMsg,
		Type:    last.errorType(),
		Reason:  last.errMsg,
	}})
}

// runCredential drives up to R+1 attempts against one credential. It
// returns (outcomeSuccess, true) on success (response already written),
// (_, true) when the request terminated for a reason unrelated to rotation
// (soft-block, disconnect), or (_, false) when the caller should rotate to
// the next credential.
func (e *Engine) runCredential(ctx context.Context, cred *storage.Credential, body []byte, streaming bool, sink ResponseSink, disconnected func() bool, last *lastFailure) (attemptKind, bool) {
	attemptsLeft := config.MaxAttemptsPerCredential + 1
	firstAttempt := true

	for attemptsLeft > 0 {
		attemptsLeft--

		if disconnected() {
			return outcomeFailure, true
		}

		client, usedProxy := e.clientForAttempt()
		result := e.doAttempt(ctx, cred, body, streaming, client, sink, disconnected)

		switch result.kind {
		case outcomeSuccess:
			_ = e.credentials.IncrementCalls(cred.ID)
			_ = e.availability.OnSuccess(cred)
			e.maybeAutoProbe(ctx, cred)
			if !disconnected() {
				detail := result.successDetail
				if detail == "" {
					detail = "success (streamed)"
				}
				_ = e.usage.Append(cred.ID, true, detail)
			}
			return outcomeSuccess, true

		case outcomeSoftBlock:
			_, _ = e.blocks.Record(result.errMsg)
			_ = e.usage.Append(cred.ID, false, "soft_block: "+result.errMsg)
			rec, _ := e.blocks.Active()
			e.writeBlocked(sink, rec)
			return outcomeSoftBlock, true

		default: // outcomeFailure
			last.errMsg = result.errMsg
			last.timedOut = result.timedOut
			detail := fmt.Sprintf("status=%d proxy_used=%v err=%s", result.statusCode, usedProxy, result.errMsg)
			_ = e.usage.Append(cred.ID, false, utils.Truncate(detail, 200))
			_ = e.availability.OnFailure(cred, result.errMsg)

			if firstAttempt && result.networkTrouble {
				if e.tryProxyFanOut(ctx, cred, body, streaming, sink, disconnected) {
					_ = e.credentials.IncrementCalls(cred.ID)
					_ = e.availability.OnSuccess(cred)
					if !disconnected() {
						_ = e.usage.Append(cred.ID, true, "success (proxy fan-out)")
					}
					return outcomeSuccess, true
				}
			}
			firstAttempt = false

			if disconnected() {
				return outcomeFailure, true
			}

			probe := e.balanceProbe.Do(ctx, cred.Secret)
			if probe.Ok {
				_ = e.availability.ApplyBalanceRule(cred, probe.Balance)
				_ = e.availability.Reevaluate(cred.ID)
				if probe.Balance != nil && *probe.Balance < config.InsufficientBalanceThreshold {
					return outcomeFailure, false
				}
			}

			if disconnected() {
				return outcomeFailure, true
			}

			if attemptsLeft > 0 {
				if !e.cooperativeSleep(ctx, config.RetryBackoff, disconnected) {
					return outcomeFailure, true
				}
				continue
			}

			return outcomeFailure, false
		}
	}
	return outcomeFailure, false
}

// tryProxyFanOut runs the Proxy Selector's fan-out on the first failing
// attempt for a credential, when the failure looked like network/IP
// trouble. On success it treats the response as this attempt's success
// (including streaming) and returns true.
func (e *Engine) tryProxyFanOut(ctx context.Context, cred *storage.Credential, body []byte, streaming bool, sink ResponseSink, disconnected func() bool) bool {
	var cancel context.CancelFunc
	attempt := func(attemptCtx context.Context, client *http.Client) (*http.Response, error) {
		reqCtx, c := context.WithTimeout(attemptCtx, config.GetSettings().UpstreamTimeout)
		cancel = c
		req, err := e.buildRequest(reqCtx, cred, body)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			cancel()
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return resp, nil
	}

	resp, _, allFailed, err := e.proxies.FanOut(ctx, attempt)
	if err != nil || allFailed || resp == nil {
		return false
	}

	if streaming {
		e.streamResponse(ctx, cancel, resp, sink, disconnected)
		return true
	}
	defer cancel()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	resp.Body.Close()
	sink.WriteJSON(resp.StatusCode, respBody)
	return true
}

func (e *Engine) clientForAttempt() (*http.Client, bool) {
	pinned, err := e.proxies.PinnedProxy()
	if err != nil || pinned == nil {
		return e.directClient, false
	}
	client, cerr := proxyclient.ClientFor(pinned)
	if cerr != nil {
		return e.directClient, false
	}
	return client, true
}

func (e *Engine) buildRequest(ctx context.Context, cred *storage.Credential, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Secret)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (e *Engine) doAttempt(ctx context.Context, cred *storage.Credential, body []byte, streaming bool, client *http.Client, sink ResponseSink, disconnected func() bool) attemptResult {
	reqCtx, cancel := context.WithTimeout(ctx, config.GetSettings().UpstreamTimeout)

	req, err := e.buildRequest(reqCtx, cred, body)
	if err != nil {
		cancel()
		return attemptResult{kind: outcomeFailure, errMsg: err.Error()}
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return attemptResult{
			kind:           outcomeFailure,
			errMsg:         err.Error(),
			networkTrouble: true,
			timedOut:       errors.Is(err, context.DeadlineExceeded),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if streaming {
			e.streamResponse(ctx, cancel, resp, sink, disconnected)
			return attemptResult{kind: outcomeSuccess, statusCode: resp.StatusCode}
		}
		defer cancel()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
		resp.Body.Close()
		sink.WriteJSON(resp.StatusCode, respBody)
		return attemptResult{kind: outcomeSuccess, statusCode: resp.StatusCode, successDetail: successSummary(respBody)}
	}

	defer cancel()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	if blocked, reason := blockdetect.Classify(resp.StatusCode, respBody); blocked {
		return attemptResult{kind: outcomeSoftBlock, statusCode: resp.StatusCode, errMsg: reason}
	}

	networkTrouble := resp.StatusCode >= 500 || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests
	return attemptResult{
		kind:           outcomeFailure,
		statusCode:     resp.StatusCode,
		errMsg:         utils.Truncate(string(respBody), 200),
		networkTrouble: networkTrouble,
	}
}

// streamResponse pipes the upstream body to the client line by line,
// flushing headers only once the first byte has arrived, generalizing the
// teacher's processStreamingResponse bufio.Reader + http.Flusher shape.
func (e *Engine) streamResponse(ctx context.Context, cancel context.CancelFunc, resp *http.Response, sink ResponseSink, disconnected func() bool) {
	defer cancel()
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	first, firstErr := reader.ReadBytes('\n')
	if disconnected() {
		return
	}

	// Nothing has reached the client yet, so a read failure before the
	// first byte is still reported as a plain JSON error.
	if len(first) == 0 && firstErr != nil && firstErr != io.EOF {
		sink.WriteError(http.StatusBadGateway, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "upstream stream failed before the first byte: " + firstErr.Error(),
			Type:    models.ErrTypeStreamError,
		}})
		return
	}

	sink.BeginStream(resp.StatusCode, resp.Header)
	if len(first) > 0 {
		if werr := sink.WriteChunk(first); werr != nil {
			return
		}
	}
	if firstErr != nil {
		e.endOrSurfaceStreamError(sink, firstErr)
		return
	}

	for {
		if disconnected() {
			return
		}
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if werr := sink.WriteChunk(line); werr != nil {
				return
			}
		}
		if err != nil {
			e.endOrSurfaceStreamError(sink, err)
			return
		}
	}
}

// endOrSurfaceStreamError closes out a stream whose read loop stopped
// because of err. io.EOF is the normal end of the upstream body; anything
// else (connection reset, timeout) is a mid-stream failure the client
// would otherwise see as a silently truncated stream, so it is surfaced as
// a stream_error SSE event instead.
func (e *Engine) endOrSurfaceStreamError(sink ResponseSink, err error) {
	if err == io.EOF {
		sink.EndStream()
		return
	}
	sink.WriteError(http.StatusOK, models.ErrorResponse{Error: models.ErrorDetail{
		Message: "upstream stream ended unexpectedly: " + err.Error(),
		Type:    models.ErrTypeStreamError,
	}})
}

// cooperativeSleep waits d, polled in 1s ticks against disconnected, per
// spec.md §9's cancellable-sleep design note. Returns false if the wait was
// cut short by disconnect or context cancellation.
func (e *Engine) cooperativeSleep(ctx context.Context, d time.Duration, disconnected func() bool) bool {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(config.RetryBackoffPoll)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if disconnected() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			continue
		}
	}
	return true
}

// maybeAutoProbe fires the async balance re-probe every N successful calls,
// per the AUTO_QUERY_BALANCE_AFTER_CALLS configuration knob.
func (e *Engine) maybeAutoProbe(ctx context.Context, cred *storage.Credential) {
	n := config.GetSettings().AutoQueryBalanceAfterCalls
	if n <= 0 {
		return
	}
	fresh, err := e.credentials.Get(cred.ID)
	if err != nil || fresh.CallCount == 0 || fresh.CallCount%int64(n) != 0 {
		return
	}
	go func() {
		probeCtx, cancel := context.WithTimeout(context.Background(), config.BalanceProbeTimeout)
		defer cancel()
		result := e.balanceProbe.Do(probeCtx, fresh.Secret)
		if result.Ok {
			_ = e.availability.ApplyBalanceRule(fresh, result.Balance)
			_ = e.availability.Reevaluate(fresh.ID)
		}
	}()
}

// rehabilitate implements the "recover previously-failing credential only
// when the next request succeeds on a different credential" rule: probe
// once, restore if balance recovered, otherwise leave it demoted. This is
// never run as a background sweep, per spec.md §9's open-question decision.
func (e *Engine) rehabilitate(ctx context.Context, credID uint) {
	cred, err := e.credentials.Get(credID)
	if err != nil {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, config.BalanceProbeTimeout)
	defer cancel()
	result := e.balanceProbe.Do(probeCtx, cred.Secret)
	if !result.Ok || result.Balance == nil {
		return
	}
	if *result.Balance >= config.InsufficientBalanceThreshold {
		_ = e.credentials.SetStatus(cred.ID, storage.StatusActive, "")
		_ = e.credentials.SetAvailability(cred.ID, true)
		_ = e.credentials.SetBalance(cred.ID, result.Balance)
		e.selector.Notify()
	} else {
		_ = e.credentials.SetBalance(cred.ID, result.Balance)
	}
}

func (e *Engine) writeBlocked(sink ResponseSink, rec *storage.BlockRecord) {
	if rec == nil {
		sink.WriteError(http.StatusServiceUnavailable, models.ErrorResponse{Error: models.ErrorDetail{
			Message: "temporarily rate-limited by upstream",
			Type:    models.ErrTypeIPBlocked,
		}})
		return
	}
	remaining := int(time.Until(rec.UnblockAt).Minutes())
	if remaining < 0 {
		remaining = 0
	}
	sink.WriteError(http.StatusServiceUnavailable, models.ErrorResponse{Error: models.ErrorDetail{
		Message:          "upstream is rate-limiting this process's IP, try later",
		Type:             models.ErrTypeIPBlocked,
		UnblockAt:        rec.UnblockAt.Format(time.RFC3339),
		RemainingMinutes: remaining + 1,
	}})
}

// HealthSnapshot answers GET /api/proxy/health.
func (e *Engine) HealthSnapshot() models.HealthResponse {
	rec, err := e.blocks.Active()
	if err != nil || rec == nil {
		return models.HealthResponse{Status: "ok", IPBlocked: false}
	}
	remaining := int(time.Until(rec.UnblockAt).Minutes())
	if remaining < 0 {
		remaining = 0
	}
	return models.HealthResponse{
		Status:    "degraded",
		IPBlocked: true,
		BlockInfo: &models.BlockInfo{
			UnblockAt:        rec.UnblockAt.Format(time.RFC3339),
			RemainingMinutes: remaining + 1,
			Reason:           rec.Reason,
		},
	}
}
