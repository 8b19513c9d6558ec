package proxyclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/config"
	"chatrelay/storage"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// verifyEndpoints mirrors the teacher pack's ipify/ifconfig.me/icanhazip.com
// chain (Chinsusu-proxy-server-local/pkg/check.go's endpoints slice):
// primary then fallbacks, first success wins.
var verifyEndpoints = []string{
	"https://api.ipify.org?format=text",
	"https://ifconfig.me/ip",
	"https://icanhazip.com/",
}

// VerifyResult is the outcome of one reachability verification.
type VerifyResult struct {
	OK        bool
	ExitIP    string
	LatencyMs int
	Err       string
}

// Verify hits the IP-echo chain through p (or direct if p is nil), the
// admin "verify proxy" operation from spec.md §4.5.
func Verify(ctx context.Context, p *storage.OutboundProxy) VerifyResult {
	client, err := ClientFor(p)
	if err != nil {
		return VerifyResult{OK: false, Err: err.Error()}
	}

	var lastErr error
	for i, ep := range verifyEndpoints {
		timeout := config.ProxyVerifyPrimaryTimeout
		if i > 0 {
			timeout = config.ProxyVerifyFallbackTimeout
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()

		req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, ep, nil)
		req.Header.Set("User-Agent", "chatrelay-proxy-verify/1.0")
		resp, err := client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()

		if resp.StatusCode != http.StatusOK {
			lastErr = errors.New("non-200 from IP-echo endpoint: " + resp.Status)
			continue
		}

		return VerifyResult{
			OK:        true,
			ExitIP:    strings.TrimSpace(string(body)),
			LatencyMs: int(time.Since(start).Milliseconds()),
		}
	}

	msg := "all IP-echo endpoints failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return VerifyResult{OK: false, Err: msg}
}
