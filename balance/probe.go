// Package balance calls the upstream user-info endpoint to learn a
// credential's remaining balance, the way the teacher's healthcheck package
// dedicates a short-timeout http.Client to a side-check outside the hot path.
package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chatrelay/config"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// Result is the outcome of a single probe; it never carries an error value
// the caller must check — every fault collapses into Ok/Balance/Message.
type Result struct {
	Ok      bool
	Balance *float64
	Message string
}

// Probe issues GET {upstreamBase}/user/info with the given secret.
type Probe struct {
	client *http.Client
}

func NewProbe() *Probe {
	return &Probe{
		client: &http.Client{Timeout: config.BalanceProbeTimeout},
	}
}

type userInfoEnvelope struct {
	Data struct {
		Balance      *float64 `json:"balance"`
		TotalBalance *float64 `json:"totalBalance"`
	} `json:"data"`
	Balance      *float64 `json:"balance"`
	TotalBalance *float64 `json:"totalBalance"`
}

// Do performs the probe. It never panics or returns an error; all faults
// are reported through the returned Result.
func (p *Probe) Do(ctx context.Context, secret string) Result {
	reqCtx, cancel := context.WithTimeout(ctx, config.BalanceProbeTimeout)
	defer cancel()

	url := config.UpstreamBaseURL + config.UpstreamUserInfoPath
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Ok: false, Message: fmt.Sprintf("balance probe: build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := p.client.Do(req)
	if err != nil {
		if Log != nil {
			Log.Warnf("balance probe: request failed: %v", err)
		}
		return Result{Ok: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		zero := 0.0
		return Result{Ok: true, Balance: &zero, Message: "invalid or out of funds"}
	case resp.StatusCode >= 500:
		return Result{Ok: false, Message: fmt.Sprintf("upstream %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Result{Ok: false, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var envelope userInfoEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{Ok: false, Message: fmt.Sprintf("parse failure: %v", err)}
	}

	balance := envelope.Data.Balance
	if balance == nil {
		balance = envelope.Data.TotalBalance
	}
	if balance == nil {
		balance = envelope.Balance
	}
	if balance == nil {
		balance = envelope.TotalBalance
	}
	if balance == nil {
		return Result{Ok: false, Message: "response had no balance field"}
	}

	return Result{Ok: true, Balance: balance, Message: "ok"}
}
