// Package blockdetect classifies failing upstream responses as a global
// soft-block and owns the BlockRecord purge loop, grounded on the teacher's
// defensive error-body handling in handleOpenRouterErrorResponse. The purge
// loop runs on a cron schedule rather than a bare ticker.
package blockdetect

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"chatrelay/config"
	"chatrelay/storage"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

const softBlockCode = 50603

// Detector classifies responses and owns the BlockRecord store.
type Detector struct {
	blocks *storage.BlockStore
}

func NewDetector(blocks *storage.BlockStore) *Detector {
	return &Detector{blocks: blocks}
}

// Classify recursively searches the response body for the case-insensitive
// substring "busy" or the numeric code 50603, with a visited-set to break
// cycles in re-entrant JSON structures (spec.md §9's design note).
func Classify(statusCode int, body []byte) (blocked bool, reason string) {
	if len(body) == 0 {
		return false, ""
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return searchText(string(body)), "upstream body contains busy/50603 marker"
	}

	visited := make(map[interface{}]bool)
	if found, snippet := searchValue(parsed, visited, 0); found {
		return true, snippet
	}
	return false, ""
}

const maxSearchDepth = 32

func searchValue(v interface{}, visited map[interface{}]bool, depth int) (bool, string) {
	if depth > maxSearchDepth {
		return false, ""
	}
	switch t := v.(type) {
	case string:
		if searchText(t) {
			return true, t
		}
		return false, ""
	case float64:
		if int(t) == softBlockCode {
			return true, strconv.Itoa(softBlockCode)
		}
		return false, ""
	case map[string]interface{}:
		ptr := fmt.Sprintf("%p", t)
		if visited[ptr] {
			return false, ""
		}
		visited[ptr] = true
		for _, val := range t {
			if found, snippet := searchValue(val, visited, depth+1); found {
				return true, snippet
			}
		}
		return false, ""
	case []interface{}:
		for _, item := range t {
			if found, snippet := searchValue(item, visited, depth+1); found {
				return true, snippet
			}
		}
		return false, ""
	default:
		return false, ""
	}
}

func searchText(s string) bool {
	return strings.Contains(strings.ToLower(s), "busy") || strings.Contains(s, strconv.Itoa(softBlockCode))
}

// Record inserts a BlockRecord with unblock = now + 30 minutes.
func (d *Detector) Record(reason string) (*storage.BlockRecord, error) {
	if Log != nil {
		Log.Warnf("blockdetect: recording soft-block, reason=%q", reason)
	}
	return d.blocks.Record(config.SoftBlockCooldown, reason)
}

// Active returns the currently active BlockRecord, if any.
func (d *Detector) Active() (*storage.BlockRecord, error) {
	return d.blocks.Active()
}

// RunPurgeLoop purges expired BlockRecords on a declarative cron schedule
// (every BlockPurgeInterval) until ctx is cancelled, grounded on the
// pack's evidence/retention.Scheduler's AddFunc/Start/Stop shape.
func (d *Detector) RunPurgeLoop(ctx context.Context) {
	c := cron.New()
	schedule := fmt.Sprintf("@every %s", config.BlockPurgeInterval)
	if _, err := c.AddFunc(schedule, d.purgeOnce); err != nil {
		if Log != nil {
			Log.Errorf("blockdetect: failed scheduling purge job %q: %v", schedule, err)
		}
		return
	}

	c.Start()
	if Log != nil {
		Log.Infof("blockdetect: purge loop scheduled (%s)", schedule)
	}

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	if Log != nil {
		Log.Info("blockdetect: purge loop stopped")
	}
}

func (d *Detector) purgeOnce() {
	n, err := d.blocks.PurgeExpired()
	if err != nil {
		if Log != nil {
			Log.Warnf("blockdetect: purge failed: %v", err)
		}
		return
	}
	if n > 0 && Log != nil {
		Log.Debugf("blockdetect: purged %d expired block record(s)", n)
	}
}
