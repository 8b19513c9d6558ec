package blockdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFindsBusyInTopLevelMessage(t *testing.T) {
	body := []byte(`{"error":{"message":"server is busy, please retry"}}`)
	blocked, reason := Classify(429, body)
	assert.True(t, blocked)
	assert.Contains(t, reason, "busy")
}

func TestClassifyFindsNumericCodeNested(t *testing.T) {
	body := []byte(`{"error":{"code":50603,"details":{"upstream":["ok","fine"]}}}`)
	blocked, reason := Classify(503, body)
	assert.True(t, blocked)
	assert.Equal(t, "50603", reason)
}

func TestClassifyIgnoresUnrelatedErrors(t *testing.T) {
	body := []byte(`{"error":{"message":"invalid api key","code":401}}`)
	blocked, _ := Classify(401, body)
	assert.False(t, blocked)
}

func TestClassifyFallsBackToPlainTextOnUnparseableBody(t *testing.T) {
	blocked, _ := Classify(503, []byte("upstream temporarily busy, slow down"))
	assert.True(t, blocked)

	blocked, _ = Classify(503, []byte("not json and not relevant either"))
	assert.False(t, blocked)
}

func TestClassifyEmptyBodyNeverBlocks(t *testing.T) {
	blocked, reason := Classify(500, nil)
	assert.False(t, blocked)
	assert.Empty(t, reason)
}

func TestClassifyRespectsMaxSearchDepth(t *testing.T) {
	// Build a deeply nested object whose "busy" marker sits past the
	// search depth limit; it must not be found.
	body := []byte(`{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":` +
		`{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":` +
		`{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":{"a":` +
		`{"a":{"a":{"a":{"a":"busy"}}}}}}}}}}}}}}}}}}}}}}}}}}}}}}}}}}`)
	blocked, _ := Classify(503, body)
	assert.False(t, blocked)
}
