package id

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ruleMu   sync.Mutex
	ruleLast int64
)

// now is replaced in tests.
var now = time.Now

// Rule returns a new rule id: the current Unix time in milliseconds.
// Ids are strictly increasing, so two rules created within the same
// millisecond still get distinct ids.
func Rule() string {
	ruleMu.Lock()
	defer ruleMu.Unlock()

	ms := now().UnixMilli()
	if ms <= ruleLast {
		ms = ruleLast + 1
	}
	ruleLast = ms
	return strconv.FormatInt(ms, 10)
}

// Record returns a UUID v4 for a request log record.
func Record() string {
	return uuid.NewString()
}
