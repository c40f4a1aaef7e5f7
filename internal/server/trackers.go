package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

const (
	userHeader   = "X-User-ID"
	defaultUser  = "default"
	maxUserIDLen = 128
)

const (
	defaultMaxTrackers = 10000
	defaultTrackerIdle = 30 * time.Minute
)

// trackers lazily restores one tracker per user. At most size trackers are
// held; the least recently used one is dropped first and any tracker idle for
// longer than idle is dropped. A dropped tracker is restored from the profile
// store on the user's next request.
type trackers struct {
	cache *expirable.LRU[string, *syllabus.Tracker]
	group singleflight.Group
	build func(ctx context.Context, userID string) (*syllabus.Tracker, error)
}

func newTrackers(size int, idle time.Duration, build func(ctx context.Context, userID string) (*syllabus.Tracker, error)) *trackers {
	if size <= 0 {
		size = defaultMaxTrackers
	}
	if idle <= 0 {
		idle = defaultTrackerIdle
	}
	return &trackers{
		cache: expirable.NewLRU[string, *syllabus.Tracker](size, nil, idle),
		build: build,
	}
}

// get returns the user's tracker, restoring it if needed. Concurrent requests
// for the same user share one restore; restores for different users run in
// parallel.
func (t *trackers) get(ctx context.Context, userID string) (*syllabus.Tracker, error) {
	if tr, ok := t.cache.Get(userID); ok {
		t.cache.Add(userID, tr) // refresh the idle deadline
		return tr, nil
	}

	v, err, _ := t.group.Do(userID, func() (any, error) {
		if tr, ok := t.cache.Get(userID); ok {
			return tr, nil
		}
		tr, err := t.build(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}
		t.cache.Add(userID, tr)
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*syllabus.Tracker), nil
}

// count reports how many trackers are held.
func (t *trackers) count() int {
	return t.cache.Len()
}

// userID extracts the caller from the X-User-ID header.
func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(userHeader))
	if id == "" {
		return defaultUser, nil
	}
	if len(id) > maxUserIDLen {
		return "", fmt.Errorf("%w: %s is longer than %d bytes", syllabus.ErrInvalidArgument, userHeader, maxUserIDLen)
	}
	if strings.ContainsFunc(id, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) {
		return "", fmt.Errorf("%w: %s contains whitespace", syllabus.ErrInvalidArgument, userHeader)
	}
	return id, nil
}
