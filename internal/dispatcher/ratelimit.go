package dispatcher

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	maxMessagesPerMinute     = 60
	maxTransportsPerEndpoint = 10

	// endpointCacheSize bounds how many remote endpoints we track at
	// once; the LRU evicts buckets for endpoints that have gone quiet.
	endpointCacheSize = 4096
)

// endpointLimiter enforces the per-remote-endpoint limits: a
// fixed-window message rate and a concurrent-transport cap.
type endpointLimiter struct {
	mu            sync.Mutex
	buckets       *lru.Cache[string, *endpointBucket]
	maxPerMinute  int
	maxTransports int
	now           func() time.Time
}

type endpointBucket struct {
	windowStart time.Time
	count       int
	transports  int
}

func newEndpointLimiter(maxPerMinute, maxTransports int) *endpointLimiter {
	buckets, err := lru.New[string, *endpointBucket](endpointCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &endpointLimiter{
		buckets:       buckets,
		maxPerMinute:  maxPerMinute,
		maxTransports: maxTransports,
		now:           time.Now,
	}
}

func (l *endpointLimiter) bucketFor(endpoint string) *endpointBucket {
	if b, ok := l.buckets.Get(endpoint); ok {
		return b
	}
	b := &endpointBucket{windowStart: l.now()}
	l.buckets.Add(endpoint, b)
	return b
}

// allowConnect reports whether endpoint may open another transport,
// counting it if so.
func (l *endpointLimiter) allowConnect(endpoint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketFor(endpoint)
	if b.transports >= l.maxTransports {
		return false
	}
	b.transports++
	return true
}

// onDisconnect releases one of endpoint's transport slots.
func (l *endpointLimiter) onDisconnect(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(endpoint); ok && b.transports > 0 {
		b.transports--
	}
}

// allowMessage reports whether endpoint may send another message this
// window, counting it if so.
func (l *endpointLimiter) allowMessage(endpoint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketFor(endpoint)

	now := l.now()
	if now.Sub(b.windowStart) >= time.Minute {
		b.windowStart = now
		b.count = 0
	}
	if b.count >= l.maxPerMinute {
		return false
	}
	b.count++
	return true
}
