package contact

import (
	"sync"
	"time"

	"ccsa/internal/clock"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultRateLimit  = 5
	DefaultRateWindow = 60 * time.Second
	maxTrackedClients = 10000
)

type window struct {
	start time.Time
	count int
}

// RateLimiter — счётчик попыток на IP с фиксированным окном.
// Записи LRU сами истекают через TTL окна.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  clock.Clock
	seen   *expirable.LRU[string, *window]
}

func NewRateLimiter(limit int, win time.Duration, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.System{}
	}
	return &RateLimiter{
		limit:  limit,
		window: win,
		clock:  clk,
		seen:   expirable.NewLRU[string, *window](maxTrackedClients, nil, win),
	}
}

// Allow учитывает попытку и сообщает, укладывается ли она в лимит.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.seen.Get(key)
	if !ok || now.Sub(w.start) >= l.window {
		l.seen.Add(key, &window{start: now, count: 1})
		return true
	}
	w.count++
	return w.count <= l.limit
}

// Len — число отслеживаемых клиентов.
func (l *RateLimiter) Len() int { return l.seen.Len() }
