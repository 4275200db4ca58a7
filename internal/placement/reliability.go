package placement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reliability tracks per-peer latency and success-rate history so the read
// path can prefer "lower measured latency and higher historical success
// rate" peers (§4.G read policy step 2). When redisClient is non-nil the
// history is shared across engine processes via Redis hashes; otherwise it
// falls back to an in-process map, matching
// internal/crypto/keymanager.go-style optional-external-backend shape.
type Reliability struct {
	redisClient *redis.Client
	mu          sync.Mutex
	local       map[PeerID]*peerStats
}

type peerStats struct {
	successes   int64
	failures    int64
	latencyEWMA time.Duration
}

const latencyEWMAAlpha = 0.2

// NewReliability constructs a Reliability tracker. If redisAddr is empty,
// history is kept only in process memory.
func NewReliability(redisAddr string) *Reliability {
	r := &Reliability{local: make(map[PeerID]*peerStats)}
	if redisAddr != "" {
		r.redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return r
}

func redisKey(peer PeerID) string { return fmt.Sprintf("placement:peer:%s", peer) }

// RecordSuccess records a successful fetch from peer with the observed
// latency.
func (r *Reliability) RecordSuccess(ctx context.Context, peer PeerID, latency time.Duration) {
	if r.redisClient != nil {
		pipe := r.redisClient.TxPipeline()
		pipe.HIncrBy(ctx, redisKey(peer), "successes", 1)
		pipe.HSet(ctx, redisKey(peer), "latency_ms", latency.Milliseconds())
		_, _ = pipe.Exec(ctx) // best-effort: reliability tracking must never fail a fetch
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.statsLocked(peer)
	s.successes++
	if s.latencyEWMA == 0 {
		s.latencyEWMA = latency
	} else {
		s.latencyEWMA = time.Duration(latencyEWMAAlpha*float64(latency) + (1-latencyEWMAAlpha)*float64(s.latencyEWMA))
	}
}

// RecordFailure records a failed fetch or a reliability demerit (§4.G read
// policy step 3: "optionally record a reliability demerit against the
// offending peer").
func (r *Reliability) RecordFailure(ctx context.Context, peer PeerID) {
	if r.redisClient != nil {
		_ = r.redisClient.HIncrBy(ctx, redisKey(peer), "failures", 1).Err()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsLocked(peer).failures++
}

func (r *Reliability) statsLocked(peer PeerID) *peerStats {
	s, ok := r.local[peer]
	if !ok {
		s = &peerStats{}
		r.local[peer] = s
	}
	return s
}

// score combines success rate and inverse latency into a single ranking
// value; higher is better. Peers with no history score neutrally so newly
// discovered peers aren't starved of traffic.
func (r *Reliability) score(ctx context.Context, peer PeerID) float64 {
	var successes, failures, latencyMs int64
	if r.redisClient != nil {
		vals, err := r.redisClient.HGetAll(ctx, redisKey(peer)).Result()
		if err == nil {
			successes = parseInt64(vals["successes"])
			failures = parseInt64(vals["failures"])
			latencyMs = parseInt64(vals["latency_ms"])
		}
	} else {
		r.mu.Lock()
		if s, ok := r.local[peer]; ok {
			successes = s.successes
			failures = s.failures
			latencyMs = s.latencyEWMA.Milliseconds()
		}
		r.mu.Unlock()
	}

	total := successes + failures
	if total == 0 {
		return 0
	}
	successRate := float64(successes) / float64(total)
	latencyPenalty := float64(latencyMs) / 1000.0
	return successRate - 0.01*latencyPenalty
}

func parseInt64(s string) int64 {
	var v int64
	_, _ = fmt.Sscanf(s, "%d", &v)
	return v
}

// Rank sorts peers by score, descending, stable on ties so callers get a
// deterministic preference order among peers with identical history.
func (r *Reliability) Rank(ctx context.Context, peers []PeerID) []PeerID {
	ranked := make([]PeerID, len(peers))
	copy(ranked, peers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return r.score(ctx, ranked[i]) > r.score(ctx, ranked[j])
	})
	return ranked
}

// Close releases the Redis connection, if any.
func (r *Reliability) Close() error {
	if r.redisClient != nil {
		return r.redisClient.Close()
	}
	return nil
}
