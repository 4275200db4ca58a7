// Package engine defines the shared, closed error taxonomy used across every
// component of the storage core. Components wrap underlying causes with
// fmt.Errorf("...: %w", err) against one of the sentinels below so callers can
// classify failures with errors.Is regardless of which layer produced them.
package engine

import "errors"

var (
	// ErrBadPassphrase is returned by Identity.Unlock when the sealed record
	// fails to decrypt under the derived key. The cause (wrong KDF salt vs.
	// AEAD failure) is deliberately not distinguished.
	ErrBadPassphrase = errors.New("engine: bad passphrase")

	// ErrIdentityCorrupt indicates a sealed identity record that is
	// structurally malformed (short, bad version tag, truncated field).
	ErrIdentityCorrupt = errors.New("engine: identity record corrupt")

	// ErrCompression signals a decompression failure: unrecognized tag or
	// payload that does not decode under its tagged algorithm.
	ErrCompression = errors.New("engine: compression error")

	// ErrAuthFail covers AEAD and post-quantum signature verification
	// failures on a chunk envelope. Never distinguished from "wrong key".
	ErrAuthFail = errors.New("engine: authentication failed")

	// ErrInsufficientShards means fewer than K shards were available to
	// reconstruct a chunk envelope.
	ErrInsufficientShards = errors.New("engine: insufficient shards")

	// ErrInsufficientShares means fewer than T shares were available to
	// reconstruct some shard.
	ErrInsufficientShares = errors.New("engine: insufficient shares")

	// ErrNotFound means a content id or manifest path is absent.
	ErrNotFound = errors.New("engine: not found")

	// ErrShardConfigMismatch means candidate shards disagree on (K, M,
	// original_len) and cannot be decoded together.
	ErrShardConfigMismatch = errors.New("engine: shard config mismatch")

	// ErrShareSetMismatch means candidate shares disagree on (T, N,
	// entanglement proof) and must not be reconstructed together.
	ErrShareSetMismatch = errors.New("engine: share set mismatch")

	// ErrCorruptShard means the coding equations for a set of shards were
	// inconsistent — more shards were supplied than required and they
	// disagree on the reconstructed value.
	ErrCorruptShard = errors.New("engine: corrupt shard")

	// ErrCacheTooSmall means a block larger than the configured cache
	// budget was offered for a Cache pin.
	ErrCacheTooSmall = errors.New("engine: cache budget too small for block")

	// ErrTimeout means a network operation exceeded its deadline. Retryable.
	ErrTimeout = errors.New("engine: operation timed out")

	// ErrTransport means the routing layer itself reported an error.
	// Retryable.
	ErrTransport = errors.New("engine: transport error")

	// ErrCancelled means the caller's cancellation signal fired and the
	// engine stopped at the next chunk boundary.
	ErrCancelled = errors.New("engine: operation cancelled")

	// ErrInsufficientReplicas is FileEngine's terminal failure after
	// exhausting the retry budget trying to gather enough shards or shares
	// from the routing layer.
	ErrInsufficientReplicas = errors.New("engine: insufficient replicas available")

	// ErrInvalidArgs covers malformed CLI/API input caught before any
	// component is invoked: a content id that does not hex-decode, a
	// (K,M)/(T,N) pair that fails Validate, a missing required flag.
	ErrInvalidArgs = errors.New("engine: invalid arguments")
)

// Retryable reports whether err (or any error it wraps) is one of the
// network-stage failures the §7 retry policy applies to.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}

// ExitCode maps an error to the CLI exit codes from §6: 0 success, 1 generic
// failure, 2 invalid arguments, 3 identity/auth failure, 4 network
// unreachable, 5 integrity failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArgs):
		return 2
	case errors.Is(err, ErrBadPassphrase), errors.Is(err, ErrIdentityCorrupt), errors.Is(err, ErrAuthFail):
		return 3
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransport), errors.Is(err, ErrInsufficientReplicas):
		return 4
	case errors.Is(err, ErrInsufficientShards), errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrShardConfigMismatch), errors.Is(err, ErrShareSetMismatch), errors.Is(err, ErrCorruptShard):
		return 5
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCacheTooSmall), errors.Is(err, ErrCompression), errors.Is(err, ErrCancelled):
		return 1
	default:
		return 1
	}
}
