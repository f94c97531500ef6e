package txerr

import (
	"strings"
	"time"

	"github.com/chesskite/chesskite-relay/internal/intent"
)

// Class buckets chain and queue errors by the retry/notification policy that
// applies to them. Classification is by message matching on the upstream
// error string; every caller consults this package rather than re-matching.
type Class int

const (
	// ClassTransient is the default: retried up to the cap, surfaced to the
	// user only after the cap.
	ClassTransient Class = iota

	// ClassVersionMismatch covers shared-object version conflicts. Retried,
	// never surfaced to the user.
	ClassVersionMismatch

	// ClassDuplicateReward covers chain-reported duplicate mints. Retried,
	// suppressed for MintBadge.
	ClassDuplicateReward

	// ClassAuthorization covers the badge module rejecting the sponsor as
	// minter. Standard retry/fail policy, plus a remediation hint in logs.
	ClassAuthorization
)

func (c Class) String() string {
	switch c {
	case ClassVersionMismatch:
		return "version_mismatch"
	case ClassDuplicateReward:
		return "duplicate_reward"
	case ClassAuthorization:
		return "authorization"
	default:
		return "transient"
	}
}

var versionMismatchMarkers = []string{
	"is not available for consumption",
	"current version",
	"non-retriable",
}

var duplicateMarkers = []string{
	"already exists",
	"already minted",
	"duplicate",
	"already locked",
}

// Classify buckets an error by its message.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())

	for _, m := range versionMismatchMarkers {
		if strings.Contains(msg, m) {
			return ClassVersionMismatch
		}
	}
	for _, m := range duplicateMarkers {
		if strings.Contains(msg, m) {
			return ClassDuplicateReward
		}
	}
	// MoveAbort code 1 out of the badge module: sponsor is not the
	// authorized minter.
	if strings.Contains(msg, "moveabort") && strings.Contains(msg, "mint_badge") && strings.Contains(msg, ", 1)") {
		return ClassAuthorization
	}
	return ClassTransient
}

// Suppressed reports whether a terminal failure must not be surfaced to the
// user: version mismatches of any kind, and duplicate-mint errors on
// MintBadge intents.
func Suppressed(kind intent.Kind, err error) bool {
	switch Classify(err) {
	case ClassVersionMismatch:
		return true
	case ClassDuplicateReward:
		return kind == intent.KindMintBadge
	default:
		return false
	}
}

// MintBadgeVersionMismatchBase is the reduced backoff base for MintBadge
// retries after a shared-object version mismatch.
const MintBadgeVersionMismatchBase = 2 * time.Second

// RetryBase picks the backoff base for a retry; the worker multiplies it by
// the attempt count.
func RetryBase(kind intent.Kind, err error, configured time.Duration) time.Duration {
	if kind == intent.KindMintBadge && Classify(err) == ClassVersionMismatch {
		return MintBadgeVersionMismatchBase
	}
	return configured
}
