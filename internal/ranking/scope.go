package ranking

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/brightsteps/progression/internal/domain"
)

// ScopeGlobal ranks every user.
const ScopeGlobal = "global"

const friendlyPrefix = "friendly-"

// Scope identifies a leaderboard partition.
type Scope struct {
	Name   string
	Global bool
	Bucket int
}

// Includes reports whether userID belongs to the scope.
func (s Scope) Includes(userID string, buckets int) bool {
	return s.Global || BucketFor(userID, buckets) == s.Bucket
}

// BucketFor places userID in a stable peer bucket in [0, buckets).
func BucketFor(userID string, buckets int) int {
	if buckets < 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(buckets))
}

// FriendlyScope returns the name of the peer scope userID ranks in.
func FriendlyScope(userID string, buckets int) string {
	return friendlyPrefix + strconv.Itoa(BucketFor(userID, buckets))
}

// ParseScope validates a scope name. An empty name means global.
func ParseScope(name string, buckets int) (Scope, error) {
	if name == "" || name == ScopeGlobal {
		return Scope{Name: ScopeGlobal, Global: true}, nil
	}
	raw, ok := strings.CutPrefix(name, friendlyPrefix)
	if !ok {
		return Scope{}, domain.ErrValidation(fmt.Sprintf("unknown leaderboard scope %q", name))
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n >= buckets {
		return Scope{}, domain.ErrValidation(fmt.Sprintf("leaderboard scope %q out of range (0..%d)", name, buckets-1))
	}
	return Scope{Name: friendlyPrefix + strconv.Itoa(n), Bucket: n}, nil
}

// AllScopes lists the global scope followed by every friendly bucket.
func AllScopes(buckets int) []Scope {
	out := []Scope{{Name: ScopeGlobal, Global: true}}
	for b := 0; b < buckets; b++ {
		out = append(out, Scope{Name: friendlyPrefix + strconv.Itoa(b), Bucket: b})
	}
	return out
}
