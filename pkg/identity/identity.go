package identity

import (
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

const (
	prefix       = "peer_"
	randomLength = 9
)

var (
	charset = slices.Concat(lo.LowerCaseLettersCharset, lo.NumbersCharset)

	lastMillis atomic.Int64

	now = time.Now
)

// PeerIdentity identifies this process to the remote peer. It is shown to the
// user and carried in every envelope, never persisted.
type PeerIdentity string

func (p PeerIdentity) String() string {
	return string(p)
}

// Generate returns a new identity of the form peer_<random>_<base36 millis>.
// The time component strictly increases within the process.
func Generate() PeerIdentity {
	random := lo.RandomString(randomLength, charset)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(random)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(nextMillis(), 36))

	return PeerIdentity(b.String())
}

// nextMillis returns the current unix millis, bumped past the last value handed
// out so two calls in the same millisecond never share a time component.
func nextMillis() int64 {
	for {
		last := lastMillis.Load()
		current := now().UnixMilli()
		if current <= last {
			current = last + 1
		}
		if lastMillis.CompareAndSwap(last, current) {
			return current
		}
	}
}
