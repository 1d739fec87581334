package streammux

import "strings"

// NextDelta computes the unseen suffix of current relative to previous.
//
// When current extends previous the delta is the appended tail. When the
// prefix relation does not hold the agent violated the snapshot protocol;
// the whole of current is returned with reset=true so the caller can log
// the anomaly. The consumer then sees a visible restart instead of silent
// corruption.
func NextDelta(previous, current string) (delta string, reset bool) {
	if strings.HasPrefix(current, previous) {
		return current[len(previous):], false
	}
	return current, true
}
