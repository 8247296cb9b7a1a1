package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// ordinalHandle names the n-th session a pid owns on a device, in the
// provider's enumeration order. Used where the backend exposes no stable
// per-stream id.
func ordinalHandle(pid, ordinal int) string {
	return fmt.Sprintf("%d/%d", pid, ordinal)
}

func parseOrdinalHandle(handle string) (pid, ordinal int, ok bool) {
	p, o, found := strings.Cut(handle, "/")
	if !found {
		return 0, 0, false
	}
	pid, err := strconv.Atoi(p)
	if err != nil {
		return 0, 0, false
	}
	ordinal, err = strconv.Atoi(o)
	if err != nil || ordinal < 0 {
		return 0, 0, false
	}
	return pid, ordinal, true
}

// selectOwned returns the indexes in owners that session targets. A session
// with an ordinal handle targets one entry; otherwise every entry its pid owns.
func selectOwned(owners []int, session Session) []int {
	want := -1
	if pid, ordinal, ok := parseOrdinalHandle(session.Handle); ok && pid == session.PID {
		want = ordinal
	}

	var picked []int
	seen := 0
	for i, pid := range owners {
		if pid != session.PID {
			continue
		}
		if want < 0 || seen == want {
			picked = append(picked, i)
		}
		seen++
	}
	return picked
}
