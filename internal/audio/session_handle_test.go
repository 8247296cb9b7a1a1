package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrdinalHandleRoundTrip(t *testing.T) {
	pid, ordinal, ok := parseOrdinalHandle(ordinalHandle(4120, 2))
	require.True(t, ok)
	require.Equal(t, 4120, pid)
	require.Equal(t, 2, ordinal)

	for _, bad := range []string{"", "4120", "x/1", "4120/y", "4120/-1"} {
		_, _, ok := parseOrdinalHandle(bad)
		require.False(t, ok, bad)
	}
}

func TestSelectOwned(t *testing.T) {
	owners := []int{7, 42, 9, 42, 42}

	tests := []struct {
		name    string
		session Session
		want    []int
	}{
		{name: "first session of pid", session: Session{PID: 42, Handle: ordinalHandle(42, 0)}, want: []int{1}},
		{name: "third session of pid", session: Session{PID: 42, Handle: ordinalHandle(42, 2)}, want: []int{4}},
		{name: "ordinal past end", session: Session{PID: 42, Handle: ordinalHandle(42, 3)}, want: nil},
		{name: "handle for another pid", session: Session{PID: 9, Handle: ordinalHandle(42, 0)}, want: []int{2}},
		{name: "no handle", session: Session{PID: 42}, want: []int{1, 3, 4}},
		{name: "unknown pid", session: Session{PID: 5, Handle: ordinalHandle(5, 0)}, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, selectOwned(owners, tc.session))
		})
	}
}
