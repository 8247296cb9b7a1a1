//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPulseProviderIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	provider := NewPulseProvider()
	defer provider.Close()

	devices, err := provider.Devices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	sessions, err := provider.ListSessions(ctx, DefaultDevice)
	require.NoError(t, err)
	for _, s := range sessions {
		require.NotEmpty(t, s.Handle)
	}
}
