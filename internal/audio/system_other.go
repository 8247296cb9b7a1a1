//go:build !windows

package audio

// SystemProvider is the Provider used on this platform.
type SystemProvider = PulseProvider

// NewSystemProvider returns the platform's audio session provider.
func NewSystemProvider() *SystemProvider {
	return NewPulseProvider()
}
