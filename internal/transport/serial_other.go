//go:build !linux

package transport

// newAvailabilityProbe has no portable equivalent of TIOCINQ outside
// Linux; callers fall back to blocking reads with a timeout.
func newAvailabilityProbe(path string) (availabilityProbe, error) {
	return noopProbe{}, nil
}
