//go:build linux

package transport

import (
	"os"

	"golang.org/x/sys/unix"
)

// linuxAvailabilityProbe answers ReadAvailable via TIOCINQ, the same
// kernel-level tty input-queue ioctl Daedaluz-goserial uses directly
// instead of going through a serial library's abstraction. A second file
// descriptor on the same tty is sufficient: TIOCINQ reports the queue
// depth for the device, not per-descriptor state.
type linuxAvailabilityProbe struct {
	f *os.File
}

func newAvailabilityProbe(path string) (availabilityProbe, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}
	return &linuxAvailabilityProbe{f: f}, nil
}

func (p *linuxAvailabilityProbe) Available() (int, error) {
	return unix.IoctlGetInt(int(p.f.Fd()), unix.TIOCINQ)
}

func (p *linuxAvailabilityProbe) Close() error {
	return p.f.Close()
}
