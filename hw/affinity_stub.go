//go:build !linux

package hw

// Pin is unsupported off Linux. A negative cpu is still a no-op.
func Pin(cpu int) error {
	if cpu < 0 {
		return nil
	}
	return ErrPinUnsupported
}
