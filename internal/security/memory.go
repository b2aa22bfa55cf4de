package security

import (
	"crypto/subtle"
)

// Wipe zeroes a byte slice and nils it out. Export payloads hold plaintext
// secrets, so buffers are wiped once parsed or written.
// This should be called via defer to ensure cleanup.
func Wipe(data *[]byte) {
	if data == nil || *data == nil {
		return
	}
	b := *data
	for i := range b {
		b[i] = 0
	}
	// Second pass through subtle so the stores are not elided.
	if len(b) > 0 {
		subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	}
	*data = nil
}
