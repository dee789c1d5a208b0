package protocol

import (
	"crypto/rand"
	"errors"

	"github.com/arcsign/signcore/internal/crypto"
)

// ErrInvalidMatrixDigit is returned when a PinMatrixAck digit is outside
// the 1-9 matrix range.
var ErrInvalidMatrixDigit = errors.New("protocol: pin matrix digit out of range")

// PinMatrix is a freshly generated 3x3 digit permutation, regenerated on
// every PinMatrixRequest and kept in RAM only until the matching
// PinMatrixAck is processed: digits '1'-'9' are shuffled into nine
// slots, the host only ever sees matrix-relative positions, and the
// permutation is discarded the moment the ack is decoded.
type PinMatrix struct {
	perm [9]byte
}

// NewPinMatrix generates a fresh random permutation of digits 1-9.
func NewPinMatrix() (*PinMatrix, error) {
	pm := &PinMatrix{}
	for i := range pm.perm {
		pm.perm[i] = byte('1' + i)
	}
	if err := shuffle(pm.perm[:]); err != nil {
		return nil, err
	}
	return pm, nil
}

// shuffle performs a Fisher-Yates permutation using the crypto/rand
// entropy source, standing in for the device's hardware RNG.
func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

func randIndex(n int) (int, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	x := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return int(x % uint32(n)), nil
}

// Translate converts a single matrix-relative digit (1-9, top-left to
// bottom-right) back into the real digit it represents. The permutation
// itself is left intact until Discard is called — an ack is decoded in
// one pass, not digit-by-digit across separate device wake-ups.
func (pm *PinMatrix) Translate(matrixDigit byte) (byte, error) {
	if matrixDigit < '1' || matrixDigit > '9' {
		return 0, ErrInvalidMatrixDigit
	}
	return pm.perm[matrixDigit-'1'], nil
}

// Discard zeroises the permutation buffer, mirroring pinmatrix_done's
// memset immediately after the ack is decoded.
func (pm *PinMatrix) Discard() {
	crypto.Scrub(pm.perm[:])
}

// TranslateAll decodes a full PinMatrixAck digit string in one pass and
// discards the permutation afterward.
func (pm *PinMatrix) TranslateAll(matrixDigits string) (string, error) {
	defer pm.Discard()
	out := make([]byte, len(matrixDigits))
	for i := 0; i < len(matrixDigits); i++ {
		d, err := pm.Translate(matrixDigits[i])
		if err != nil {
			return "", err
		}
		out[i] = d
	}
	return string(out), nil
}
