package validity

import (
	"fmt"

	"github.com/robotalks/nodeos/pkg/store"
)

// Magic marks an intact application image, the second byte holds its
// complement.
const (
	Magic           byte = 0x55
	MagicComplement      = ^Magic
)

// ApplicationValidity is the persisted validity attestation.
type ApplicationValidity struct {
	Magic1 byte
	Magic2 byte
	valid  bool
}

// FromStore reads the magic pair. A read error yields an invalid result
// together with the error.
func FromStore(st *store.Store) (ApplicationValidity, error) {
	m1, m2, err := st.Magic()
	if err != nil {
		return ApplicationValidity{}, err
	}
	return ApplicationValidity{Magic1: m1, Magic2: m2, valid: magicValid(m1, m2)}, nil
}

// Valid reports whether the pair attests a valid image.
func (v ApplicationValidity) Valid() bool {
	return v.valid
}

// String implements fmt.Stringer.
func (v ApplicationValidity) String() string {
	return fmt.Sprintf("magic=(0x%02x,0x%02x) valid=%v", v.Magic1, v.Magic2, v.valid)
}

func magicValid(m1, m2 byte) bool {
	return m1 == Magic && m2 == MagicComplement
}

// ValidationError reports why the application is not valid.
type ValidationError struct {
	Reason string
	Err    error
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "validation failed, " + e.Reason + ": " + e.Err.Error()
	}
	return "validation failed, " + e.Reason
}

// Unwrap returns the cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
