package kernel

import "bytes"

// LabelSize is the capacity of a task or mutex name, terminator included.
const LabelSize = 30

// Label is a fixed-size, NUL-terminated name. It only serves diagnostics
// and lookups; nothing in the scheduler keys on it.
type Label [LabelSize]byte

// NewLabel copies s into a label, truncating it to LabelSize-1 bytes.
func NewLabel(s string) Label {
	var l Label
	copy(l[:LabelSize-1], s)
	return l
}

func (l Label) String() string {
	n := bytes.IndexByte(l[:], 0)
	if n < 0 {
		n = len(l)
	}
	return string(l[:n])
}

// Equal reports whether the label holds s after the same truncation
// NewLabel applies.
func (l Label) Equal(s string) bool {
	return l == NewLabel(s)
}
