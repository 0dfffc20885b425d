// Package record implements the engine's diagnostic and memoization
// records: FailRecord (C2), RegTransitivityRecord (C3), and
// AdjustRetRecord (C4) from spec.md §3. Grounded closely on
// ChainingEngine.cpp's FailRecord/RegTransitivityRecord/AdjustRetRecord
// sections (lines 28-217), translated from C-style fixed arrays and
// manual vector scans into Go maps/slices, with golang.org/x/exp/slices
// for the transitivity record's bucket lookups.
package record

// FailRecord captures why the last search at a given point failed.
type FailRecord struct {
	maxLen         bool
	noValidPadding bool
	modifiedReg    map[int]bool
	badBytes       map[byte]bool
}

// NewFailRecord returns an empty FailRecord.
func NewFailRecord() *FailRecord {
	return &FailRecord{modifiedReg: map[int]bool{}, badBytes: map[byte]bool{}}
}

func (f *FailRecord) MaxLen() bool         { return f.maxLen }
func (f *FailRecord) NoValidPadding() bool { return f.noValidPadding }
func (f *FailRecord) ModifiedReg(reg int) bool {
	return f.modifiedReg[reg]
}
func (f *FailRecord) BadBytes() map[byte]bool { return f.badBytes }

func (f *FailRecord) SetMaxLen(v bool)         { f.maxLen = v }
func (f *FailRecord) SetNoValidPadding(v bool) { f.noValidPadding = v }
func (f *FailRecord) AddModifiedReg(reg int)   { f.modifiedReg[reg] = true }
func (f *FailRecord) AddBadByte(b byte)        { f.badBytes[b] = true }

// CopyFrom overwrites f's contents with a copy of other's.
func (f *FailRecord) CopyFrom(other *FailRecord) {
	f.maxLen = other.maxLen
	f.noValidPadding = other.noValidPadding
	f.modifiedReg = make(map[int]bool, len(other.modifiedReg))
	for k, v := range other.modifiedReg {
		f.modifiedReg[k] = v
	}
	f.badBytes = make(map[byte]bool, len(other.badBytes))
	for k, v := range other.badBytes {
		f.badBytes[k] = v
	}
}

// Clone returns an independent copy.
func (f *FailRecord) Clone() *FailRecord {
	cp := NewFailRecord()
	cp.CopyFrom(f)
	return cp
}

// FailType tags the proximate cause of a search failure (spec.md §7).
type FailType int

const (
	FailNone FailType = iota
	FailLMax
	FailNoGadget
	FailNoValidPadding
	FailOther
)

// String returns the failure cause's name, as printed in diagnostics.
func (t FailType) String() string {
	names := [...]string{"none", "lmax", "no_gadget", "no_valid_padding", "other"}
	if t < 0 || int(t) >= len(names) {
		return "unknown"
	}
	return names[t]
}
