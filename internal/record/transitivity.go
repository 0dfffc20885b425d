package record

import (
	"golang.org/x/exp/slices"

	"github.com/subfortress/ropforge/internal/constraint"
	"github.com/subfortress/ropforge/internal/gadget"
)

// maxSignaturesPerQuery bounds each bucket's antichain length, per
// spec.md §3 ("Each list is bounded (e.g. ≤8 entries)").
const maxSignaturesPerQuery = 8

// addSubBuckets and mulDivBuckets are the fixed constant enumerations
// spec.md §3 pins exactly (copied from ChainingEngine.cpp's
// record_cst_list_addsub/record_cst_list_muldiv, including the source's
// 4092 rather than 4096 in the last slot).
var addSubBuckets = [13]int64{-32, -16, -8, -4, -2, -1, 0, 1, 2, 4, 8, 16, 32}
var mulDivBuckets = [13]int64{2, 3, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4092}

func bucketIndex(op gadget.Binop, cst int64) (int, bool) {
	switch op {
	case gadget.ADD, gadget.SUB:
		if i := slices.Index(addSubBuckets[:], cst); i >= 0 {
			return i, true
		}
	case gadget.MUL, gadget.DIV:
		if i := slices.Index(mulDivBuckets[:], cst); i >= 0 {
			return i, true
		}
	}
	return 0, false
}

type transKey struct {
	destReg, srcReg int
	op              gadget.Binop
	bucket          int
}

// RegTransitivityRecord memoizes, for `r_d ← r_s op c` under a constraint
// signature, that no gadget chain realizes it. It is a monotone,
// append-only cache shared across an engine's lifetime (spec.md §5):
// every insertion either collapses the bucket's antichain or extends it,
// and a hit under signature s remains a hit under every s' implied by s.
type RegTransitivityRecord struct {
	buckets map[transKey][]constraint.Signature
}

// NewRegTransitivityRecord returns an empty record.
func NewRegTransitivityRecord() *RegTransitivityRecord {
	return &RegTransitivityRecord{buckets: map[transKey][]constraint.Signature{}}
}

// AddFail records that `destReg ← srcReg op cst` was found impossible
// under c's current signature. Only ADD/SUB/MUL/DIV are memoized, per
// spec.md §3; other ops and out-of-enumeration constants are no-ops.
func (r *RegTransitivityRecord) AddFail(destReg, srcReg int, op gadget.Binop, cst int64, c *constraint.Constraint) {
	bucket, ok := bucketIndex(op, cst)
	if !ok {
		return
	}
	key := transKey{destReg, srcReg, op, bucket}
	sig := c.Signature()
	list := r.buckets[key]

	added, already := false, false
	for i, s := range list {
		if s.Implies(sig) {
			// sig is stronger (s ⊑ sig): sig is already implied impossible.
			already = true
			break
		}
		if sig.Implies(s) {
			// sig is weaker: replace the stronger entry with the weaker one.
			list[i] = sig
			added = true
		}
	}
	if already {
		return
	}
	if !added && len(list) < maxSignaturesPerQuery {
		list = append(list, sig)
	}
	r.buckets[key] = list
}

// IsImpossible reports whether `destReg ← srcReg op cst` is known
// impossible under c's current signature.
func (r *RegTransitivityRecord) IsImpossible(destReg, srcReg int, op gadget.Binop, cst int64, c *constraint.Constraint) bool {
	bucket, ok := bucketIndex(op, cst)
	if !ok {
		return false
	}
	key := transKey{destReg, srcReg, op, bucket}
	sig := c.Signature()
	for _, s := range r.buckets[key] {
		if s.Implies(sig) {
			return true
		}
	}
	return false
}
