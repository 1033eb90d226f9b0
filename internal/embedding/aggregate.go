// Package embedding derives profile embeddings from feature embeddings.
//
// A profile embedding is never stored. It is the element-wise sum of the
// embeddings of every feature describing an entity, with shorter vectors
// zero-padded on the right up to the longest vector in the set. An entity with
// no features has no profile embedding (nil), which is distinct from a zero
// vector.
package embedding

// Accumulator sums embeddings incrementally.
//
// The same Accumulator backs the SQLite vec_sum aggregate and the in-process
// Sum, so both placements produce identical results for the same input order.
// The zero value is ready to use.
type Accumulator struct {
	sum  []float64
	seen bool
}

// Add folds v into the running sum, growing the sum with zeros when v is
// longer than anything seen so far.
func (a *Accumulator) Add(v []float64) {
	a.seen = true
	if len(v) > len(a.sum) {
		grown := make([]float64, len(v))
		copy(grown, a.sum)
		a.sum = grown
	}
	for i, x := range v {
		a.sum[i] += x
	}
}

// Remove subtracts v from the running sum. It is the inverse of Add for
// window evaluation; the sum keeps its length.
func (a *Accumulator) Remove(v []float64) {
	for i, x := range v {
		if i < len(a.sum) {
			a.sum[i] -= x
		}
	}
}

// Value returns a copy of the current sum, or nil if nothing was added.
func (a *Accumulator) Value() []float64 {
	if !a.seen {
		return nil
	}
	out := make([]float64, len(a.sum))
	copy(out, a.sum)
	return out
}

// Sum returns the zero-padded element-wise sum of vectors.
// It returns nil when no vectors are given.
func Sum(vectors ...[]float64) []float64 {
	var acc Accumulator
	for _, v := range vectors {
		acc.Add(v)
	}
	return acc.Value()
}
