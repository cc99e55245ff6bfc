package dedup

import (
	"hash/fnv"
	"strings"
)

// Signature is a MinHash signature over a document's word shingles. Two
// signatures of equal size estimate the Jaccard similarity of the
// underlying shingle sets.
type Signature []uint64

// mixSeed folds a per-hash seed into a base hash. Splitmix64 finalizer;
// cheap and well distributed, and fully deterministic across runs, which
// matters because signatures are persisted and compared across ingestions.
func mixSeed(h, seed uint64) uint64 {
	x := h ^ (seed * 0x9e3779b97f4a7c15)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Shingles splits normalized text into overlapping word k-shingles.
// Documents shorter than k words yield a single shingle of the whole text.
func Shingles(normalized string, k int) map[string]struct{} {
	words := strings.Fields(normalized)
	out := make(map[string]struct{})
	if len(words) == 0 {
		return out
	}
	if k < 1 {
		k = 1
	}
	if len(words) < k {
		out[strings.Join(words, " ")] = struct{}{}
		return out
	}
	for i := 0; i+k <= len(words); i++ {
		out[strings.Join(words[i:i+k], " ")] = struct{}{}
	}
	return out
}

// MinHash computes a signature of size n over the shingle set.
func MinHash(shingles map[string]struct{}, n int) Signature {
	sig := make(Signature, n)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for shingle := range shingles {
		h := fnv.New64a()
		h.Write([]byte(shingle))
		base := h.Sum64()
		for i := 0; i < n; i++ {
			v := mixSeed(base, uint64(i)+1)
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// EstimateSimilarity returns the fraction of agreeing signature slots,
// an unbiased estimate of Jaccard similarity. Signatures of different
// sizes are incomparable and score 0.
func EstimateSimilarity(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	agree := 0
	for i := range a {
		if a[i] == b[i] {
			agree++
		}
	}
	return float64(agree) / float64(len(a))
}

// ExactJaccard computes |a∩b| / |a∪b| over shingle sets. Used when both
// documents are at hand; signatures cover the stored-posting comparison.
func ExactJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for s := range a {
		if _, ok := b[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
