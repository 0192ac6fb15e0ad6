package chain

import (
	"sort"
)

// SignatureSet is a persistent set of signatures. Operations never modify the
// receiver; they return a new set, so a transaction swaps its set wholesale.
type SignatureSet struct {
	items map[Signature]struct{}
}

func NewSignatureSet(sigs ...Signature) SignatureSet {
	return SignatureSet{}.With(sigs...)
}

func (s SignatureSet) With(sigs ...Signature) SignatureSet {
	next := make(map[Signature]struct{}, len(s.items)+len(sigs))
	for sig := range s.items {
		next[sig] = struct{}{}
	}
	for _, sig := range sigs {
		if sig == "" {
			continue
		}
		next[sig] = struct{}{}
	}
	return SignatureSet{items: next}
}

func (s SignatureSet) Contains(sig Signature) bool {
	_, ok := s.items[sig]
	return ok
}

func (s SignatureSet) Len() int {
	return len(s.items)
}

// Slice returns the signatures sorted, so callers get a stable order.
func (s SignatureSet) Slice() []Signature {
	out := make([]Signature, 0, len(s.items))
	for sig := range s.items {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
