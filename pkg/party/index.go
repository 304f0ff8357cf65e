package party

import (
	"encoding/binary"
	"io"
	"sort"
	"strconv"

	"github.com/bridgeval/engine/pkg/math/curve"
)

// Index is the position of a participant within a ValidatorMap.
//
// Indices are dense and start at 1, so that they can be used directly as
// evaluation points of a secret sharing polynomial.
type Index uint32

// Scalar returns the corresponding curve.Scalar.
func (i Index) Scalar() *curve.Scalar {
	return curve.NewScalarUInt32(uint32(i))
}

// String returns a base 10 representation of i.
func (i Index) String() string {
	return strconv.FormatUint(uint64(i), 10)
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (i Index) WriteTo(w io.Writer) (int64, error) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(i))
	n, err := w.Write(buf[:])
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (Index) Domain() string {
	return "Index"
}

// IndexSlice is a sorted set of indices.
type IndexSlice []Index

// NewIndexSlice returns a sorted copy of indices.
func NewIndexSlice(indices []Index) IndexSlice {
	s := make(IndexSlice, len(indices))
	copy(s, indices)
	s.Sort()
	return s
}

func (s IndexSlice) Len() int           { return len(s) }
func (s IndexSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s IndexSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort is a convenience method: x.Sort() calls Sort(x).
func (s IndexSlice) Sort() { sort.Sort(s) }

// Valid returns true if s is strictly increasing and contains no zero index.
func (s IndexSlice) Valid() bool {
	for i := range s {
		if s[i] == 0 {
			return false
		}
		if i > 0 && s[i-1] >= s[i] {
			return false
		}
	}
	return true
}

// Contains returns true if s contains idx.
// Assumes that s is sorted.
func (s IndexSlice) Contains(idx Index) bool {
	_, ok := s.Search(idx)
	return ok
}

// Search returns the position of x in s.
func (s IndexSlice) Search(x Index) (int, bool) {
	pos := sort.Search(len(s), func(i int) bool { return s[i] >= x })
	if pos < len(s) && s[pos] == x {
		return pos, true
	}
	return 0, false
}

// Remove returns a new sorted slice with idx removed.
func (s IndexSlice) Remove(idx Index) IndexSlice {
	out := make(IndexSlice, 0, len(s))
	for _, i := range s {
		if i != idx {
			out = append(out, i)
		}
	}
	return out
}

// Copy returns an identical copy of s.
func (s IndexSlice) Copy() IndexSlice {
	a := make(IndexSlice, len(s))
	copy(a, s)
	return a
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (s IndexSlice) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(s)))
	n, err := w.Write(buf[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, i := range s {
		m, err := i.WriteTo(w)
		total += m
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (IndexSlice) Domain() string {
	return "IndexSlice"
}
