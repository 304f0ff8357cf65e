package party

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

var (
	// ErrEmptyParticipants is returned when a validator map is built from no accounts.
	ErrEmptyParticipants = errors.New("party: participant set is empty")
	// ErrDuplicateParticipant is returned when an account appears twice in a participant set.
	ErrDuplicateParticipant = errors.New("party: participant set contains duplicates")
	// ErrNotParticipant is returned when an account is looked up in a map it does not belong to.
	ErrNotParticipant = errors.New("party: account is not a participant")
	// ErrInvalidValidatorBytes is returned by UnmarshalBinary for a malformed encoding.
	ErrInvalidValidatorBytes = errors.New("party: invalid validator map encoding")
)

// ValidatorMap is the bijection between the AccountIDs of a ceremony and the
// indices 1..n used on the wire and as evaluation points.
//
// Indices are assigned by sorting the account ids in ascending byte order,
// so every engine derives the same map from the same participant set.
// A ValidatorMap is never modified after construction and may be shared freely.
type ValidatorMap struct {
	ids     []AccountID
	indices map[AccountID]Index
}

// NewValidatorMap builds the map for a participant set.
func NewValidatorMap(participants []AccountID) (*ValidatorMap, error) {
	if len(participants) == 0 {
		return nil, ErrEmptyParticipants
	}
	ids := make([]AccountID, len(participants))
	copy(ids, participants)
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	indices := make(map[AccountID]Index, len(ids))
	for i, id := range ids {
		if _, ok := indices[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
		}
		indices[id] = Index(i + 1)
	}
	return &ValidatorMap{ids: ids, indices: indices}, nil
}

// IndexOf returns the index of id, if id is a participant.
func (m *ValidatorMap) IndexOf(id AccountID) (Index, bool) {
	idx, ok := m.indices[id]
	return idx, ok
}

// IDOf returns the account of idx, if 1 ⩽ idx ⩽ n.
func (m *ValidatorMap) IDOf(idx Index) (AccountID, bool) {
	if idx == 0 || int(idx) > len(m.ids) {
		return AccountID{}, false
	}
	return m.ids[idx-1], true
}

// OwnIndex returns the index of self, failing if self is not a participant.
func (m *ValidatorMap) OwnIndex(self AccountID) (Index, error) {
	idx, ok := m.indices[self]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotParticipant, self)
	}
	return idx, nil
}

// Size returns the number of participants n.
func (m *ValidatorMap) Size() int {
	return len(m.ids)
}

// AccountIDs returns the sorted participants.
func (m *ValidatorMap) AccountIDs() []AccountID {
	out := make([]AccountID, len(m.ids))
	copy(out, m.ids)
	return out
}

// Indices returns 1..n.
func (m *ValidatorMap) Indices() IndexSlice {
	out := make(IndexSlice, len(m.ids))
	for i := range m.ids {
		out[i] = Index(i + 1)
	}
	return out
}

// IndicesOf maps a set of accounts to their sorted indices.
func (m *ValidatorMap) IndicesOf(ids []AccountID) (IndexSlice, error) {
	out := make(IndexSlice, 0, len(ids))
	seen := make(map[Index]bool, len(ids))
	for _, id := range ids {
		idx, ok := m.indices[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotParticipant, id)
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
		}
		seen[idx] = true
		out = append(out, idx)
	}
	out.Sort()
	return out, nil
}

// IDsOf maps indices back to accounts, skipping unknown indices. The result
// is sorted since the map preserves order.
func (m *ValidatorMap) IDsOf(indices []Index) []AccountID {
	sorted := NewIndexSlice(indices)
	out := make([]AccountID, 0, len(sorted))
	for _, idx := range sorted {
		if id, ok := m.IDOf(idx); ok {
			out = append(out, id)
		}
	}
	return out
}

// Equal returns true if both maps have the same participants.
func (m *ValidatorMap) Equal(other *ValidatorMap) bool {
	if len(m.ids) != len(other.ids) {
		return false
	}
	for i := range m.ids {
		if m.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *ValidatorMap) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, len(m.ids)*AccountIDBytes)
	for _, id := range m.ids {
		out = append(out, id[:]...)
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *ValidatorMap) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || len(data)%AccountIDBytes != 0 {
		return ErrInvalidValidatorBytes
	}
	ids := make([]AccountID, len(data)/AccountIDBytes)
	for i := range ids {
		copy(ids[i][:], data[i*AccountIDBytes:])
	}
	decoded, err := NewValidatorMap(ids)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (m *ValidatorMap) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, id := range m.ids {
		n, err := id.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*ValidatorMap) Domain() string {
	return "ValidatorMap"
}
