package party

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// AccountIDBytes is the size of an AccountID.
const AccountIDBytes = 32

// AccountID is the on-chain identity of a validator.
//
// It is opaque to the engine, and ordered bytewise.
type AccountID [AccountIDBytes]byte

// ParseAccountID reads a hex string, with or without a 0x prefix.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("party: invalid account id %q: %w", s, err)
	}
	if len(raw) != AccountIDBytes {
		return id, fmt.Errorf("party: account id must be %d bytes, got %d", AccountIDBytes, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Compare returns -1, 0 or 1 depending on the bytewise order of id and other.
func (id AccountID) Compare(other AccountID) int {
	return bytes.Compare(id[:], other[:])
}

// String returns the hex encoding of id.
func (id AccountID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns a prefix of the hex encoding, for logs.
func (id AccountID) Short() string {
	return hex.EncodeToString(id[:4])
}

// MarshalText implements encoding.TextMarshaler.
func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (id AccountID) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(id[:])
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (AccountID) Domain() string {
	return "AccountID"
}
