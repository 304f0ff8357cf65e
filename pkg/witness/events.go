package witness

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/bridgeval/engine/pkg/party"
	"github.com/pkg/errors"
)

// HexBytes is a byte string with a 0x-prefixed hex text form.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *HexBytes) UnmarshalText(text []byte) error {
	data, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return errors.Wrap(err, "witness: invalid hex")
	}
	*b = data
	return nil
}

// TxHash identifies a transaction on an external chain.
type TxHash [32]byte

// MarshalText implements encoding.TextMarshaler.
func (h TxHash) MarshalText() ([]byte, error) {
	return HexBytes(h[:]).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *TxHash) UnmarshalText(text []byte) error {
	var b HexBytes
	if err := b.UnmarshalText(text); err != nil {
		return err
	}
	if len(b) != len(h) {
		return errors.Errorf("witness: tx hash has %d bytes", len(b))
	}
	copy(h[:], b)
	return nil
}

// IsZero returns true for the zero hash.
func (h TxHash) IsZero() bool {
	return h == TxHash{}
}

// Event is an authorization event emitted by the state chain.
type Event interface {
	ceremonyID() uint64
	participants() []party.AccountID
}

// KeygenRequest asks the listed validators to generate a new aggregate key.
type KeygenRequest struct {
	CeremonyID   uint64            `json:"ceremony_id"`
	Participants []party.AccountID `json:"participants"`
}

func (e *KeygenRequest) ceremonyID() uint64               { return e.CeremonyID }
func (e *KeygenRequest) participants() []party.AccountID { return e.Participants }

// SigningRequest asks the listed validators to sign Payload with the key PublicKey.
type SigningRequest struct {
	CeremonyID   uint64            `json:"ceremony_id"`
	PublicKey    HexBytes          `json:"public_key"`
	Participants []party.AccountID `json:"participants"`
	Payload      HexBytes          `json:"payload"`
}

func (e *SigningRequest) ceremonyID() uint64               { return e.CeremonyID }
func (e *SigningRequest) participants() []party.AccountID { return e.Participants }

// Observation is an event seen on an external chain, which validators attest to
// on the state chain.
type Observation interface {
	// Extrinsic returns the state chain call attesting to the observation.
	Extrinsic() (method string, params []interface{})
	// Key identifies the observation, so that it is only submitted once.
	Key() string
	Validate() error
}

// Staked is a deposit into the stake manager contract.
type Staked struct {
	Chain             string          `json:"chain"`
	AccountID         party.AccountID `json:"account_id"`
	Amount            *big.Int        `json:"amount"`
	WithdrawalAddress HexBytes        `json:"withdrawal_address,omitempty"`
	TxHash            TxHash          `json:"tx_hash"`
}

func (o *Staked) Extrinsic() (string, []interface{}) {
	var withdrawal interface{}
	if len(o.WithdrawalAddress) > 0 {
		withdrawal = o.WithdrawalAddress
	}
	return "witness_staked", []interface{}{o.AccountID, o.Amount.String(), withdrawal, o.TxHash}
}

func (o *Staked) Key() string {
	return "staked/" + o.Chain + "/" + hex.EncodeToString(o.TxHash[:])
}

func (o *Staked) Validate() error {
	if o.Amount == nil || o.Amount.Sign() <= 0 {
		return errors.New("witness: staked amount must be positive")
	}
	if len(o.WithdrawalAddress) != 0 && len(o.WithdrawalAddress) != 20 {
		return errors.Errorf("witness: withdrawal address has %d bytes", len(o.WithdrawalAddress))
	}
	return validateTx(o.Chain, o.TxHash)
}

// Claimed is an executed claim of stake.
type Claimed struct {
	Chain     string          `json:"chain"`
	AccountID party.AccountID `json:"account_id"`
	Amount    *big.Int        `json:"amount"`
	TxHash    TxHash          `json:"tx_hash"`
}

func (o *Claimed) Extrinsic() (string, []interface{}) {
	return "witness_claimed", []interface{}{o.AccountID, o.Amount.String(), o.TxHash}
}

func (o *Claimed) Key() string {
	return "claimed/" + o.Chain + "/" + hex.EncodeToString(o.TxHash[:])
}

func (o *Claimed) Validate() error {
	if o.Amount == nil || o.Amount.Sign() <= 0 {
		return errors.New("witness: claimed amount must be positive")
	}
	return validateTx(o.Chain, o.TxHash)
}

// KeyChange is a rotation of the aggregate key controlling an external vault.
type KeyChange struct {
	Chain  string   `json:"chain"`
	OldKey HexBytes `json:"old_key"`
	NewKey HexBytes `json:"new_key"`
	TxHash TxHash   `json:"tx_hash"`
}

func (o *KeyChange) Extrinsic() (string, []interface{}) {
	return "witness_key_change", []interface{}{o.Chain, o.OldKey, o.NewKey, o.TxHash}
}

func (o *KeyChange) Key() string {
	return "key_change/" + o.Chain + "/" + hex.EncodeToString(o.TxHash[:])
}

func (o *KeyChange) Validate() error {
	if len(o.NewKey) == 0 {
		return errors.New("witness: key change without new key")
	}
	return validateTx(o.Chain, o.TxHash)
}

func validateTx(chain string, tx TxHash) error {
	if chain == "" {
		return errors.New("witness: missing chain")
	}
	if tx.IsZero() {
		return errors.New("witness: missing tx hash")
	}
	return nil
}
