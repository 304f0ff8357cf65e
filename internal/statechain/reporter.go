package statechain

import (
	"context"

	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/witness"
)

// The result argument of the report extrinsics is either the produced bytes
// or the validators to blame.
type successOutcome struct {
	Success witness.HexBytes `json:"success"`
}

type failureOutcome struct {
	Failure []party.AccountID `json:"failure"`
}

func newOutcome(result []byte, blamed []party.AccountID) interface{} {
	if result != nil {
		return &successOutcome{Success: result}
	}
	if blamed == nil {
		blamed = []party.AccountID{}
	}
	return &failureOutcome{Failure: blamed}
}

// ReportKeygenOutcome implements ceremony.Reporter.
func (c *Client) ReportKeygenOutcome(ctx context.Context, ceremonyID uint64, publicKey []byte, blamed []party.AccountID) error {
	return c.SubmitExtrinsic(ctx, "report_keygen_outcome", ceremonyID, newOutcome(publicKey, blamed))
}

// ReportSigningOutcome implements ceremony.Reporter.
func (c *Client) ReportSigningOutcome(ctx context.Context, ceremonyID uint64, signature []byte, blamed []party.AccountID) error {
	return c.SubmitExtrinsic(ctx, "report_signing_outcome", ceremonyID, newOutcome(signature, blamed))
}
