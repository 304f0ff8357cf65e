package sign

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/internal/test"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/sample"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	zksch "github.com/bridgeval/engine/pkg/zk/sch"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeys(t *testing.T, n int, pl *pool.Pool) map[party.Index]*keygen.KeyShare {
	vmap := test.ValidatorMap(n)
	stages := make(map[party.Index]stage.Stage, n)
	for _, id := range test.AccountIDs(n) {
		s, err := keygen.Start(7, vmap, id, pl)
		require.NoError(t, err)
		idx, _ := vmap.IndexOf(id)
		stages[idx] = s
	}
	stages, err := test.RunStages(stages, keygen.ContentFactory, nil)
	require.NoError(t, err)

	shares := make(map[party.Index]*keygen.KeyShare, n)
	for idx, s := range stages {
		output, ok := s.(*stage.Output)
		require.True(t, ok, "keygen failed for %d", idx)
		shares[idx] = output.Result.(*keygen.KeyShare)
	}
	return shares
}

func startSigning(t *testing.T, shares map[party.Index]*keygen.KeyShare, signers party.IndexSlice, message []byte, pl *pool.Pool) map[party.Index]stage.Stage {
	stages := make(map[party.Index]stage.Stage, len(signers))
	for _, l := range signers {
		s, err := Start(8, shares[l], signers, message, pl)
		require.NoError(t, err)
		stages[l] = s
	}
	return stages
}

func checkSignature(t *testing.T, stages map[party.Index]stage.Stage, public *curve.Point, message []byte) {
	var first []byte
	for idx, s := range stages {
		output, ok := s.(*stage.Output)
		require.True(t, ok, "party %d did not finish: %T", idx, s)
		sig, ok := output.Result.(*Signature)
		require.True(t, ok)
		assert.True(t, sig.Verify(public, message), "signature of %d should verify", idx)
		assert.False(t, sig.Verify(public, []byte("other message")))

		data, err := sig.MarshalBinary()
		require.NoError(t, err)
		if first != nil {
			assert.True(t, bytes.Equal(first, data), "all signers should produce the same signature")
		}
		first = data
	}
}

func TestSign(t *testing.T) {
	pl := pool.NewPool(0)
	defer pl.TearDown()

	message := bytes.Repeat([]byte{0xAB}, 32)
	for _, tc := range []struct {
		n       int
		signers party.IndexSlice
	}{
		{1, party.IndexSlice{1}},
		{2, party.IndexSlice{1, 2}},
		{3, party.IndexSlice{1, 2, 3}},
		{4, party.IndexSlice{1, 3, 4}},
		{4, party.IndexSlice{1, 2, 3, 4}},
		{5, party.IndexSlice{2, 3, 4, 5}},
	} {
		shares := generateKeys(t, tc.n, pl)
		stages := startSigning(t, shares, tc.signers, message, pl)
		stages, err := test.RunStages(stages, ContentFactory, nil)
		require.NoError(t, err)
		checkSignature(t, stages, shares[1].PublicKey, message)
	}
}

func TestSign_TooFewSigners(t *testing.T) {
	shares := generateKeys(t, 4, nil)
	_, err := Start(1, shares[1], party.IndexSlice{1, 2}, []byte("m"), nil)
	assert.ErrorIs(t, err, ErrTooFewSigners)

	_, err = Start(1, shares[1], party.IndexSlice{2, 3, 4}, []byte("m"), nil)
	assert.Error(t, err, "own index must be a signer")

	_, err = Start(1, shares[1], party.IndexSlice{1, 2, 9}, []byte("m"), nil)
	assert.Error(t, err, "signers must be in the validator map")
}

func TestSign_InvalidResponse(t *testing.T) {
	shares := generateKeys(t, 3, nil)
	message := []byte("payload")
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, message, nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, _ party.Index) *stage.Message {
		if body, ok := msg.Content.(*message2); ok && msg.From == 2 {
			msg.Content = &message2{Z: body.Z.Clone().Add(curve.NewScalarUInt32(1))}
		}
		return msg
	})
	require.NoError(t, err)
	for _, idx := range []party.Index{1, 3} {
		abort, ok := stages[idx].(*stage.Abort)
		require.True(t, ok)
		assert.Equal(t, party.IndexSlice{2}, abort.Culprits)
		assert.ErrorIs(t, abort.Err, ErrInvalidResponse)
	}
}

func TestSign_MissingResponse(t *testing.T) {
	shares := generateKeys(t, 3, nil)
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, []byte("payload"), nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, _ party.Index) *stage.Message {
		if _, ok := msg.Content.(*message2); ok && msg.From == 3 {
			msg.Content = &message2{}
		}
		return msg
	})
	require.NoError(t, err)
	abort, ok := stages[1].(*stage.Abort)
	require.True(t, ok)
	assert.Equal(t, party.IndexSlice{3}, abort.Culprits)
}

func TestSign_InvalidNonce(t *testing.T) {
	shares := generateKeys(t, 3, nil)
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, []byte("payload"), nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, _ party.Index) *stage.Message {
		if body, ok := msg.Content.(*message0); ok && msg.From == 1 {
			msg.Content = &message0{D: curve.NewIdentityPoint(), E: body.E}
		}
		return msg
	})
	require.NoError(t, err)
	for _, idx := range []party.Index{2, 3} {
		abort, ok := stages[idx].(*stage.Abort)
		require.True(t, ok)
		assert.Equal(t, party.IndexSlice{1}, abort.Culprits)
		assert.ErrorIs(t, abort.Err, ErrInvalidNonce)
	}
}

// A signer sending a different, validly signed nonce commitment to one peer is
// exposed by the echo of that peer, and is the only one blamed.
func TestSign_EquivocatingNonce(t *testing.T) {
	shares := generateKeys(t, 3, nil)
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, []byte("payload"), nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, to party.Index) *stage.Message {
		if body, ok := msg.Content.(*message0); ok && msg.From == 3 && to == 2 {
			signer := stages[3].(*stage0)
			_, D := sample.ScalarPointPair(rand.Reader)
			sig := zksch.NewProof(rand.Reader, signer.commitmentHash(3, D, body.E), shares[3].PublicShares[3], shares[3].SecretShare)
			msg.Content = &message0{D: D, E: body.E, Sig: sig}
		}
		return msg
	})
	require.NoError(t, err)
	for _, idx := range []party.Index{1, 2} {
		abort, ok := stages[idx].(*stage.Abort)
		require.True(t, ok, "party %d should have aborted: %T", idx, stages[idx])
		assert.Equal(t, party.IndexSlice{3}, abort.Culprits)
		assert.ErrorIs(t, abort.Err, ErrInconsistentNonce)
	}
}

// A commitment whose signature does not match is replaced by the one echoed by
// the other signers, so the signing still succeeds.
func TestSign_UnsignedNonce(t *testing.T) {
	shares := generateKeys(t, 3, nil)
	message := []byte("payload")
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, message, nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, to party.Index) *stage.Message {
		if body, ok := msg.Content.(*message0); ok && msg.From == 3 && to == 1 {
			_, D := sample.ScalarPointPair(rand.Reader)
			msg.Content = &message0{D: D, E: body.E, Sig: body.Sig}
		}
		return msg
	})
	require.NoError(t, err)
	checkSignature(t, stages, shares[1].PublicKey, message)
}

// A signer echoing a forged commitment of another signer cannot get it blamed.
func TestSign_ForgedEcho(t *testing.T) {
	shares := generateKeys(t, 4, nil)
	message := []byte("payload")
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, message, nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, _ party.Index) *stage.Message {
		if body, ok := msg.Content.(*message1); ok && msg.From == 2 {
			echo := make(map[party.Index]*message0, len(body.Commitments))
			for l, c := range body.Commitments {
				echo[l] = c
			}
			_, D := sample.ScalarPointPair(rand.Reader)
			echo[1] = &message0{D: D, E: echo[1].E, Sig: echo[1].Sig}
			msg.Content = &message1{Commitments: echo}
		}
		return msg
	})
	require.NoError(t, err)
	checkSignature(t, stages, shares[1].PublicKey, message)
}

func TestSign_Silent(t *testing.T) {
	shares := generateKeys(t, 3, nil)
	stages := startSigning(t, shares, party.IndexSlice{1, 2, 3}, []byte("payload"), nil)
	stages, err := test.RunStages(stages, ContentFactory, func(msg *stage.Message, _ party.Index) *stage.Message {
		if _, ok := msg.Content.(*message2); ok && msg.From == 2 {
			return nil
		}
		return msg
	})
	require.NoError(t, err)
	assert.Equal(t, stage.Number(2), stages[1].Number())
	assert.Equal(t, party.IndexSlice{2}, stages[1].AwaitedParties())
}

func TestSelectSigners(t *testing.T) {
	signers, err := SelectSigners([]party.Index{5, 2, 4, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, party.IndexSlice{1, 2, 4}, signers)

	_, err = SelectSigners([]party.Index{1, 2}, 2)
	assert.ErrorIs(t, err, ErrTooFewSigners)

	_, err = SelectSigners([]party.Index{1, 1, 2}, 1)
	assert.Error(t, err)
}

func TestSignature_Binary(t *testing.T) {
	shares := generateKeys(t, 2, nil)
	message := []byte("payload")
	stages, err := test.RunStages(startSigning(t, shares, party.IndexSlice{1, 2}, message, nil), ContentFactory, nil)
	require.NoError(t, err)
	sig := stages[1].(*stage.Output).Result.(*Signature)

	data, err := sig.MarshalBinary()
	require.NoError(t, err)
	decoded := new(Signature)
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.True(t, decoded.Verify(shares[1].PublicKey, message))
	assert.Error(t, decoded.UnmarshalBinary(data[:10]))
}
