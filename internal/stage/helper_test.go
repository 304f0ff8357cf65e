package stage_test

import (
	"testing"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/internal/test"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHelper(t *testing.T) {
	N := 7
	T := 4
	vmap := test.ValidatorMap(N)
	all := vmap.Indices()
	tests := []struct {
		name      string
		selfIndex party.Index
		parties   []party.Index
		threshold int
		vmap      *party.ValidatorMap
		wantErr   bool
	}{
		{"-1 t", 1, all, -1, vmap, true},
		{"threshold N", 1, all, N, vmap, true},
		{"no validator map", 1, all, T, nil, true},
		{"self not included", 1, all[1:], T, vmap, true},
		{"zero index", 1, append(party.IndexSlice{0}, all...), T, vmap, true},
		{"duplicate index", 1, append(all.Copy(), 2), T, vmap, true},
		{"index outside map", 1, append(all.Copy(), party.Index(N+1)), T, vmap, true},
		{"empty", 1, nil, T, vmap, true},
		{"all", 1, all, T, vmap, false},
		{"unsorted subset", 3, []party.Index{5, 3, 1}, T, vmap, false},
		{"threshold 0", 1, all, 0, vmap, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := stage.NewHelper(stage.Info{
				ProtocolID:       "test",
				FinalStageNumber: 2,
				CeremonyID:       1,
				SelfIndex:        tt.selfIndex,
				Parties:          tt.parties,
				ValidatorMap:     tt.vmap,
				Threshold:        tt.threshold,
			}, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, h.Parties().Valid())
			assert.False(t, h.OtherParties().Contains(tt.selfIndex))
			assert.Len(t, h.OtherParties(), len(tt.parties)-1)
		})
	}
}

func TestHelper_SSID(t *testing.T) {
	vmap := test.ValidatorMap(3)
	newHelper := func(ceremonyID uint64, protocol string) *stage.Helper {
		h, err := stage.NewHelper(stage.Info{
			ProtocolID:   protocol,
			CeremonyID:   ceremonyID,
			SelfIndex:    1,
			Parties:      vmap.Indices(),
			ValidatorMap: vmap,
			Threshold:    2,
		}, nil)
		require.NoError(t, err)
		return h
	}
	assert.Equal(t, newHelper(1, "a").SSID(), newHelper(1, "a").SSID())
	assert.NotEqual(t, newHelper(1, "a").SSID(), newHelper(2, "a").SSID())
	assert.NotEqual(t, newHelper(1, "a").SSID(), newHelper(1, "b").SSID())

	h := newHelper(1, "a")
	assert.Equal(t, h.HashForIndex(2).Sum(), h.HashForIndex(2).Sum())
	assert.NotEqual(t, h.HashForIndex(2).Sum(), h.HashForIndex(3).Sum())
}

func TestHelper_Send(t *testing.T) {
	vmap := test.ValidatorMap(3)
	h, err := stage.NewHelper(stage.Info{
		ProtocolID:   "test",
		SelfIndex:    2,
		Parties:      vmap.Indices(),
		ValidatorMap: vmap,
		Threshold:    2,
	}, nil)
	require.NoError(t, err)

	out := make(chan *stage.Message, 1)
	require.NoError(t, h.BroadcastMessage(out, &testContent{}))
	msg := <-out
	assert.True(t, msg.IsBroadcast())
	assert.True(t, msg.IsFor(1))
	assert.False(t, msg.IsFor(2))

	require.NoError(t, h.SendMessage(out, &testContent{}, 3))
	assert.ErrorIs(t, h.SendMessage(out, &testContent{}, 1), stage.ErrOutChanFull)
	msg = <-out
	assert.True(t, msg.IsFor(3))
	assert.False(t, msg.IsFor(1))

	assert.Error(t, h.SendMessage(out, &testContent{}, 0))

	abort := h.AbortStage(assert.AnError, 3, 1)
	assert.True(t, stage.IsTerminal(abort))
	assert.Equal(t, party.IndexSlice{1, 3}, abort.(*stage.Abort).Culprits)
	assert.Equal(t, stage.Number(1), abort.Number())
}
