package statechain

import (
	"encoding/json"

	"github.com/bridgeval/engine/pkg/witness"
	"github.com/pkg/errors"
)

type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodeEvent returns the ceremony request or the observation carried by a
// notification. Unknown event types yield neither.
func decodeEvent(raw json.RawMessage) (witness.Event, witness.Observation, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, errors.Wrap(err, "statechain: event envelope")
	}
	var (
		ev  witness.Event
		obs witness.Observation
		dst interface{}
	)
	switch env.Type {
	case "KeygenRequest":
		e := new(witness.KeygenRequest)
		ev, dst = e, e
	case "SigningRequest":
		e := new(witness.SigningRequest)
		ev, dst = e, e
	case "Staked":
		o := new(witness.Staked)
		obs, dst = o, o
	case "Claimed":
		o := new(witness.Claimed)
		obs, dst = o, o
	case "KeyChange":
		o := new(witness.KeyChange)
		obs, dst = o, o
	default:
		return nil, nil, nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return nil, nil, errors.Wrapf(err, "statechain: %s event", env.Type)
	}
	return ev, obs, nil
}
