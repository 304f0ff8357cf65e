package stage

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownStage is returned when decoding a body whose stage number is not part of the protocol.
var ErrUnknownStage = errors.New("stage: unknown stage number")

// ContentFactory returns an empty Content for stage number n of a protocol,
// or false if the protocol has no such stage.
type ContentFactory func(n Number) (Content, bool)

// Encode serializes content as its stage number followed by its CBOR encoding.
func Encode(content Content) ([]byte, error) {
	data, err := cbor.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("stage: encode: %w", err)
	}
	out := make([]byte, 0, 1+len(data))
	out = append(out, byte(content.StageNumber()))
	return append(out, data...), nil
}

// Decode parses a body produced by Encode, using factory to select the payload type.
func Decode(body []byte, factory ContentFactory) (Content, error) {
	if len(body) == 0 {
		return nil, errors.New("stage: empty body")
	}
	n := Number(body[0])
	content, ok := factory(n)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStage, n)
	}
	if err := cbor.Unmarshal(body[1:], content); err != nil {
		return nil, fmt.Errorf("stage: decode stage %d: %w", n, err)
	}
	if content.StageNumber() != n {
		return nil, fmt.Errorf("stage: decoded stage %d, header says %d", content.StageNumber(), n)
	}
	return content, nil
}
