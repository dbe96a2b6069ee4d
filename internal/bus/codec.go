package bus

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"quietlink/pkg/types"
)

// Encode serializes a delivery for the wire
func Encode(d *types.Delivery) ([]byte, error) {
	data, err := cbor.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery: %w", err)
	}
	return data, nil
}

// Decode parses a delivery received from the wire
func Decode(data []byte) (*types.Delivery, error) {
	var d types.Delivery
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if d.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	return &d, nil
}
