// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
)

// ErrUnknownInputsHelpingKey defines that inputs help keys is unknown.
var ErrUnknownInputsHelpingKey = errors.New("unknown inputs help keys")

// InputsHelpingKey defines type for additional data in PSBT Unknowns field
// to distinguish signing parties and their input indexes.
type InputsHelpingKey byte

const (
	// BuyerInputsHelpingKey defines key for inputs the buyer must sign.
	BuyerInputsHelpingKey InputsHelpingKey = 0x10
	// SellerInputsHelpingKey defines key for inputs the seller must sign.
	SellerInputsHelpingKey InputsHelpingKey = 0x20
	// EscrowInputsHelpingKey defines key for inputs the escrow must co-sign.
	EscrowInputsHelpingKey InputsHelpingKey = 0x30
)

// InputsHelpingKeyFromBytes parses bytes array into InputsHelpingKey if any.
func InputsHelpingKeyFromBytes(b []byte) (InputsHelpingKey, error) {
	if len(b) != 1 {
		return 0, ErrUnknownInputsHelpingKey
	}

	switch b[0] {
	case BuyerInputsHelpingKey.Byte():
		return BuyerInputsHelpingKey, nil
	case SellerInputsHelpingKey.Byte():
		return SellerInputsHelpingKey, nil
	case EscrowInputsHelpingKey.Byte():
		return EscrowInputsHelpingKey, nil
	}

	return 0, ErrUnknownInputsHelpingKey
}

// Byte returns InputsHelpingKey as byte.
func (k InputsHelpingKey) Byte() byte {
	return byte(k)
}

// Bytes returns InputsHelpingKey as bytes array.
func (k InputsHelpingKey) Bytes() []byte {
	return []byte{byte(k)}
}
