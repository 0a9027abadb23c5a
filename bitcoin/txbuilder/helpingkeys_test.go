// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"ordescrow/bitcoin/txbuilder"

	"github.com/stretchr/testify/require"

	"testing"
)

func TestInputsHelpingKey(t *testing.T) {
	t.Run("InputsHelpingKeyFromBytes", func(t *testing.T) {
		tests := []struct {
			bytes []byte
			key   txbuilder.InputsHelpingKey
			err   error
		}{
			{[]byte{txbuilder.BuyerInputsHelpingKey.Byte()}, txbuilder.BuyerInputsHelpingKey, nil},
			{[]byte{txbuilder.SellerInputsHelpingKey.Byte()}, txbuilder.SellerInputsHelpingKey, nil},
			{[]byte{txbuilder.EscrowInputsHelpingKey.Byte()}, txbuilder.EscrowInputsHelpingKey, nil},
			{[]byte{}, 0, txbuilder.ErrUnknownInputsHelpingKey},
			{[]byte{0x50}, 0, txbuilder.ErrUnknownInputsHelpingKey},
			{[]byte{0x01, 0x02}, 0, txbuilder.ErrUnknownInputsHelpingKey},
		}
		for _, test := range tests {
			key, err := txbuilder.InputsHelpingKeyFromBytes(test.bytes)
			require.Equal(t, test.err, err)
			require.Equal(t, test.key, key)
		}
	})

	t.Run("Byte&Bytes", func(t *testing.T) {
		tests := []struct {
			key   txbuilder.InputsHelpingKey
			byte  byte
			bytes []byte
		}{
			{txbuilder.BuyerInputsHelpingKey, byte(txbuilder.BuyerInputsHelpingKey), []byte{byte(txbuilder.BuyerInputsHelpingKey)}},
			{txbuilder.SellerInputsHelpingKey, byte(txbuilder.SellerInputsHelpingKey), []byte{byte(txbuilder.SellerInputsHelpingKey)}},
			{txbuilder.EscrowInputsHelpingKey, byte(txbuilder.EscrowInputsHelpingKey), []byte{byte(txbuilder.EscrowInputsHelpingKey)}},
		}
		for _, test := range tests {
			require.Equal(t, test.byte, test.key.Byte())
			require.Equal(t, test.bytes, test.key.Bytes())
		}
	})
}
