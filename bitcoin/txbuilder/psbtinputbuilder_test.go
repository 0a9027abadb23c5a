// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"ordescrow/bitcoin/txbuilder"
)

func TestPSBTInputBuilder(t *testing.T) {
	networkParams := &chaincfg.TestNet3Params

	seed := make([]byte, 32)
	seed[31] = 7
	_, publicKey := btcec.PrivKeyFromBytes(seed)
	publicKeyHex := hex.EncodeToString(publicKey.SerializeCompressed())

	t.Run("P2WPKH", func(t *testing.T) {
		address, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(publicKey.SerializeCompressed()), networkParams)
		require.NoError(t, err)

		pib, err := txbuilder.NewPSBTInputBuilder(publicKeyHex, address.EncodeAddress(), networkParams)
		require.NoError(t, err)
		require.Equal(t, txbuilder.P2WPKH, pib.ScriptType())

		var input psbt.PInput
		pib.PrepareInput(&input)
		require.NotEmpty(t, input.WitnessScript)
	})

	t.Run("P2TR", func(t *testing.T) {
		outputKey := txscript.ComputeTaprootKeyNoScript(publicKey)
		address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), networkParams)
		require.NoError(t, err)

		pib, err := txbuilder.NewPSBTInputBuilder(publicKeyHex, address.EncodeAddress(), networkParams)
		require.NoError(t, err)
		require.Equal(t, txbuilder.P2TR, pib.ScriptType())
		require.Equal(t, publicKey.SerializeCompressed()[1:], pib.XOnlyPubKey())

		var input psbt.PInput
		pib.PrepareInput(&input)
		require.Equal(t, pib.XOnlyPubKey(), input.TaprootInternalKey)
	})

	t.Run("P2SH nested segwit", func(t *testing.T) {
		witness, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(publicKey.SerializeCompressed()), networkParams)
		require.NoError(t, err)

		witnessProgram, err := txscript.PayToAddrScript(witness)
		require.NoError(t, err)

		address, err := btcutil.NewAddressScriptHash(witnessProgram, networkParams)
		require.NoError(t, err)

		pib, err := txbuilder.NewPSBTInputBuilder(publicKeyHex, address.EncodeAddress(), networkParams)
		require.NoError(t, err)
		require.Equal(t, txbuilder.P2SH, pib.ScriptType())
		require.Equal(t, witnessProgram, pib.RedeemScript())

		var input psbt.PInput
		pib.PrepareInput(&input)
		require.Equal(t, witnessProgram, input.RedeemScript)
	})

	t.Run("invalid public key", func(t *testing.T) {
		_, err := txbuilder.NewPSBTInputBuilder("zz", "", networkParams)
		require.ErrorIs(t, err, txbuilder.ErrPSBTInputBuilder)
	})
}
