// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignTaprootParams defines parameters for SignTaproot method.
type SignTaprootParams struct {
	SerializedPSBT []byte
	Inputs         []int // inputs indexes.
	PrivateKey     *btcec.PrivateKey
}

// signTaprootInputParams defines parameters for signTaprootInput method.
type signTaprootInputParams struct {
	packet       *psbt.Packet
	input        int
	inputFetcher txscript.PrevOutputFetcher
	privateKey   *btcec.PrivateKey
}

// Signer provides transaction signing related logic.
type Signer struct {
	networkParams *chaincfg.Params
}

// NewSigner is a constructor for Signer.
func NewSigner(networkParams *chaincfg.Params) *Signer {
	return &Signer{
		networkParams: networkParams,
	}
}

// SignTaproot signs taproot inputs by provided indexes, returns updated serialized PSBT.
func (signer *Signer) SignTaproot(params SignTaprootParams) ([]byte, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewBuffer(params.SerializedPSBT), false)
	if err != nil {
		return nil, err
	}

	var (
		tx                   = packet.UnsignedTx
		prevOutputFetcherMap = make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	)
	for idx, in := range packet.Inputs {
		prevOutputFetcherMap[tx.TxIn[idx].PreviousOutPoint] = in.WitnessUtxo
	}

	var prevOutputFetcher = txscript.NewMultiPrevOutFetcher(prevOutputFetcherMap)
	for _, input := range params.Inputs {
		if len(packet.Inputs) <= input {
			return nil, errors.New("invalid input index")
		}

		err = signer.signTaprootInput(signTaprootInputParams{
			packet:       packet,
			input:        input,
			inputFetcher: prevOutputFetcher,
			privateKey:   params.PrivateKey,
		})
		if err != nil {
			return nil, err
		}
	}

	w := bytes.NewBuffer(nil)
	err = packet.Serialize(w)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// signTaprootInput signs taproot input. Inputs carrying a tap leaf script
// with its control block, e.g. commitment output spends, are signed via that
// script path. Inputs with a bare witness script get a single-leaf tree
// assembled around it. Everything else is signed as a key spend.
func (signer *Signer) signTaprootInput(params signTaprootInputParams) error {
	var (
		input       = &params.packet.Inputs[params.input]
		sigHashes   = txscript.NewTxSigHashes(params.packet.UnsignedTx, params.inputFetcher)
		value       = input.WitnessUtxo.Value
		pkScript    = input.WitnessUtxo.PkScript
		sigHashType = input.SighashType
	)

	if len(input.TaprootLeafScript) != 0 {
		leafScript := input.TaprootLeafScript[0]
		tapLeaf := txscript.TapLeaf{
			LeafVersion: leafScript.LeafVersion,
			Script:      leafScript.Script,
		}

		return signTapscriptLeaf(params, tapLeaf, leafScript.ControlBlock, sigHashes, value, pkScript, sigHashType)
	}

	if len(input.WitnessScript) != 0 {
		var (
			tapLeaf       = txscript.NewBaseTapLeaf(input.WitnessScript)
			tapScriptTree = txscript.AssembleTaprootScriptTree(tapLeaf)
			ctrlBlock     = tapScriptTree.LeafMerkleProofs[0].ToControlBlock(params.privateKey.PubKey())
		)

		ctrlBlockBytes, err := ctrlBlock.ToBytes()
		if err != nil {
			return err
		}

		return signTapscriptLeaf(params, tapLeaf, ctrlBlockBytes, sigHashes, value, pkScript, sigHashType)
	}

	witness, err := txscript.TaprootWitnessSignature(
		params.packet.UnsignedTx, sigHashes, params.input,
		value, pkScript, sigHashType, params.privateKey)
	if err != nil {
		return err
	}

	input.TaprootKeySpendSig = witness[0]

	return nil
}

// signTapscriptLeaf signs the input via the provided leaf script path.
func signTapscriptLeaf(params signTaprootInputParams, tapLeaf txscript.TapLeaf, ctrlBlockBytes []byte,
	sigHashes *txscript.TxSigHashes, value int64, pkScript []byte, sigHashType txscript.SigHashType) error {
	input := &params.packet.Inputs[params.input]

	sig, err := txscript.RawTxInTapscriptSignature(
		params.packet.UnsignedTx, sigHashes, params.input,
		value, pkScript, tapLeaf, sigHashType, params.privateKey,
	)
	if err != nil {
		return err
	}

	if len(sig) > 64 {
		sig = sig[:64]
	}

	leafHash := tapLeaf.TapHash()
	input.TaprootScriptSpendSig = append(input.TaprootScriptSpendSig, &psbt.TaprootScriptSpendSig{
		XOnlyPubKey: params.privateKey.PubKey().SerializeCompressed()[1:],
		LeafHash:    leafHash.CloneBytes(),
		Signature:   sig,
		SigHash:     sigHashType,
	})

	input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: ctrlBlockBytes,
		Script:       tapLeaf.Script,
		LeafVersion:  tapLeaf.LeafVersion,
	}}

	return nil
}
