// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ChainedInputKind enumerates output script families supported for chaining.
type ChainedInputKind byte

const (
	// ChainedInputTaproot defines chained input spending pay-to-taproot output.
	ChainedInputTaproot ChainedInputKind = iota + 1
	// ChainedInputWitnessKeyHash defines chained input spending v0 witness pubkey hash output.
	ChainedInputWitnessKeyHash
)

// ChainedInput describes spendable input derived from a prior transaction output.
// Taproot kind carries x-only internal key; the caller attaches a taproot merkle
// proof separately when the source output commits a script tree.
type ChainedInput struct {
	Kind        ChainedInputKind
	Outpoint    wire.OutPoint
	WitnessUtxo *wire.TxOut
	XOnlyPubKey []byte // set for taproot kind only.
	SighashType txscript.SigHashType
}

// ChainOutput derives spendable input descriptor from the prior partly signed
// transaction output at the provided index.
func ChainOutput(prior *psbt.Packet, index int, spenderXOnlyPubKey []byte, sigHashType txscript.SigHashType) (*ChainedInput, error) {
	if index < 0 || index >= len(prior.UnsignedTx.TxOut) {
		return nil, fmt.Errorf("output index %d is out of range", index)
	}

	txID, err := signedTxID(prior)
	if err != nil {
		return nil, err
	}

	var (
		output = prior.UnsignedTx.TxOut[index]
		ci     = &ChainedInput{
			Outpoint:    wire.OutPoint{Hash: txID, Index: uint32(index)},
			WitnessUtxo: wire.NewTxOut(output.Value, output.PkScript),
			SighashType: sigHashType,
		}
	)

	switch scriptClass := txscript.GetScriptClass(output.PkScript); scriptClass {
	case txscript.WitnessV1TaprootTy:
		ci.Kind = ChainedInputTaproot
		ci.XOnlyPubKey = spenderXOnlyPubKey
	case txscript.WitnessV0PubKeyHashTy:
		ci.Kind = ChainedInputWitnessKeyHash
	default:
		return nil, errors.Join(ErrUnsupportedScriptType, fmt.Errorf("script class %s", scriptClass))
	}

	return ci, nil
}

// AttachTo appends the chained input to the packet.
func (ci *ChainedInput) AttachTo(p *psbt.Packet) {
	p.UnsignedTx.AddTxIn(wire.NewTxIn(&ci.Outpoint, nil, nil))

	input := psbt.PInput{
		WitnessUtxo: ci.WitnessUtxo,
		SighashType: ci.SighashType,
	}
	if ci.Kind == ChainedInputTaproot {
		input.TaprootInternalKey = ci.XOnlyPubKey
	}

	p.Inputs = append(p.Inputs, input)
}

// signedTxID returns transaction id with script-hash redeem scripts applied,
// since those become part of the id once the scripts are known.
func signedTxID(p *psbt.Packet) (chainhash.Hash, error) {
	var tx *wire.MsgTx
	for idx, input := range p.Inputs {
		if len(input.RedeemScript) == 0 {
			continue
		}

		sigScript, err := txscript.NewScriptBuilder().AddData(input.RedeemScript).Script()
		if err != nil {
			return chainhash.Hash{}, err
		}

		if tx == nil {
			tx = p.UnsignedTx.Copy()
		}
		tx.TxIn[idx].SignatureScript = sigScript
	}

	if tx == nil {
		tx = p.UnsignedTx
	}

	return tx.TxHash(), nil
}
