// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/commitment"
	"ordescrow/bitcoin/txbuilder"
	"ordescrow/internal/numbers"
)

// buildWithdrawTransaction spends all escrow outputs of the second
// transactions back to the buyer receive address, consumes the cpfp-funding
// output of the first transaction as the last input, and appends configured
// extra outputs. Escrow bindings are recomputed from each inscription
// outpoint, never stored. Every chained escrow input must be signed ALL by
// the buyer and co-signed by the escrow key.
func (b *ChainBuilder) buildWithdrawTransaction(sess *session, firstTx *psbt.Packet, cpfpIndex int,
	secondTxs []*psbt.Packet, escrowPublicKey, receiveAddress string, extraOutputs []bitcoin.Output) (*psbt.Packet, error) {
	var (
		chainedInputs = make([]*ChainedInput, 0, len(secondTxs)+1)
		bindings      = make([]*commitment.Payment, 0, len(secondTxs))
	)

	for _, secondTx := range secondTxs {
		inscriptionOutpoint := bitcoin.Outpoint{
			TxHash: secondTx.UnsignedTx.TxIn[0].PreviousOutPoint.Hash.String(),
			Index:  secondTx.UnsignedTx.TxIn[0].PreviousOutPoint.Index,
		}

		binding, err := commitment.NewEscrowBinding(inscriptionOutpoint, escrowPublicKey, b.txBuilder.NetworkParams())
		if err != nil {
			return nil, err
		}

		escrowIndex, err := escrowOutputIndex(secondTx, binding)
		if err != nil {
			return nil, err
		}

		chained, err := ChainOutput(secondTx, escrowIndex, schnorr.SerializePubKey(binding.InternalKey()), txbuilder.SignHashType)
		if err != nil {
			return nil, err
		}

		chainedInputs = append(chainedInputs, chained)
		bindings = append(bindings, binding)
	}

	cpfpInput, err := ChainOutput(firstTx, cpfpIndex, schnorr.SerializePubKey(sess.buyerPayment.InternalKey()), txbuilder.SignHashType)
	if err != nil {
		return nil, err
	}
	chainedInputs = append(chainedInputs, cpfpInput)

	tx := wire.NewMsgTx(txbuilder.TxVersion)
	for _, chained := range chainedInputs {
		outpoint := chained.Outpoint
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
	}

	// inputs never underfund outputs, a violation here is a builder bug.
	unallocatedAmount := big.NewInt(0)
	for _, chained := range chainedInputs {
		unallocatedAmount.Add(unallocatedAmount, big.NewInt(chained.WitnessUtxo.Value))
	}

	// one output per chained escrow input sending the full value to the buyer.
	for idx := range bindings {
		err = b.txBuilder.AddOutput(tx, big.NewInt(chainedInputs[idx].WitnessUtxo.Value), unallocatedAmount, receiveAddress)
		if err != nil {
			return nil, err
		}
	}

	for _, extra := range extraOutputs {
		err = b.txBuilder.AddOutput(tx, extra.Amount, unallocatedAmount, extra.Address)
		if err != nil {
			return nil, err
		}
	}

	if numbers.IsNegative(unallocatedAmount) {
		return nil, errors.New("withdraw outputs exceed chained input values")
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	var (
		buyerIndexes  = make([]int, 0, len(chainedInputs))
		escrowIndexes = make([]int, 0, len(bindings))
	)
	for idx, chained := range chainedInputs {
		packet.Inputs[idx].WitnessUtxo = chained.WitnessUtxo
		packet.Inputs[idx].SighashType = chained.SighashType
		packet.Inputs[idx].TaprootInternalKey = chained.XOnlyPubKey

		if idx < len(bindings) {
			err = bindings[idx].PrepareInput(&packet.Inputs[idx])
			if err != nil {
				return nil, err
			}

			escrowIndexes = append(escrowIndexes, idx)
		} else {
			err = sess.buyerPayment.PrepareInput(&packet.Inputs[idx])
			if err != nil {
				return nil, err
			}
		}

		buyerIndexes = append(buyerIndexes, idx)
	}

	txbuilder.InjectSignerInputIndexes(packet, map[txbuilder.InputsHelpingKey][]int{
		txbuilder.BuyerInputsHelpingKey:  buyerIndexes,
		txbuilder.EscrowInputsHelpingKey: escrowIndexes,
	})

	return packet, nil
}

// escrowOutputIndex returns index of the second transaction output paying to
// the recomputed escrow binding address, verifying the seller routed the
// inscription to the expected escrow destination.
func escrowOutputIndex(secondTx *psbt.Packet, binding *commitment.Payment) (int, error) {
	pkScript, err := binding.PkScript()
	if err != nil {
		return 0, err
	}

	for idx, output := range secondTx.UnsignedTx.TxOut {
		if bytes.Equal(output.PkScript, pkScript) {
			return idx, nil
		}
	}

	return 0, errors.Join(ErrInvalidSellerPST, fmt.Errorf("no output pays to escrow address %s", binding.Address()))
}
