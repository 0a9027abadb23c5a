// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/txbuilder"
	"ordescrow/internal/numbers"
)

// buildFirstTransaction performs coin selection over buyer funds to produce
// exact-value outputs, one per inscription plus one cpfp-funding output.
// Unselected change, if any, returns to the buyer address.
//
//	Tx struct
//	inputs:
//	┌─────────┬───────────────┬───────────────────────────────────────┐
//	│  index  │     type      │             description               │
//	├=========┼===============┼=======================================┤
//	│   0 - n │ buyer inputs  │ selected buyer utxos, possibly many   │
//	└─────────┴───────────────┴───────────────────────────────────────┘
//
//	outputs:
//	┌─────────┬───────────────┬───────────────────────────────────────┐
//	│  index  │     type      │             description               │
//	├=========┼===============┼=======================================┤
//	│ 0 - n-1 │ funding       │ exact-value outputs to the buyer      │
//	│         │               │ commitment address, one per           │
//	│         │               │ inscription.                          │
//	├─────────┼───────────────┼───────────────────────────────────────┤
//	│       n │ cpfp funding  │ fee funding output consumed by the    │
//	│         │               │ withdraw transaction.                 │
//	├─────────┼───────────────┼───────────────────────────────────────┤
//	│     n+1 │ change        │ optional, unselected change back to   │
//	│         │               │ the buyer address.                    │
//	└─────────┴───────────────┴───────────────────────────────────────┘
func (b *ChainBuilder) buildFirstTransaction(sess *session, targets []bitcoin.Output, changeAddress string) (*psbt.Packet, error) {
	if len(targets) == 0 {
		return nil, ErrNoOutputSelected
	}

	totalTarget := big.NewInt(0)
	for _, target := range targets {
		totalTarget.Add(totalTarget, target.Amount)
	}

	usedUTXOs, totalAmount, fee, err := txbuilder.PrepareUTXOs(sess.buyerUTXOs, len(targets)+1,
		totalTarget, b.config.BaseFeeRateSatPerKVByte)
	if err != nil {
		if errors.Is(err, bitcoin.ErrInsufficientNativeBalance) || errors.Is(err, bitcoin.ErrInvalidUTXOAmount) {
			have := big.NewInt(0)
			for _, utxo := range sess.buyerUTXOs {
				have.Add(have, utxo.Amount)
			}

			return nil, errors.Join(err, txbuilder.NewInsufficientError(totalTarget, have).WithCauser(txbuilder.CauserBuyer))
		}

		return nil, err
	}

	tx := wire.NewMsgTx(txbuilder.TxVersion)
	for _, utxo := range usedUTXOs {
		utxoHash, err := chainhash.NewHashFromStr(utxo.TxHash)
		if err != nil {
			return nil, err
		}

		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(utxoHash, utxo.Index), nil, nil))
	}

	// subtract fee.
	unallocatedAmount := new(big.Int).Sub(totalAmount, fee)

	for _, target := range targets {
		err = b.txBuilder.AddOutput(tx, target.Amount, unallocatedAmount, target.Address)
		if err != nil {
			return nil, err
		}
	}

	// change output, if above dust it returns to the buyer; dust melts into fee.
	if numbers.IsGreater(unallocatedAmount, txbuilder.NonDustBitcoinAmount) {
		err = b.txBuilder.AddOutput(tx, new(big.Int).Set(unallocatedAmount), unallocatedAmount, changeAddress)
		if err != nil {
			return nil, err
		}
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	for i := range packet.Inputs {
		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(usedUTXOs[i].Amount.Int64(), usedUTXOs[i].Script)
		packet.Inputs[i].SighashType = txbuilder.SignHashType
		sess.buyerInputs.PrepareInput(&packet.Inputs[i])
	}

	buyerIndexes := make([]int, len(packet.Inputs))
	for i := range buyerIndexes {
		buyerIndexes[i] = i
	}
	txbuilder.InjectSignerInputIndexes(packet, map[txbuilder.InputsHelpingKey][]int{
		txbuilder.BuyerInputsHelpingKey: buyerIndexes,
	})

	return packet, nil
}
