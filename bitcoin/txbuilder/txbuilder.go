// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"ordescrow/bitcoin"
	"ordescrow/internal/numbers"
)

const (
	// TxVersion defines transaction version for this builder.
	TxVersion int32 = 2
	// SignHashType defines default signature hash type for input signing.
	SignHashType = txscript.SigHashAll
)

var (
	// headerSizeVBytes defined rough tx header size in vBytes.
	headerSizeVBytes = big.NewInt(11)
	// inputSizeVBytes defined rough tx input size in vBytes.
	inputSizeVBytes = big.NewInt(90)
	// outputSizeVBytes defined rough tx output size in vBytes.
	outputSizeVBytes = big.NewInt(30)

	// kiloUnit defines amount of units in one kilo-unit.
	kiloUnit = big.NewInt(1000)

	// NonDustBitcoinAmount defines the smallest amount in satoshi allowed to be linked to an output.
	NonDustBitcoinAmount = big.NewInt(546)
)

// TxBuilder provides transaction building related logic.
type TxBuilder struct {
	networkParams *chaincfg.Params
}

// NewTxBuilder is a constructor for TxBuilder.
func NewTxBuilder(networkParams *chaincfg.Params) *TxBuilder {
	return &TxBuilder{
		networkParams: networkParams,
	}
}

// NetworkParams returns network parameters the builder operates on.
func (b *TxBuilder) NetworkParams() *chaincfg.Params {
	return b.networkParams
}

// AddOutput adds output to transaction, subtracts amount from unallocated amount.
func (b *TxBuilder) AddOutput(tx *wire.MsgTx, amount, unallocatedAmount *big.Int, address string) error {
	if numbers.IsLess(unallocatedAmount, amount) {
		return errors.New("unallocated amount is less than the amount in provided inputs")
	}

	recipientAddress, err := btcutil.DecodeAddress(address, b.networkParams)
	if err != nil {
		return err
	}

	destinationAddrByte, err := txscript.PayToAddrScript(recipientAddress)
	if err != nil {
		return err
	}

	tx.AddTxOut(wire.NewTxOut(amount.Int64(), destinationAddrByte))
	unallocatedAmount.Sub(unallocatedAmount, amount)

	return nil
}

// PrepareUTXOs selects utxos to cover transfer amount with rough estimated fee.
// Returns used utxos, total satoshi amount of utxos, rough fee estimation in satoshi and error if any.
func PrepareUTXOs(utxos []bitcoin.UTXO, outputs int, transferAmount, satoshiPerKVByte *big.Int) (usedUTXOs []*bitcoin.UTXO, totalAmount, roughEstimate *big.Int, err error) {
	satFn := func(u *bitcoin.UTXO) *big.Int { return u.Amount }

	for i := 1; i <= len(utxos); i++ {
		// vB * ( sat / kvB ) = 1000 sat.
		roughEstimate = new(big.Int).Mul(RoughTxSizeEstimate(i, outputs), satoshiPerKVByte)
		roughEstimate.Div(roughEstimate, kiloUnit) // sat.

		usedUTXOs, totalAmount, err = SelectUTXO(utxos, satFn, new(big.Int).Add(roughEstimate, transferAmount), i, bitcoin.ErrInsufficientNativeBalance)
		if err != nil {
			if errors.Is(err, bitcoin.ErrInsufficientNativeBalance) {
				continue
			}

			return nil, nil, nil, err
		}

		return usedUTXOs, totalAmount, roughEstimate, nil
	}

	return nil, nil, nil, bitcoin.ErrInsufficientNativeBalance
}

// RoughTxSizeEstimate returns Tx rough estimated size in vBytes.
func RoughTxSizeEstimate(inputs, outputs int) *big.Int {
	size := new(big.Int).Set(headerSizeVBytes)
	size.Add(size, new(big.Int).Mul(inputSizeVBytes, big.NewInt(int64(inputs))))
	size.Add(size, new(big.Int).Mul(outputSizeVBytes, big.NewInt(int64(outputs))))

	return size
}

// EstimateFee returns fee in satoshi needed to cover transaction
// of rough estimated size at provided fee rate in satoshi per vByte.
func EstimateFee(inputs, outputs int, satoshiPerVByte *big.Int) *big.Int {
	return new(big.Int).Mul(RoughTxSizeEstimate(inputs, outputs), satoshiPerVByte)
}

// GetTotalFees returns difference between total input and total output
// values of partly signed transaction. Inputs must carry witness utxo data.
func GetTotalFees(p *psbt.Packet) (*big.Int, error) {
	totalIn := big.NewInt(0)
	for _, input := range p.Inputs {
		if input.WitnessUtxo == nil {
			return nil, errors.New("input witness utxo is not set")
		}

		totalIn.Add(totalIn, big.NewInt(input.WitnessUtxo.Value))
	}

	totalOut := big.NewInt(0)
	for _, output := range p.UnsignedTx.TxOut {
		totalOut.Add(totalOut, big.NewInt(output.Value))
	}

	fee := new(big.Int).Sub(totalIn, totalOut)
	if numbers.IsNegative(fee) {
		return nil, errors.New("total output value exceeds total input value")
	}

	return fee, nil
}

// SelectUTXO is a partly greedy selection algorithm for UTXOs with 'requiredUTXOs' parameter.
// Returns list of selected by algorithm UTXOs with total amount, counted by passed amount function.
func SelectUTXO(utxos []bitcoin.UTXO, amountFn func(*bitcoin.UTXO) *big.Int, minAmount *big.Int, requiredUTXOs int,
	insufficientBalanceError error) (usedUTXOs []*bitcoin.UTXO, totalAmount *big.Int, _ error) {
	if len(utxos) < requiredUTXOs {
		return nil, nil, bitcoin.ErrInvalidUTXOAmount
	}

	usedUTXOs = make([]*bitcoin.UTXO, 0, requiredUTXOs)
	totalAmount = big.NewInt(0)
	var startIdx = 0
	var usedIdxs = make([]int, 0)

	// find the closest by amount UTXO that is grater then minAmount or take the biggest possible.
	for idx, utxo := range utxos {
		if numbers.IsGreater(minAmount, amountFn(&utxo)) {
			break
		}

		startIdx = idx
	}

	usedIdxs = append(usedIdxs, startIdx)
	totalAmount.Add(totalAmount, amountFn(&utxos[startIdx]))
	usedUTXOs = append(usedUTXOs, &utxos[startIdx])
	requiredUTXOs--

	// pick bigger amount if total amount do not cover minAmount, otherwise - the smallest to pass requiredUTXOs.
	for ; requiredUTXOs > 0; requiredUTXOs-- {
		idx := selectUnused(startIdx, len(utxos), usedIdxs, !numbers.IsGreater(minAmount, totalAmount))
		if idx == -1 {
			return nil, nil, bitcoin.ErrInvalidUTXOAmount
		}

		usedIdxs = append(usedIdxs, idx)
		totalAmount.Add(totalAmount, amountFn(&utxos[idx]))
		usedUTXOs = append(usedUTXOs, &utxos[idx])
	}

	if numbers.IsGreater(minAmount, totalAmount) {
		return nil, nil, insufficientBalanceError
	}

	return usedUTXOs, totalAmount, nil
}

// selectUnused returns first unused idx depending on search direction.
func selectUnused(start, end int, usedIdxs []int, reversed bool) int {
	if reversed {
		for idx := end - 1; idx >= start; idx-- {
			if !isUsed(idx, usedIdxs) {
				return idx
			}
		}
	} else {
		for idx := start; idx < end; idx++ {
			if !isUsed(idx, usedIdxs) {
				return idx
			}
		}
	}

	return -1
}

// isUsed returns true id idx is in usedIdxs.
func isUsed(idx int, usedIdxs []int) bool {
	for _, used := range usedIdxs {
		if used == idx {
			return true
		}
	}

	return false
}
