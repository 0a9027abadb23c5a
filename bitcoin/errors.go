// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import "errors"

// ErrInsufficientNativeBalance defines that there is not enough bitcoin balance to cover transfer with fees.
var ErrInsufficientNativeBalance = errors.New("insufficient native balance")

// ErrInvalidUTXOAmount defines that requested amount of utxos is invalid.
var ErrInvalidUTXOAmount = errors.New("invalid utxo amount")

// ErrNoSpendableUTXOs defines that address holds no spendable utxos.
var ErrNoSpendableUTXOs = errors.New("no spendable utxos")
