// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// UTXO describes unspent transaction output data.
type UTXO struct {
	TxHash  string
	Index   uint32   // output index in transaction outputs.
	Amount  *big.Int // in Satoshi.
	Script  []byte   // ScriptPubKey.
	Address string   // output recipient address.
}

// Outpoint returns Outpoint the UTXO originates from.
func (u UTXO) Outpoint() Outpoint {
	return Outpoint{TxHash: u.TxHash, Index: u.Index}
}

// Output describes destination address with satoshi amount to transfer.
type Output struct {
	Address string
	Amount  *big.Int // in Satoshi.
}

// outpointSeparator defines separator between TxHash and Index in Outpoint string form.
const outpointSeparator string = ":"

// Outpoint points to the concrete output of a transaction.
type Outpoint struct {
	TxHash string
	Index  uint32
}

// NewOutpointFromString parses Outpoint from "txid:vout" string.
func NewOutpointFromString(str string) (Outpoint, error) {
	parts := strings.Split(str, outpointSeparator)
	if len(parts) != 2 {
		return Outpoint{}, fmt.Errorf("invalid outpoint format: %s", str)
	}

	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Outpoint{}, err
	}

	return Outpoint{TxHash: parts[0], Index: uint32(index)}, nil
}

// String returns Outpoint in "txid:vout" form.
func (o Outpoint) String() string {
	return o.TxHash + outpointSeparator + strconv.FormatUint(uint64(o.Index), 10)
}
