// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"math/big"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/commitment"
	"ordescrow/bitcoin/txbuilder"
)

// session holds mutable state of a single BuildTransactions call. The buyer
// utxo set is fetched once and read-only afterwards; transactions are rebuilt
// from scratch on every fee iteration, never patched, so no state aliases
// across iterations. A session is never reused between calls.
type session struct {
	buyerUTXOs   []bitcoin.UTXO
	buyerInputs  *txbuilder.PSBTInputBuilder
	buyerPayment *commitment.Payment // buyer commitment address, stable across iterations.
	cpfpFunding  *big.Int            // running child-pays-for-parent funding total.
	iteration    int
}

// newSession constructs fresh session with seeded cpfp funding. Extra
// withdraw outputs are paid out of the cpfp funding, so their total joins
// the seed to keep the first build pass solvent.
func newSession(buyerInputs *txbuilder.PSBTInputBuilder, buyerPayment *commitment.Payment, extrasTotal *big.Int) *session {
	return &session{
		buyerInputs:  buyerInputs,
		buyerPayment: buyerPayment,
		cpfpFunding:  new(big.Int).Add(cpfpFundingSeed, extrasTotal),
	}
}
