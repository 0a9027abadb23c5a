// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"github.com/btcsuite/btcd/btcutil/psbt"

	"ordescrow/bitcoin/txbuilder"
)

// buildSecondTransaction attaches buyer-funded input from the first
// transaction output at the provided index to the seller-signed pst.
// The seller input stays first (signed ALL|ANYONECANPAY by the seller),
// the buyer funding input is appended second (signed ALL by the buyer)
// with the taproot merkle proof of the buyer commitment address attached.
// Outputs stay exactly as pre-populated by the seller pst.
func (b *ChainBuilder) buildSecondTransaction(sess *session, firstTx *psbt.Packet, outputIndex int, sellerPST *psbt.Packet) (*psbt.Packet, error) {
	chained, err := ChainOutput(firstTx, outputIndex, sess.buyerPayment.InternalKey().SerializeCompressed()[1:], txbuilder.SignHashType)
	if err != nil {
		return nil, err
	}

	chained.AttachTo(sellerPST)
	err = sess.buyerPayment.PrepareInput(&sellerPST.Inputs[len(sellerPST.Inputs)-1])
	if err != nil {
		return nil, err
	}

	txbuilder.InjectSignerInputIndexes(sellerPST, map[txbuilder.InputsHelpingKey][]int{
		txbuilder.SellerInputsHelpingKey: {0},
		txbuilder.BuyerInputsHelpingKey:  {1},
	})

	return sellerPST, nil
}
