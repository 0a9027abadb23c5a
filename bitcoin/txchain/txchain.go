// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package txchain builds the three-transaction escrow purchase chain for
// ordinals inscriptions. The first transaction funds buyer commitment
// outputs, the second transactions pair seller-signed inscription psts
// with buyer funding, and the third (withdraw) transaction collects the
// escrowed inscriptions back to the buyer and pays fees for the whole
// chain as a child-pays-for-parent bump.
package txchain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/commitment"
	"ordescrow/bitcoin/txbuilder"
	"ordescrow/internal/numbers"
)

var (
	// cpfpFundingSeed defines initial child-pays-for-parent funding amount in satoshi.
	cpfpFundingSeed = big.NewInt(600)
	// defaultMaxFeeIterations bounds the fee convergence loop.
	defaultMaxFeeIterations = 12
)

// Config defines configuration for the transaction chain builder.
type Config struct {
	NetworkParams *chaincfg.Params
	// BaseFeeRateSatPerKVByte defines fee rate for buyer coin selection, in satoshi per kilo-vbyte.
	BaseFeeRateSatPerKVByte *big.Int
	// MaxFeeIterations bounds the fee convergence loop, defaulted when non-positive.
	MaxFeeIterations int
}

// ChainBuilder builds the escrow purchase transaction chain.
type ChainBuilder struct {
	config     Config
	txBuilder  *txbuilder.TxBuilder
	dataSource DataSource
}

// NewChainBuilder is a constructor for ChainBuilder.
func NewChainBuilder(config Config, dataSource DataSource) *ChainBuilder {
	if config.MaxFeeIterations <= 0 {
		config.MaxFeeIterations = defaultMaxFeeIterations
	}

	return &ChainBuilder{
		config:     config,
		txBuilder:  txbuilder.NewTxBuilder(config.NetworkParams),
		dataSource: dataSource,
	}
}

// BuildTransactionsParams describes data needed to build the transaction chain.
type BuildTransactionsParams struct {
	// SellerPSTs holds base64 seller-signed inscription psts, one per purchased inscription.
	SellerPSTs []string
	// BuyerPublicKey is hex public key matching the buyer funding address.
	BuyerPublicKey string
	// BuyerAddress is the buyer funding address, segwit or taproot.
	BuyerAddress string
	// BuyerTaprootPublicKey is hex public key the buyer commitment address is derived from.
	BuyerTaprootPublicKey string
	// BuyerReceiveAddress receives purchased inscriptions from the withdraw transaction.
	BuyerReceiveAddress string
	// EscrowPublicKey is hex public key escrow bindings are derived from.
	EscrowPublicKey string
	// EffectiveFeeRate is the target fee rate for the whole chain, in satoshi per vbyte.
	EffectiveFeeRate *big.Int
	// UniqueID distinguishes commitment addresses of concurrent purchases of one buyer.
	UniqueID string
	// ExtraOutputs are appended to the withdraw transaction, e.g. marketplace fee outputs.
	ExtraOutputs []bitcoin.Output
}

// BuildTransactionsResponse holds the built chain as base64 psts.
type BuildTransactionsResponse struct {
	FirstTransactionPST   string
	SecondTransactionPSTs []string
	ThirdTransactionPST   string
}

// BuildTransactions builds the three-transaction escrow purchase chain.
// Transactions are rebuilt from scratch until the chain's fee at the
// effective rate is covered by the child withdraw transaction.
func (b *ChainBuilder) BuildTransactions(ctx context.Context, params BuildTransactionsParams) (_ *BuildTransactionsResponse, err error) {
	defer func(err *error) {
		if err != nil && *err != nil {
			*err = errors.Join(ErrBuildTransactions, *err)
		}
	}(&err)

	if len(params.SellerPSTs) == 0 {
		return nil, ErrNoInscriptionPSTs
	}

	buyerInputs, err := txbuilder.NewPSBTInputBuilder(params.BuyerPublicKey, params.BuyerAddress, b.config.NetworkParams)
	if err != nil {
		return nil, err
	}

	switch buyerInputs.ScriptType() {
	case txbuilder.P2TR, txbuilder.P2WPKH, txbuilder.P2SH:
	default:
		return nil, ErrUnsupportedBuyerAddress
	}

	sellerPSTs, err := decodePSTs(params.SellerPSTs)
	if err != nil {
		return nil, errors.Join(ErrInvalidSellerPST, err)
	}

	err = b.validateInscriptionPSTs(ctx, sellerPSTs)
	if err != nil {
		return nil, err
	}

	buyerUTXOs, err := b.GetBuyerUtxos(ctx, params.BuyerAddress)
	if err != nil {
		return nil, err
	}

	buyerPayment, err := commitment.NewPayment(commitment.Params{
		PublicKey: params.BuyerTaprootPublicKey,
		Envelope: commitment.Envelope{
			ID:       params.UniqueID,
			Receiver: params.BuyerReceiveAddress,
		},
		NetworkParams: b.config.NetworkParams,
	})
	if err != nil {
		return nil, err
	}

	extrasTotal := big.NewInt(0)
	for _, extra := range params.ExtraOutputs {
		extrasTotal.Add(extrasTotal, extra.Amount)
	}

	sess := newSession(buyerInputs, buyerPayment, extrasTotal)
	sess.buyerUTXOs = buyerUTXOs

	// amount each second transaction must receive from the first one:
	// seller outputs minus the inscription input own value.
	fundingNeeds := make([]*big.Int, len(sellerPSTs))
	for i, sellerPST := range sellerPSTs {
		fundingNeeds[i] = new(big.Int).Neg(big.NewInt(sellerPST.Inputs[0].WitnessUtxo.Value))
		for _, output := range sellerPST.UnsignedTx.TxOut {
			fundingNeeds[i].Add(fundingNeeds[i], big.NewInt(output.Value))
		}
	}

	for ; sess.iteration < b.config.MaxFeeIterations; sess.iteration++ {
		// second transactions mutate seller psts, start each pass from fresh copies.
		sellerPSTs, err = decodePSTs(params.SellerPSTs)
		if err != nil {
			return nil, err
		}

		targets := make([]bitcoin.Output, 0, len(fundingNeeds)+1)
		for _, need := range fundingNeeds {
			targets = append(targets, bitcoin.Output{
				Address: buyerPayment.Address().EncodeAddress(),
				Amount:  need,
			})
		}
		targets = append(targets, bitcoin.Output{
			Address: buyerPayment.Address().EncodeAddress(),
			Amount:  new(big.Int).Set(sess.cpfpFunding),
		})
		cpfpIndex := len(targets) - 1

		firstTx, err := b.buildFirstTransaction(sess, targets, params.BuyerAddress)
		if err != nil {
			return nil, err
		}

		secondTxs := make([]*psbt.Packet, len(sellerPSTs))
		for i, sellerPST := range sellerPSTs {
			secondTxs[i], err = b.buildSecondTransaction(sess, firstTx, i, sellerPST)
			if err != nil {
				return nil, err
			}
		}

		thirdTx, err := b.buildWithdrawTransaction(sess, firstTx, cpfpIndex, secondTxs,
			params.EscrowPublicKey, params.BuyerReceiveAddress, params.ExtraOutputs)
		if err != nil {
			return nil, err
		}

		extra, err := b.cpfpFundingShortage(firstTx, secondTxs, thirdTx, params.EffectiveFeeRate, extrasTotal, sess.cpfpFunding)
		if err != nil {
			return nil, err
		}

		if !numbers.IsPositive(extra) {
			return encodeResponse(firstTx, secondTxs, thirdTx)
		}

		sess.cpfpFunding.Add(sess.cpfpFunding, extra)
	}

	return nil, ErrFeeConvergenceTimeout
}

// cpfpFundingShortage returns by how many satoshi the current cpfp funding
// misses the amount needed for the whole chain to pay the effective fee rate.
// Non-positive result means the chain already pays enough.
func (b *ChainBuilder) cpfpFundingShortage(firstTx *psbt.Packet, secondTxs []*psbt.Packet, thirdTx *psbt.Packet,
	effectiveFeeRate, extrasTotal, cpfpFunding *big.Int) (*big.Int, error) {
	chainVBytes := packetVBytes(firstTx)
	for _, secondTx := range secondTxs {
		chainVBytes.Add(chainVBytes, packetVBytes(secondTx))
	}
	thirdVBytes := packetVBytes(thirdTx)
	chainVBytes.Add(chainVBytes, thirdVBytes)

	requiredFee := new(big.Int).Mul(effectiveFeeRate, chainVBytes)

	paidFee, err := txbuilder.GetTotalFees(firstTx)
	if err != nil {
		return nil, err
	}
	for _, secondTx := range secondTxs {
		secondFee, err := txbuilder.GetTotalFees(secondTx)
		if err != nil {
			return nil, err
		}

		paidFee.Add(paidFee, secondFee)
	}

	thirdMustPay := numbers.Max(new(big.Int).Sub(requiredFee, paidFee), numbers.ZeroBigInt)
	thirdFeeRate := numbers.CeilDiv(thirdMustPay, thirdVBytes)

	neededFunding := new(big.Int).Mul(thirdFeeRate, thirdVBytes)
	neededFunding.Add(neededFunding, extrasTotal)

	return neededFunding.Sub(neededFunding, cpfpFunding), nil
}

// GetBuyerUtxos returns spendable unspent outputs of the buyer address.
func (b *ChainBuilder) GetBuyerUtxos(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	unspents, err := b.dataSource.GetUnspents(ctx, address, UnspentsFilter{})
	if err != nil {
		return nil, err
	}

	if len(unspents.Spendable) == 0 {
		return nil, bitcoin.ErrNoSpendableUTXOs
	}

	return unspents.Spendable, nil
}

// packetVBytes returns rough packet size estimate in vbytes.
func packetVBytes(p *psbt.Packet) *big.Int {
	return txbuilder.RoughTxSizeEstimate(len(p.UnsignedTx.TxIn), len(p.UnsignedTx.TxOut))
}

// decodePSTs decodes base64 psts.
func decodePSTs(encoded []string) ([]*psbt.Packet, error) {
	packets := make([]*psbt.Packet, len(encoded))
	for i, raw := range encoded {
		packet, err := psbt.NewFromRawBytes(strings.NewReader(raw), true)
		if err != nil {
			return nil, err
		}

		packets[i] = packet
	}

	return packets, nil
}

// encodeResponse serializes the built chain to base64.
func encodeResponse(firstTx *psbt.Packet, secondTxs []*psbt.Packet, thirdTx *psbt.Packet) (*BuildTransactionsResponse, error) {
	first, err := firstTx.B64Encode()
	if err != nil {
		return nil, err
	}

	seconds := make([]string, len(secondTxs))
	for i, secondTx := range secondTxs {
		seconds[i], err = secondTx.B64Encode()
		if err != nil {
			return nil, err
		}
	}

	third, err := thirdTx.B64Encode()
	if err != nil {
		return nil, err
	}

	return &BuildTransactionsResponse{
		FirstTransactionPST:   first,
		SecondTransactionPSTs: seconds,
		ThirdTransactionPST:   third,
	}, nil
}
