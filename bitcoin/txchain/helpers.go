// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"context"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/commitment"
	"ordescrow/bitcoin/ord/inscriptions"
	"ordescrow/bitcoin/txbuilder"
)

// ErrCreateInscriptionPST defines errors class for seller pst creation.
var ErrCreateInscriptionPST = errors.New("create inscription pst")

// CreateInscriptionPSTParams describes data needed to create seller inscription pst.
type CreateInscriptionPSTParams struct {
	// InscriptionID identifies the inscription being sold.
	InscriptionID string
	// SellerPublicKey is hex public key matching the seller address.
	SellerPublicKey string
	// SellerAddress is the address currently holding the inscription.
	SellerAddress string
	// ReceivePaymentAddress receives the sale price.
	ReceivePaymentAddress string
	// Price is the sale price in satoshi.
	Price *big.Int
	// EscrowPublicKey is hex public key the escrow destination is derived from.
	EscrowPublicKey string
}

// CreateInscriptionPST builds seller-side pst listing the inscription for
// sale. The single input spends the inscription utxo with ALL|ANYONECANPAY
// sighash so the buyer may attach funding inputs later. Outputs route the
// inscription to its escrow binding address and the price to the seller
// payment address.
func (b *ChainBuilder) CreateInscriptionPST(ctx context.Context, params CreateInscriptionPSTParams) (_ string, err error) {
	defer func(err *error) {
		if err != nil && *err != nil {
			*err = errors.Join(ErrCreateInscriptionPST, *err)
		}
	}(&err)

	_, err = inscriptions.NewIDFromString(params.InscriptionID)
	if err != nil {
		return "", err
	}

	inscriptionUTXO, err := b.dataSource.GetInscriptionUTXO(ctx, params.InscriptionID)
	if err != nil {
		return "", err
	}

	sellerInputs, err := txbuilder.NewPSBTInputBuilder(params.SellerPublicKey, params.SellerAddress, b.config.NetworkParams)
	if err != nil {
		return "", err
	}

	binding, err := commitment.NewEscrowBinding(inscriptionUTXO.Outpoint(), params.EscrowPublicKey, b.config.NetworkParams)
	if err != nil {
		return "", err
	}

	utxoHash, err := chainhash.NewHashFromStr(inscriptionUTXO.TxHash)
	if err != nil {
		return "", err
	}

	tx := wire.NewMsgTx(txbuilder.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(utxoHash, inscriptionUTXO.Index), nil, nil))

	unallocatedAmount := new(big.Int).Add(inscriptionUTXO.Amount, params.Price)
	err = b.txBuilder.AddOutput(tx, inscriptionUTXO.Amount, unallocatedAmount, binding.Address().EncodeAddress())
	if err != nil {
		return "", err
	}

	err = b.txBuilder.AddOutput(tx, params.Price, unallocatedAmount, params.ReceivePaymentAddress)
	if err != nil {
		return "", err
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return "", err
	}

	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(inscriptionUTXO.Amount.Int64(), inscriptionUTXO.Script)
	packet.Inputs[0].SighashType = txscript.SigHashAll | txscript.SigHashAnyOneCanPay
	sellerInputs.PrepareInput(&packet.Inputs[0])

	txbuilder.InjectSignerInputIndexes(packet, map[txbuilder.InputsHelpingKey][]int{
		txbuilder.SellerInputsHelpingKey: {0},
	})

	return packet.B64Encode()
}

// EscrowAddress describes escrow destination for a concrete inscription outpoint.
type EscrowAddress struct {
	// Address is the taproot escrow binding address.
	Address string
	// MerkleProof is hex script tree commitment needed to spend the binding.
	MerkleProof string
}

// GetEscrowAddress derives escrow destination for the inscription outpoint.
// The derivation is deterministic, callers on different hosts agree on the
// address without coordination.
func GetEscrowAddress(inscriptionOutpoint bitcoin.Outpoint, escrowPublicKey string, networkParams *chaincfg.Params) (*EscrowAddress, error) {
	binding, err := commitment.NewEscrowBinding(inscriptionOutpoint, escrowPublicKey, networkParams)
	if err != nil {
		return nil, err
	}

	return &EscrowAddress{
		Address:     binding.Address().EncodeAddress(),
		MerkleProof: binding.MerkleProofHex(),
	}, nil
}
