// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package commitment

import (
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/ord/inscriptions"
)

// ErrAddressConstruction defines errors class for commitment address building.
var ErrAddressConstruction = errors.New("commitment address construction")

// envelopeContentType defines content type of the serialized envelope payload.
const envelopeContentType string = "application/json"

// redeemLeafIndex defines position of the redeem leaf in the assembled script tree.
const redeemLeafIndex int = 0

// Envelope describes off-chain metadata committed into the data leaf.
// Field order is fixed so equal payloads serialize to equal scripts.
type Envelope struct {
	ID       string `json:"id,omitempty"`       // trade unique identifier.
	Receiver string `json:"receiver,omitempty"` // receiver address placeholder.
	Outpoint string `json:"outpoint,omitempty"` // bound inscription outpoint.
}

// Params describes data needed to derive commitment address.
type Params struct {
	PublicKey     string // hex, 33-byte compressed or 32-byte x-only form.
	Envelope      Envelope
	NetworkParams *chaincfg.Params
}

// Payment describes derived taproot commitment output with the data
// needed to later spend it via the redeem leaf.
type Payment struct {
	address     *btcutil.AddressTaproot
	internalKey *btcec.PublicKey
	tree        *txscript.IndexedTapScriptTree
	redeemLeaf  txscript.TapLeaf
	dataLeaf    txscript.TapLeaf
	merkleRoot  []byte
}

// NewPayment derives taproot commitment address committing two-leaf script tree
// under the provided key: a single-signature redeem path and an unspendable
// envelope path carrying the serialized metadata payload.
func NewPayment(params Params) (_ *Payment, err error) {
	defer func(err *error) {
		if err != nil && *err != nil {
			*err = errors.Join(ErrAddressConstruction, *err)
		}
	}(&err)

	internalKey, err := parsePublicKey(params.PublicKey)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(params.Envelope)
	if err != nil {
		return nil, err
	}

	envelope := &inscriptions.Inscription{
		ContentType: envelopeContentType,
		Body:        payload,
	}
	dataScript, err := envelope.IntoScript()
	if err != nil {
		return nil, err
	}

	redeemScript, err := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(internalKey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	var (
		redeemLeaf = txscript.NewBaseTapLeaf(redeemScript)
		dataLeaf   = txscript.NewBaseTapLeaf(dataScript)
		tree       = txscript.AssembleTaprootScriptTree(redeemLeaf, dataLeaf)
	)

	rootHash := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params.NetworkParams)
	if err != nil {
		return nil, err
	}
	if address == nil {
		return nil, errors.New("address derivation yielded no address")
	}

	return &Payment{
		address:     address,
		internalKey: internalKey,
		tree:        tree,
		redeemLeaf:  redeemLeaf,
		dataLeaf:    dataLeaf,
		merkleRoot:  rootHash[:],
	}, nil
}

// NewEscrowBinding derives commitment address holding the inscription from the
// provided outpoint under the escrow key. The derivation is pure: identical
// inputs always yield identical payments, so the binding is recomputed on
// demand and never stored.
func NewEscrowBinding(inscriptionOutpoint bitcoin.Outpoint, escrowPublicKey string, networkParams *chaincfg.Params) (*Payment, error) {
	return NewPayment(Params{
		PublicKey:     escrowPublicKey,
		Envelope:      Envelope{Outpoint: inscriptionOutpoint.String()},
		NetworkParams: networkParams,
	})
}

// Address returns derived taproot address.
func (p *Payment) Address() *btcutil.AddressTaproot {
	return p.address
}

// PkScript returns pay-to-address script of the derived address.
func (p *Payment) PkScript() ([]byte, error) {
	return txscript.PayToAddrScript(p.address)
}

// MerkleProof returns script tree commitment hash needed to spend via the redeem leaf.
func (p *Payment) MerkleProof() []byte {
	return p.merkleRoot
}

// MerkleProofHex returns MerkleProof in hexadecimal form.
func (p *Payment) MerkleProofHex() string {
	return hex.EncodeToString(p.merkleRoot)
}

// InternalKey returns the script tree internal key.
func (p *Payment) InternalKey() *btcec.PublicKey {
	return p.internalKey
}

// DataLeafScript returns the envelope-carrying leaf script.
func (p *Payment) DataLeafScript() []byte {
	return p.dataLeaf.Script
}

// PrepareInput updates psbt input with all data needed to sign the spend of
// this commitment output via the redeem leaf.
func (p *Payment) PrepareInput(input *psbt.PInput) error {
	ctrlBlock := p.tree.LeafMerkleProofs[redeemLeafIndex].ToControlBlock(p.internalKey)
	ctrlBlockBytes, err := ctrlBlock.ToBytes()
	if err != nil {
		return errors.Join(ErrAddressConstruction, err)
	}

	input.TaprootInternalKey = schnorr.SerializePubKey(p.internalKey)
	input.TaprootMerkleRoot = p.merkleRoot
	input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: ctrlBlockBytes,
		Script:       p.redeemLeaf.Script,
		LeafVersion:  p.redeemLeaf.LeafVersion,
	}}

	return nil
}

// parsePublicKey parses hex-encoded public key in compressed or x-only form.
// X-only keys are lifted to the even-parity point, matching taproot internal key rules.
func parsePublicKey(publicKey string) (*btcec.PublicKey, error) {
	publicKeyBytes, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, err
	}

	switch len(publicKeyBytes) {
	case 33:
		return btcec.ParsePubKey(publicKeyBytes)
	case 32:
		return schnorr.ParsePubKey(publicKeyBytes)
	default:
		return nil, errors.New("public key must be 33-byte compressed or 32-byte x-only")
	}
}
