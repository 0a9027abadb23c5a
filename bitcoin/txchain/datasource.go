// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"context"

	"ordescrow/bitcoin"
)

// InscriptionRecord describes inscription index record at a concrete outpoint.
type InscriptionRecord struct {
	ID       string
	Outpoint bitcoin.Outpoint
	Owner    string // current owner address.
}

// UnspentsFilter describes optional unspents listing parameters.
type UnspentsFilter struct {
	Rarity []string
	Type   string
	Sort   string
}

// Unspents describes address unspent outputs split by spendability.
type Unspents struct {
	Spendable   []bitcoin.UTXO
	Unspendable []bitcoin.UTXO
	TotalCount  int
}

// DataSource provides read access to external utxo and inscription indexes.
type DataSource interface {
	// GetUnspents lists unspent outputs of the address.
	GetUnspents(ctx context.Context, address string, filter UnspentsFilter) (*Unspents, error)
	// GetInscriptions lists inscription records located at the outpoint.
	GetInscriptions(ctx context.Context, outpoint bitcoin.Outpoint) ([]InscriptionRecord, error)
	// GetInscriptionUTXO returns utxo the inscription is bound to.
	GetInscriptionUTXO(ctx context.Context, inscriptionID string) (*bitcoin.UTXO, error)
}
