// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/txchain"
)

// ErrOutpointSpent defines that outpoint reported by the indexer is already spent on chain.
var ErrOutpointSpent = errors.New("outpoint is spent")

// NodeConfig defines bitcoin core rpc connection configuration.
type NodeConfig struct {
	Host string
	User string
	Pass string
}

// VerifyingDataSource wraps a data source and cross-checks inscription
// utxos it reports against a bitcoin core node, guarding against a stale
// or lying indexer. Implements txchain.DataSource.
type VerifyingDataSource struct {
	inner txchain.DataSource
	node  *rpcclient.Client
}

// NewVerifyingDataSource is a constructor for VerifyingDataSource.
func NewVerifyingDataSource(inner txchain.DataSource, config NodeConfig) (*VerifyingDataSource, error) {
	// http post mode, notifications are not supported there.
	node, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         config.Host,
		User:         config.User,
		Pass:         config.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, errors.Join(ErrOrdClient, err)
	}

	return &VerifyingDataSource{
		inner: inner,
		node:  node,
	}, nil
}

// GetUnspents lists unspent outputs of the address.
func (v *VerifyingDataSource) GetUnspents(ctx context.Context, address string, filter txchain.UnspentsFilter) (*txchain.Unspents, error) {
	return v.inner.GetUnspents(ctx, address, filter)
}

// GetInscriptions lists inscription records located at the outpoint,
// confirming the outpoint is unspent first.
func (v *VerifyingDataSource) GetInscriptions(ctx context.Context, outpoint bitcoin.Outpoint) ([]txchain.InscriptionRecord, error) {
	err := v.verifyUnspent(outpoint)
	if err != nil {
		return nil, err
	}

	return v.inner.GetInscriptions(ctx, outpoint)
}

// GetInscriptionUTXO returns utxo the inscription is bound to,
// confirming the utxo is unspent on chain.
func (v *VerifyingDataSource) GetInscriptionUTXO(ctx context.Context, inscriptionID string) (*bitcoin.UTXO, error) {
	utxo, err := v.inner.GetInscriptionUTXO(ctx, inscriptionID)
	if err != nil {
		return nil, err
	}

	err = v.verifyUnspent(utxo.Outpoint())
	if err != nil {
		return nil, err
	}

	return utxo, nil
}

// Close shuts down the underlying rpc connection.
func (v *VerifyingDataSource) Close() {
	v.node.Shutdown()
}

// verifyUnspent confirms the outpoint is present in the node utxo set,
// mempool included.
func (v *VerifyingDataSource) verifyUnspent(outpoint bitcoin.Outpoint) error {
	txHash, err := chainhash.NewHashFromStr(outpoint.TxHash)
	if err != nil {
		return errors.Join(ErrOrdClient, err)
	}

	txOut, err := v.node.GetTxOut(txHash, outpoint.Index, true)
	if err != nil {
		return errors.Join(ErrOrdClient, err)
	}
	if txOut == nil {
		return errors.Join(ErrOutpointSpent, fmt.Errorf("outpoint %s", outpoint))
	}

	return nil
}
