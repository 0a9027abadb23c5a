// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/sync/errgroup"

	"ordescrow/bitcoin"
)

// validateInscriptionPSTs confirms seller-signed psts reference unmoved
// inscriptions owned by the claimed sellers. Validations run concurrently,
// a single failure aborts the whole batch.
func (b *ChainBuilder) validateInscriptionPSTs(ctx context.Context, packets []*psbt.Packet) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, packet := range packets {
		packet := packet
		group.Go(func() error {
			return b.validateInscriptionPST(groupCtx, packet)
		})
	}

	return group.Wait()
}

// validateInscriptionPST validates single seller-signed inscription pst.
func (b *ChainBuilder) validateInscriptionPST(ctx context.Context, packet *psbt.Packet) error {
	if len(packet.Inputs) != 1 || len(packet.UnsignedTx.TxIn) != 1 {
		return errors.Join(ErrInvalidSellerPST, errors.New("exactly one input is required"))
	}

	input := packet.Inputs[0]
	if input.WitnessUtxo == nil {
		return errors.Join(ErrInvalidSellerPST, errors.New("no witness data"))
	}

	sellerAddress, err := addressFromPkScript(input.WitnessUtxo.PkScript, b.txBuilder.NetworkParams())
	if err != nil {
		return errors.Join(ErrInvalidSellerPST, err)
	}

	outpoint := bitcoin.Outpoint{
		TxHash: packet.UnsignedTx.TxIn[0].PreviousOutPoint.Hash.String(),
		Index:  packet.UnsignedTx.TxIn[0].PreviousOutPoint.Index,
	}

	records, err := b.dataSource.GetInscriptions(ctx, outpoint)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.Join(ErrInscriptionNotFound, fmt.Errorf("outpoint %s", outpoint))
	}

	for _, record := range records {
		if record.Owner != sellerAddress {
			return errors.Join(ErrInscriptionOwnershipMismatch,
				fmt.Errorf("inscription %s is owned by %s", record.ID, record.Owner))
		}
	}

	return nil
}

// addressFromPkScript derives funding address from the output script.
func addressFromPkScript(pkScript []byte, networkParams *chaincfg.Params) (string, error) {
	_, addresses, _, err := txscript.ExtractPkScriptAddrs(pkScript, networkParams)
	if err != nil {
		return "", err
	}
	if len(addresses) == 0 {
		return "", errors.New("no address in output script")
	}

	return addresses[0].EncodeAddress(), nil
}
