// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/commitment"
	"ordescrow/bitcoin/txbuilder"
	"ordescrow/bitcoin/txchain"
)

// mockDataSource is an in-memory txchain.DataSource.
type mockDataSource struct {
	unspents         map[string]*txchain.Unspents
	inscriptions     map[string][]txchain.InscriptionRecord
	inscriptionUTXOs map[string]*bitcoin.UTXO
}

func newMockDataSource() *mockDataSource {
	return &mockDataSource{
		unspents:         make(map[string]*txchain.Unspents),
		inscriptions:     make(map[string][]txchain.InscriptionRecord),
		inscriptionUTXOs: make(map[string]*bitcoin.UTXO),
	}
}

func (m *mockDataSource) GetUnspents(_ context.Context, address string, _ txchain.UnspentsFilter) (*txchain.Unspents, error) {
	if unspents, ok := m.unspents[address]; ok {
		return unspents, nil
	}

	return &txchain.Unspents{}, nil
}

func (m *mockDataSource) GetInscriptions(_ context.Context, outpoint bitcoin.Outpoint) ([]txchain.InscriptionRecord, error) {
	return m.inscriptions[outpoint.String()], nil
}

func (m *mockDataSource) GetInscriptionUTXO(_ context.Context, inscriptionID string) (*bitcoin.UTXO, error) {
	utxo, ok := m.inscriptionUTXOs[inscriptionID]
	if !ok {
		return nil, errors.New("unknown inscription")
	}

	return utxo, nil
}

// chainFixture holds deterministic participants of a purchase.
type chainFixture struct {
	networkParams *chaincfg.Params
	ds            *mockDataSource
	builder       *txchain.ChainBuilder

	buyerPublicKey        string
	buyerAddress          string
	buyerTaprootPublicKey string
	buyerReceiveAddress   string

	sellerPublicKey      string
	sellerAddress        string
	sellerPaymentAddress string

	escrowPublicKey string
}

func publicKeyFromSeed(seed byte) *btcec.PublicKey {
	seedBytes := make([]byte, 32)
	seedBytes[31] = seed
	_, publicKey := btcec.PrivKeyFromBytes(seedBytes)

	return publicKey
}

func taprootAddress(t *testing.T, publicKey *btcec.PublicKey, networkParams *chaincfg.Params) string {
	outputKey := txscript.ComputeTaprootKeyNoScript(publicKey)
	address, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), networkParams)
	require.NoError(t, err)

	return address.EncodeAddress()
}

func witnessAddress(t *testing.T, publicKey *btcec.PublicKey, networkParams *chaincfg.Params) string {
	address, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(publicKey.SerializeCompressed()), networkParams)
	require.NoError(t, err)

	return address.EncodeAddress()
}

func pkScriptOf(t *testing.T, address string, networkParams *chaincfg.Params) []byte {
	decoded, err := btcutil.DecodeAddress(address, networkParams)
	require.NoError(t, err)

	pkScript, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	return pkScript
}

func newChainFixture(t *testing.T) *chainFixture {
	networkParams := &chaincfg.TestNet3Params
	ds := newMockDataSource()

	var (
		buyerKey        = publicKeyFromSeed(1)
		buyerTaprootKey = publicKeyFromSeed(2)
		sellerKey       = publicKeyFromSeed(3)
		escrowKey       = publicKeyFromSeed(4)
	)

	fixture := &chainFixture{
		networkParams:         networkParams,
		ds:                    ds,
		buyerPublicKey:        hex.EncodeToString(buyerKey.SerializeCompressed()),
		buyerAddress:          witnessAddress(t, buyerKey, networkParams),
		buyerTaprootPublicKey: hex.EncodeToString(buyerTaprootKey.SerializeCompressed()),
		buyerReceiveAddress:   taprootAddress(t, buyerTaprootKey, networkParams),
		sellerPublicKey:       hex.EncodeToString(sellerKey.SerializeCompressed()),
		sellerAddress:         taprootAddress(t, sellerKey, networkParams),
		sellerPaymentAddress:  witnessAddress(t, sellerKey, networkParams),
		escrowPublicKey:       hex.EncodeToString(escrowKey.SerializeCompressed()),
	}

	fixture.builder = txchain.NewChainBuilder(txchain.Config{
		NetworkParams:           networkParams,
		BaseFeeRateSatPerKVByte: big.NewInt(2000),
	}, ds)

	return fixture
}

// fundBuyer registers spendable buyer utxos, sorted by amount descending.
func (fixture *chainFixture) fundBuyer(t *testing.T, amounts ...int64) {
	script := pkScriptOf(t, fixture.buyerAddress, fixture.networkParams)

	utxos := make([]bitcoin.UTXO, 0, len(amounts))
	for idx, amount := range amounts {
		hash := chainhash.Hash{0xb0, byte(idx + 1)}
		utxos = append(utxos, bitcoin.UTXO{
			TxHash:  hash.String(),
			Index:   0,
			Amount:  big.NewInt(amount),
			Script:  script,
			Address: fixture.buyerAddress,
		})
	}

	fixture.ds.unspents[fixture.buyerAddress] = &txchain.Unspents{
		Spendable:  utxos,
		TotalCount: len(utxos),
	}
}

// listInscription registers inscription at a fresh outpoint and returns
// seller pst listing it for the provided price.
func (fixture *chainFixture) listInscription(t *testing.T, seed byte, price int64) (inscriptionID string, sellerPST string) {
	hash := chainhash.Hash{0xaa, seed}
	inscriptionID = hash.String() + "i0"

	utxo := &bitcoin.UTXO{
		TxHash:  hash.String(),
		Index:   0,
		Amount:  big.NewInt(10000),
		Script:  pkScriptOf(t, fixture.sellerAddress, fixture.networkParams),
		Address: fixture.sellerAddress,
	}
	fixture.ds.inscriptionUTXOs[inscriptionID] = utxo
	fixture.ds.inscriptions[utxo.Outpoint().String()] = []txchain.InscriptionRecord{{
		ID:       inscriptionID,
		Outpoint: utxo.Outpoint(),
		Owner:    fixture.sellerAddress,
	}}

	sellerPST, err := fixture.builder.CreateInscriptionPST(context.Background(), txchain.CreateInscriptionPSTParams{
		InscriptionID:         inscriptionID,
		SellerPublicKey:       fixture.sellerPublicKey,
		SellerAddress:         fixture.sellerAddress,
		ReceivePaymentAddress: fixture.sellerPaymentAddress,
		Price:                 big.NewInt(price),
		EscrowPublicKey:       fixture.escrowPublicKey,
	})
	require.NoError(t, err)

	return inscriptionID, sellerPST
}

func (fixture *chainFixture) buildParams(sellerPSTs ...string) txchain.BuildTransactionsParams {
	return txchain.BuildTransactionsParams{
		SellerPSTs:            sellerPSTs,
		BuyerPublicKey:        fixture.buyerPublicKey,
		BuyerAddress:          fixture.buyerAddress,
		BuyerTaprootPublicKey: fixture.buyerTaprootPublicKey,
		BuyerReceiveAddress:   fixture.buyerReceiveAddress,
		EscrowPublicKey:       fixture.escrowPublicKey,
		EffectiveFeeRate:      big.NewInt(8),
		UniqueID:              "trade-1",
	}
}

func decodePST(t *testing.T, raw string) *psbt.Packet {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(raw), true)
	require.NoError(t, err)

	return packet
}

func TestBuildTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("full chain of two inscriptions", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 100000000, 50000)

		_, firstPST := fixture.listInscription(t, 1, 50000)
		_, secondPST := fixture.listInscription(t, 2, 70000)

		response, err := fixture.builder.BuildTransactions(ctx, fixture.buildParams(firstPST, secondPST))
		require.NoError(t, err)
		require.Len(t, response.SecondTransactionPSTs, 2)

		firstTx := decodePST(t, response.FirstTransactionPST)
		secondTxs := []*psbt.Packet{
			decodePST(t, response.SecondTransactionPSTs[0]),
			decodePST(t, response.SecondTransactionPSTs[1]),
		}
		thirdTx := decodePST(t, response.ThirdTransactionPST)

		// first transaction: one commitment output per inscription, one
		// cpfp funding output, optional change.
		buyerPayment, err := commitment.NewPayment(commitment.Params{
			PublicKey: fixture.buyerTaprootPublicKey,
			Envelope: commitment.Envelope{
				ID:       "trade-1",
				Receiver: fixture.buyerReceiveAddress,
			},
			NetworkParams: fixture.networkParams,
		})
		require.NoError(t, err)

		commitmentPkScript, err := buyerPayment.PkScript()
		require.NoError(t, err)

		require.GreaterOrEqual(t, len(firstTx.UnsignedTx.TxOut), 3)
		require.LessOrEqual(t, len(firstTx.UnsignedTx.TxOut), 4)
		for idx := 0; idx < 3; idx++ {
			require.Equal(t, commitmentPkScript, firstTx.UnsignedTx.TxOut[idx].PkScript, idx)
		}
		require.EqualValues(t, 50000, firstTx.UnsignedTx.TxOut[0].Value)
		require.EqualValues(t, 70000, firstTx.UnsignedTx.TxOut[1].Value)

		// second transactions: seller inscription input plus chained
		// buyer funding input, untouched seller outputs, zero fee.
		for idx, secondTx := range secondTxs {
			require.Len(t, secondTx.UnsignedTx.TxIn, 2)
			require.Len(t, secondTx.UnsignedTx.TxOut, 2)
			require.Equal(t, firstTx.UnsignedTx.TxHash(), secondTx.UnsignedTx.TxIn[1].PreviousOutPoint.Hash)
			require.EqualValues(t, idx, secondTx.UnsignedTx.TxIn[1].PreviousOutPoint.Index)

			fee, err := txbuilder.GetTotalFees(secondTx)
			require.NoError(t, err)
			require.True(t, fee.Sign() == 0, "second transaction must not pay fees")

			// escrow output routes the inscription to its binding address.
			inscriptionOutpoint := bitcoin.Outpoint{
				TxHash: secondTx.UnsignedTx.TxIn[0].PreviousOutPoint.Hash.String(),
				Index:  secondTx.UnsignedTx.TxIn[0].PreviousOutPoint.Index,
			}
			escrowAddress, err := txchain.GetEscrowAddress(inscriptionOutpoint, fixture.escrowPublicKey, fixture.networkParams)
			require.NoError(t, err)
			require.Equal(t, pkScriptOf(t, escrowAddress.Address, fixture.networkParams), secondTx.UnsignedTx.TxOut[0].PkScript)
		}

		// third transaction: both escrow outputs and the cpfp funding
		// output chained, inscriptions returned to the receive address.
		require.Len(t, thirdTx.UnsignedTx.TxIn, 3)
		require.Len(t, thirdTx.UnsignedTx.TxOut, 2)

		receivePkScript := pkScriptOf(t, fixture.buyerReceiveAddress, fixture.networkParams)
		for _, output := range thirdTx.UnsignedTx.TxOut {
			require.Equal(t, receivePkScript, output.PkScript)
			require.EqualValues(t, 10000, output.Value)
		}

		for idx := 0; idx < 2; idx++ {
			require.Equal(t, secondTxs[idx].UnsignedTx.TxHash(), thirdTx.UnsignedTx.TxIn[idx].PreviousOutPoint.Hash)
			require.NotEmpty(t, thirdTx.Inputs[idx].TaprootLeafScript)
			require.NotEmpty(t, thirdTx.Inputs[idx].TaprootMerkleRoot)
		}
		require.Equal(t, firstTx.UnsignedTx.TxHash(), thirdTx.UnsignedTx.TxIn[2].PreviousOutPoint.Hash)

		// the whole chain pays at least the effective fee rate.
		firstFee, err := txbuilder.GetTotalFees(firstTx)
		require.NoError(t, err)
		thirdFee, err := txbuilder.GetTotalFees(thirdTx)
		require.NoError(t, err)

		chainVBytes := big.NewInt(0)
		for _, packet := range []*psbt.Packet{firstTx, secondTxs[0], secondTxs[1], thirdTx} {
			chainVBytes.Add(chainVBytes, txbuilder.RoughTxSizeEstimate(len(packet.UnsignedTx.TxIn), len(packet.UnsignedTx.TxOut)))
		}
		requiredFee := new(big.Int).Mul(big.NewInt(8), chainVBytes)
		paidFee := new(big.Int).Add(firstFee, thirdFee)
		require.True(t, paidFee.Cmp(requiredFee) >= 0, "paid %s, required %s", paidFee, requiredFee)

		// overshoot stays within one sat/vB over the withdraw transaction size.
		tolerance := txbuilder.RoughTxSizeEstimate(len(thirdTx.UnsignedTx.TxIn), len(thirdTx.UnsignedTx.TxOut))
		overshoot := new(big.Int).Sub(paidFee, requiredFee)
		require.True(t, overshoot.Cmp(tolerance) <= 0, "overshoot %s, tolerance %s", overshoot, tolerance)

		// serialization round trip.
		reEncoded, err := firstTx.B64Encode()
		require.NoError(t, err)
		require.Equal(t, response.FirstTransactionPST, reEncoded)

		// signer roles.
		firstRoles, err := txbuilder.ExtractSignerInputIndexesFromPSBT(mustSerialize(t, firstTx))
		require.NoError(t, err)
		require.Equal(t, map[txbuilder.InputsHelpingKey][]int{
			txbuilder.BuyerInputsHelpingKey: {0},
		}, firstRoles)

		secondRoles, err := txbuilder.ExtractSignerInputIndexesFromPSBT(mustSerialize(t, secondTxs[0]))
		require.NoError(t, err)
		require.Equal(t, map[txbuilder.InputsHelpingKey][]int{
			txbuilder.SellerInputsHelpingKey: {0},
			txbuilder.BuyerInputsHelpingKey:  {1},
		}, secondRoles)

		thirdRoles, err := txbuilder.ExtractSignerInputIndexesFromPSBT(mustSerialize(t, thirdTx))
		require.NoError(t, err)
		require.Equal(t, map[txbuilder.InputsHelpingKey][]int{
			txbuilder.BuyerInputsHelpingKey:  {0, 1, 2},
			txbuilder.EscrowInputsHelpingKey: {0, 1},
		}, thirdRoles)
	})

	t.Run("no seller psts", func(t *testing.T) {
		fixture := newChainFixture(t)

		_, err := fixture.builder.BuildTransactions(ctx, fixture.buildParams())
		require.ErrorIs(t, err, txchain.ErrNoInscriptionPSTs)
	})

	t.Run("legacy buyer address is rejected before utxo lookup", func(t *testing.T) {
		fixture := newChainFixture(t)
		_, sellerPST := fixture.listInscription(t, 1, 50000)

		legacyAddress, err := btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(publicKeyFromSeed(1).SerializeCompressed()), fixture.networkParams)
		require.NoError(t, err)

		params := fixture.buildParams(sellerPST)
		params.BuyerAddress = legacyAddress.EncodeAddress()

		// buyer funds deliberately not registered, rejection must come first.
		_, err = fixture.builder.BuildTransactions(ctx, params)
		require.ErrorIs(t, err, txchain.ErrUnsupportedBuyerAddress)
	})

	t.Run("seller pst without witness data", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 100000000)

		_, sellerPST := fixture.listInscription(t, 1, 50000)

		stripped := decodePST(t, sellerPST)
		stripped.Inputs[0].WitnessUtxo = nil
		strippedPST, err := stripped.B64Encode()
		require.NoError(t, err)

		_, err = fixture.builder.BuildTransactions(ctx, fixture.buildParams(strippedPST))
		require.ErrorIs(t, err, txchain.ErrInvalidSellerPST)
	})

	t.Run("moved inscription", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 100000000)

		inscriptionID, sellerPST := fixture.listInscription(t, 1, 50000)
		delete(fixture.ds.inscriptions, fixture.ds.inscriptionUTXOs[inscriptionID].Outpoint().String())

		_, err := fixture.builder.BuildTransactions(ctx, fixture.buildParams(sellerPST))
		require.ErrorIs(t, err, txchain.ErrInscriptionNotFound)
	})

	t.Run("foreign inscription owner", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 100000000)

		inscriptionID, sellerPST := fixture.listInscription(t, 1, 50000)
		outpoint := fixture.ds.inscriptionUTXOs[inscriptionID].Outpoint().String()
		fixture.ds.inscriptions[outpoint][0].Owner = fixture.buyerReceiveAddress

		_, err := fixture.builder.BuildTransactions(ctx, fixture.buildParams(sellerPST))
		require.ErrorIs(t, err, txchain.ErrInscriptionOwnershipMismatch)
	})

	t.Run("no spendable buyer utxos", func(t *testing.T) {
		fixture := newChainFixture(t)
		_, sellerPST := fixture.listInscription(t, 1, 50000)

		_, err := fixture.builder.BuildTransactions(ctx, fixture.buildParams(sellerPST))
		require.ErrorIs(t, err, bitcoin.ErrNoSpendableUTXOs)
	})

	t.Run("insufficient buyer balance", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 20000)

		_, sellerPST := fixture.listInscription(t, 1, 50000)

		_, err := fixture.builder.BuildTransactions(ctx, fixture.buildParams(sellerPST))
		require.ErrorIs(t, err, bitcoin.ErrInsufficientNativeBalance)
	})

	t.Run("fee convergence iteration bound", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 100000000)

		_, sellerPST := fixture.listInscription(t, 1, 50000)

		// the seeded cpfp funding never satisfies 8 sat/vB in one pass.
		builder := txchain.NewChainBuilder(txchain.Config{
			NetworkParams:           fixture.networkParams,
			BaseFeeRateSatPerKVByte: big.NewInt(2000),
			MaxFeeIterations:        1,
		}, fixture.ds)

		_, err := builder.BuildTransactions(ctx, fixture.buildParams(sellerPST))
		require.ErrorIs(t, err, txchain.ErrFeeConvergenceTimeout)
	})

	t.Run("extra outputs ride the withdraw transaction", func(t *testing.T) {
		fixture := newChainFixture(t)
		fixture.fundBuyer(t, 100000000)

		_, sellerPST := fixture.listInscription(t, 1, 50000)

		// extra output total above the seeded cpfp funding must not
		// abort the build, the funding grows to cover it.
		params := fixture.buildParams(sellerPST)
		params.ExtraOutputs = []bitcoin.Output{{
			Address: fixture.sellerPaymentAddress,
			Amount:  big.NewInt(1500),
		}}

		response, err := fixture.builder.BuildTransactions(ctx, params)
		require.NoError(t, err)

		firstTx := decodePST(t, response.FirstTransactionPST)
		require.True(t, firstTx.UnsignedTx.TxOut[1].Value > 1500, "cpfp funding must cover the extra outputs")

		thirdTx := decodePST(t, response.ThirdTransactionPST)
		require.Len(t, thirdTx.UnsignedTx.TxOut, 2)
		require.Equal(t, pkScriptOf(t, fixture.sellerPaymentAddress, fixture.networkParams), thirdTx.UnsignedTx.TxOut[1].PkScript)
		require.EqualValues(t, 1500, thirdTx.UnsignedTx.TxOut[1].Value)

		thirdFee, err := txbuilder.GetTotalFees(thirdTx)
		require.NoError(t, err)
		require.True(t, thirdFee.Sign() > 0)
	})
}

func mustSerialize(t *testing.T, packet *psbt.Packet) []byte {
	w := bytes.NewBuffer(nil)
	require.NoError(t, packet.Serialize(w))

	return w.Bytes()
}
