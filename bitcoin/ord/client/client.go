// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package client provides http access to an ord indexer node.
package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"ordescrow/bitcoin"
	"ordescrow/bitcoin/txchain"
)

// ErrOrdClient defines errors class for ord indexer client.
var ErrOrdClient = errors.New("ord client")

// defaultTimeout defines http request timeout used when config leaves it empty.
const defaultTimeout = 10 * time.Second

// Config defines configuration for the ord indexer client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client communicates with an ord indexer over http.
// Implements txchain.DataSource.
type Client struct {
	baseURL string
	http    *http.Client
}

// New is a constructor for ord indexer Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.Join(ErrOrdClient, errors.New("empty base url"))
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		baseURL: config.BaseURL,
		http:    &http.Client{Timeout: config.Timeout},
	}, nil
}

// utxoResponse describes unspent output in indexer responses.
type utxoResponse struct {
	TxHash  string `json:"txHash"`
	Index   uint32 `json:"index"`
	Amount  int64  `json:"amount"`
	Script  string `json:"script"`
	Address string `json:"address"`
}

// unspentsResponse describes address unspents listing response.
type unspentsResponse struct {
	Spendable   []utxoResponse `json:"spendable"`
	Unspendable []utxoResponse `json:"unspendable"`
	TotalCount  int            `json:"totalCount"`
}

// inscriptionResponse describes inscription record in indexer responses.
type inscriptionResponse struct {
	ID       string `json:"id"`
	Outpoint string `json:"outpoint"`
	Owner    string `json:"owner"`
}

// GetUnspents lists unspent outputs of the address.
func (client *Client) GetUnspents(ctx context.Context, address string, filter txchain.UnspentsFilter) (*txchain.Unspents, error) {
	endpoint := fmt.Sprintf("%s/api/v1/address/%s/utxos", client.baseURL, url.PathEscape(address))

	query := url.Values{}
	for _, rarity := range filter.Rarity {
		query.Add("rarity", rarity)
	}
	if filter.Type != "" {
		query.Set("type", filter.Type)
	}
	if filter.Sort != "" {
		query.Set("sort", filter.Sort)
	}
	if len(query) != 0 {
		endpoint += "?" + query.Encode()
	}

	var response unspentsResponse
	err := client.get(ctx, endpoint, &response)
	if err != nil {
		return nil, err
	}

	spendable, err := toUTXOs(response.Spendable)
	if err != nil {
		return nil, errors.Join(ErrOrdClient, err)
	}

	unspendable, err := toUTXOs(response.Unspendable)
	if err != nil {
		return nil, errors.Join(ErrOrdClient, err)
	}

	return &txchain.Unspents{
		Spendable:   spendable,
		Unspendable: unspendable,
		TotalCount:  response.TotalCount,
	}, nil
}

// GetInscriptions lists inscription records located at the outpoint.
func (client *Client) GetInscriptions(ctx context.Context, outpoint bitcoin.Outpoint) ([]txchain.InscriptionRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/outpoint/%s/inscriptions", client.baseURL, url.PathEscape(outpoint.String()))

	var response []inscriptionResponse
	err := client.get(ctx, endpoint, &response)
	if err != nil {
		return nil, err
	}

	records := make([]txchain.InscriptionRecord, 0, len(response))
	for _, record := range response {
		recordOutpoint, err := bitcoin.NewOutpointFromString(record.Outpoint)
		if err != nil {
			return nil, errors.Join(ErrOrdClient, err)
		}

		records = append(records, txchain.InscriptionRecord{
			ID:       record.ID,
			Outpoint: recordOutpoint,
			Owner:    record.Owner,
		})
	}

	return records, nil
}

// GetInscriptionUTXO returns utxo the inscription is bound to.
func (client *Client) GetInscriptionUTXO(ctx context.Context, inscriptionID string) (*bitcoin.UTXO, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inscription/%s/utxo", client.baseURL, url.PathEscape(inscriptionID))

	var response utxoResponse
	err := client.get(ctx, endpoint, &response)
	if err != nil {
		return nil, err
	}

	utxos, err := toUTXOs([]utxoResponse{response})
	if err != nil {
		return nil, errors.Join(ErrOrdClient, err)
	}

	return &utxos[0], nil
}

// get performs http get request decoding json response body into value.
func (client *Client) get(ctx context.Context, endpoint string, value any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Join(ErrOrdClient, err)
	}

	response, err := client.http.Do(request)
	if err != nil {
		return errors.Join(ErrOrdClient, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return errors.Join(ErrOrdClient, fmt.Errorf("unexpected status code: %d", response.StatusCode))
	}

	err = json.NewDecoder(response.Body).Decode(value)
	if err != nil {
		return errors.Join(ErrOrdClient, err)
	}

	return nil
}

// toUTXOs converts indexer utxo responses to utxos.
func toUTXOs(responses []utxoResponse) ([]bitcoin.UTXO, error) {
	utxos := make([]bitcoin.UTXO, 0, len(responses))
	for _, response := range responses {
		script, err := hex.DecodeString(response.Script)
		if err != nil {
			return nil, err
		}

		utxos = append(utxos, bitcoin.UTXO{
			TxHash:  response.TxHash,
			Index:   response.Index,
			Amount:  big.NewInt(response.Amount),
			Script:  script,
			Address: response.Address,
		})
	}

	return utxos, nil
}
