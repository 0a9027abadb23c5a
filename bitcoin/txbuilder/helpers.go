// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// InjectSignerInputIndexes writes signing parties input indexes into PSBT Unknowns field,
// replacing helping keys written earlier. Keys are written in ascending order so equal
// index maps produce equal serialized packets.
func InjectSignerInputIndexes(p *psbt.Packet, indexes map[InputsHelpingKey][]int) {
	kept := p.Unknowns[:0]
	for _, unknown := range p.Unknowns {
		if _, err := InputsHelpingKeyFromBytes(unknown.Key); err != nil {
			kept = append(kept, unknown)
		}
	}
	p.Unknowns = kept

	keys := make([]InputsHelpingKey, 0, len(indexes))
	for key := range indexes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		value := make([]byte, len(indexes[key]))
		for idx, inputIdx := range indexes[key] {
			value[idx] = byte(inputIdx)
		}

		p.Unknowns = append(p.Unknowns, &psbt.Unknown{Key: key.Bytes(), Value: value})
	}
}

// ExtractSignerInputIndexesFromPSBT returns map with signing parties and input indexes to sign.
func ExtractSignerInputIndexesFromPSBT(data []byte) (map[InputsHelpingKey][]int, error) {
	var result = make(map[InputsHelpingKey][]int, 2)
	p, err := psbt.NewFromRawBytes(bytes.NewBuffer(data), false)
	if err != nil {
		return nil, err
	}

	for _, unknown := range p.Unknowns {
		if len(unknown.Key) != 1 {
			continue
		}

		key, err := InputsHelpingKeyFromBytes(unknown.Key)
		if err != nil {
			return nil, err
		}

		result[key] = make([]int, len(unknown.Value))
		for idx, val := range unknown.Value {
			result[key][idx] = int(val)
		}
	}

	return result, nil
}
