// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package agreement

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

func TestMarshalUnmarshalEventRoundTrips(t *testing.T) {
	ev := Event{
		Header: ledger.ConsensusHeader{
			Round:         7,
			Iteration:     2,
			PrevBlockHash: [32]byte{0x01},
			BlockHash:     [32]byte{0x02},
		},
		Seed:   ledger.Seed{0x03},
		Step:   ledger.StepRatification,
		Signer: []byte{0xAA, 0xBB, 0xCC},
		Vote:   ledger.Vote{Kind: ledger.VoteValid, Hash: [32]byte{0x04}},
	}
	copy(ev.Signature[:], bytes.Repeat([]byte{0x05}, 48))

	buf := new(bytes.Buffer)
	require.NoError(t, MarshalEvent(buf, ev))

	got, err := UnmarshalEvent(buf)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestUnmarshalEventRejectsTruncatedInput(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x01, 0x02, 0x03})
	_, err := UnmarshalEvent(buf)
	assert.Error(t, err)
}
