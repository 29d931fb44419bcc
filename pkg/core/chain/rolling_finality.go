// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"github.com/pkg/errors"

	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/database"
)

// rollingFinalityLabel derives the finality label a newly accepted block
// should carry (spec §4.6 step 3, acceptor.rs's rolling_finality).
//
// A block with any non-attested prior iteration (pni > 0) is Accepted. An
// attested block extending an already-Final tip is immediately Final. An
// attested block extending a non-Final tip promotes to Final unless an
// Accepted ancestor is found within the rolling-finality window, in which
// case it stays Attested - ROLLING_FINALITY_THRESHOLD consecutive
// Attested blocks are enough to consider the oldest of them safely
// irreversible.
func rollingFinalityLabel(t database.Transaction, blk ledger.Block, pni uint8, tipIsFinal bool) (ledger.Label, error) {
	if pni != 0 {
		return ledger.LabelAccepted, nil
	}
	if tipIsFinal {
		return ledger.LabelFinal, nil
	}

	current := blk.Header.Height
	threshold := config.Get().Consensus.RollingFinalityThreshold

	target := uint64(0)
	if current > threshold {
		target = current - threshold
	}

	for h := current; h > target; h-- {
		height := h - 1

		hash, ok, err := t.FetchBlockHashByHeight(height)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.Errorf("chain: missing block at height %d during rolling finality scan", height)
		}

		label, err := t.FetchBlockLabel(hash)
		if err != nil {
			return 0, err
		}

		switch label {
		case ledger.LabelFinal:
			return ledger.LabelFinal, nil
		case ledger.LabelAccepted:
			return ledger.LabelAttested, nil
		}
	}

	return ledger.LabelFinal, nil
}
