// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package chain implements block acceptance: header verification, VM
// application, rolling finality, transactional persistence, selective
// provisioner updates and reverts (spec §4.6, §4.9), grounded on
// original_source/node/src/chain/acceptor.rs's Acceptor.
package chain

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vireo-chain/vireo/internal/log"
	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/driver"
	"github.com/vireo-chain/vireo/pkg/core/consensus/phase"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/data/transactions"
	"github.com/vireo-chain/vireo/pkg/core/database"
	"github.com/vireo-chain/vireo/pkg/core/mempool"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
	"github.com/vireo-chain/vireo/pkg/vm"
)

var lg = log.WithProcess("chain")

// errStateMismatch marks a VM/header state commitment disagreement fatal
// to the attempted block (spec §7 AcceptError::StateRootMismatch):
// try_accept_block aborts the transaction and the caller reverts to the
// last finalized state rather than trusting the tip further.
var errStateMismatch = errors.New("chain: VM state commitment does not match header")

// RevertTargetKind discriminates try_revert's two supported destinations
// (acceptor.rs's RevertTarget; LastEpoch is unimplemented upstream too).
type RevertTargetKind uint8

const (
	RevertToLastFinalized RevertTargetKind = iota
	RevertToCommit
)

// RevertTarget names where try_revert should unwind the chain to.
type RevertTarget struct {
	Kind      RevertTargetKind
	StateHash [32]byte
}

// Acceptor drives block acceptance and owns the consensus round currently
// in flight. Only one try_accept_block may run at a time (spec §5
// "exclusive tip write lock"); mu serializes both acceptance and revert.
type Acceptor struct {
	mu sync.Mutex

	db database.DB
	vm vm.VM
	eb *eventbus.EventBus
	mp *mempool.Mempool

	committees   *committee.Set
	provisioners *user.Provisioners
	validator    Validator

	tip ledger.BlockWithLabel

	pubKeyBLS    []byte
	secretKeyBLS []byte

	supervisor  *driver.Supervisor
	task        driver.RoundTask
	cancelRound context.CancelFunc

	candidates map[uint64]ledger.Block
	futureMsgs *futureMsgBuffer
}

// NewAcceptor builds an Acceptor over a genesis or previously persisted
// tip. caster and broadcaster may be nil for a listen-only node that
// never casts its own vote (spec §2 "EnableConsensus" boundary).
func NewAcceptor(
	db database.DB,
	vmImpl vm.VM,
	eb *eventbus.EventBus,
	mp *mempool.Mempool,
	tip ledger.BlockWithLabel,
	provisioners *user.Provisioners,
	validator Validator,
	pubKeyBLS, secretKeyBLS []byte,
	caster driver.VoteCaster,
	broadcaster driver.Broadcaster,
	task driver.RoundTask,
) *Acceptor {
	a := &Acceptor{
		db:           db,
		vm:           vmImpl,
		eb:           eb,
		mp:           mp,
		committees:   committee.NewSet(provisioners),
		provisioners: provisioners,
		validator:    validator,
		tip:          tip,
		pubKeyBLS:    pubKeyBLS,
		secretKeyBLS: secretKeyBLS,
		task:         task,
		candidates:   make(map[uint64]ledger.Block),
		futureMsgs:   newFutureMsgBuffer(),
	}
	a.supervisor = driver.NewSupervisor(a.committees, caster, broadcaster, a.observeStepElapsed)
	return a
}

// observeStepElapsed persists a step's elapsed time for the next round's
// adjustRoundBaseTimeouts to read, logging rather than failing the round
// on a storage error.
func (a *Acceptor) observeStepElapsed(step ledger.StepName, d time.Duration) {
	if err := observeStepElapsed(a.db, step, d); err != nil {
		lg.WithError(err).Warn("failed to persist step elapsed-time sample")
	}
}

// InitConsensus reconciles VM and ledger state at startup, reverting to
// the last finalized state if they disagree, then returns ready to spawn
// a round (acceptor.rs's init_consensus).
func (a *Acceptor) InitConsensus(ctx context.Context) error {
	a.mu.Lock()
	tipHeight := a.tip.Block.Header.Height
	tipStateHash := a.tip.Block.Header.StateHash
	a.mu.Unlock()

	if tipHeight > 0 {
		changed, err := a.vm.GetProvisioners(tipStateHash)
		if err == nil {
			a.mu.Lock()
			a.provisioners = changed
			a.committees = committee.NewSet(changed)
			a.mu.Unlock()
		}
	}

	stateRoot, err := a.vm.GetStateRoot()
	if err != nil {
		return errors.Wrap(err, "chain: init consensus read state root")
	}

	lg.WithField("state_root", stateRoot).Info("VM state loaded")

	if tipHeight > 0 && tipStateHash != stateRoot {
		lg.Warn("VM/ledger state mismatch at startup, reverting to last finalized state")
		if err := a.TryRevert(RevertTarget{Kind: RevertToLastFinalized}); err != nil {
			return errors.Wrap(err, "chain: init consensus revert")
		}
	}

	return nil
}

// GetCurrHeight returns the tip's height.
func (a *Acceptor) GetCurrHeight() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tip.Block.Header.Height
}

// GetCurrHash returns the tip's hash.
func (a *Acceptor) GetCurrHash() [32]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tip.Block.Header.Hash
}

// GetCurrIteration returns the tip's iteration.
func (a *Acceptor) GetCurrIteration() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tip.Block.Header.Iteration
}

// TipHeader returns a copy of the tip's header.
func (a *Acceptor) TipHeader() ledger.Header {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tip.Block.Header
}

// Committees returns the committee set over the current provisioner
// snapshot, letting a RoundTask resolve a round's generator from the
// latest state rather than a copy frozen at round-supervisor construction.
func (a *Acceptor) Committees() *committee.Set {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committees
}

// LatestFinalBlock returns the tip if it is already Final, otherwise the
// most recent Final-labeled ancestor found by walking the ledger
// backward (acceptor.rs's get_latest_final_block).
func (a *Acceptor) LatestFinalBlock() (ledger.Block, error) {
	a.mu.Lock()
	tip := a.tip
	a.mu.Unlock()

	if tip.Label == ledger.LabelFinal {
		return tip.Block, nil
	}
	if tip.Block.Header.Height == 0 {
		return ledger.Block{}, errors.New("chain: no final block below genesis")
	}

	var out ledger.Block
	err := a.db.View(func(t database.Transaction) error {
		for h := tip.Block.Header.Height; h > 0; h-- {
			height := h - 1
			hash, ok, err := t.FetchBlockHashByHeight(height)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			label, err := t.FetchBlockLabel(hash)
			if err != nil {
				return err
			}
			if label != ledger.LabelFinal {
				continue
			}
			blk, err := t.FetchBlock(hash)
			if err != nil {
				return err
			}
			out = blk
			return nil
		}
		return errors.New("chain: could not find the latest final block")
	})
	return out, err
}

// RerouteMessage admits an inbound consensus vote into the round in
// flight if it targets the immediately next round and a round is running,
// buffers it if it targets a round within the future-message window
// (including the immediately next round while no round is running), and
// drops it otherwise (acceptor.rs's reroute_msg enqueue gate, generalized to this
// module's plain Event shape since candidate/message routing by payload
// kind is delegated to the network layer).
func (a *Acceptor) RerouteMessage(ev agreement.Event) {
	currHeight := a.GetCurrHeight()
	round := ev.Header.Round
	offset := config.Get().Consensus.OffsetFutureMsgs

	switch {
	case round <= currHeight:
		return
	case round == currHeight+1 && a.supervisor.IsRunning():
		a.supervisor.CollectVote(ev)
	case round < currHeight+1+offset:
		a.futureMsgs.add(ev)
	}
}

// RestartConsensus aborts any round in flight and spawns a fresh one for
// the round following the current tip (acceptor.rs's restart_consensus /
// spawn_task).
func (a *Acceptor) RestartConsensus(parent context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restartConsensusLocked(parent)
}

// restartConsensusLocked is RestartConsensus's body, callable from within
// TryAcceptBlock without releasing mu (which would let a second
// TryAcceptBlock run concurrently, violating spec §5's single-writer
// rule).
func (a *Acceptor) restartConsensusLocked(parent context.Context) {
	if a.cancelRound != nil {
		a.cancelRound()
	}

	timeouts := adjustRoundBaseTimeouts(a.db)
	ru := phase.NewRoundUpdate(a.tip.Block.Header, a.pubKeyBLS, a.secretKeyBLS, timeouts)
	task := a.task
	sup := a.supervisor

	ctx, cancel := context.WithCancel(parent)
	a.cancelRound = cancel

	lg.WithField("round", ru.Round).Info("restarting consensus")

	for _, ev := range a.futureMsgs.drain(ru.Round) {
		sup.CollectVote(ev)
	}

	go a.runRound(ctx, sup, ru, task)
}

// runRound drives one round to completion and, on a successfully
// attested block, feeds it back into TryAcceptBlock - the node's own
// consensus output is accepted exactly like a block received from a
// peer.
func (a *Acceptor) runRound(ctx context.Context, sup *driver.Supervisor, ru phase.RoundUpdate, task driver.RoundTask) {
	outcome, err := sup.Run(ctx, ru, task)
	if err != nil {
		if ctx.Err() == nil {
			lg.WithError(err).Warn("consensus round failed")
		}
		return
	}
	if !outcome.Success {
		return
	}

	if _, err := a.TryAcceptBlock(outcome.Block, true); err != nil {
		lg.WithError(err).Warn("failed to accept own consensus outcome")
	}
}

// TryAcceptBlock runs the full block-acceptance procedure: header
// verification, VM application, rolling-finality labeling, transactional
// persistence, selective provisioner update and housekeeping, optionally
// restarting consensus for the next round (spec §4.6, acceptor.rs's
// try_accept_block).
func (a *Acceptor) TryAcceptBlock(blk ledger.Block, enableConsensus bool) (ledger.Label, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tip := a.tip

	pni, err := a.validator.Execute(tip.Block.Header, blk.Header, a.committees)
	if err != nil {
		return 0, errors.Wrap(err, "chain: header verification failed")
	}

	tipIsFinal := tip.Label == ledger.LabelFinal

	var result vm.AcceptResult
	var label ledger.Label
	err = a.db.Update(func(t database.Transaction) error {
		result, err = a.vm.Accept(blk)
		if err != nil {
			return errors.Wrap(err, "chain: VM accept failed")
		}
		if result.StateRoot != blk.Header.StateHash || result.EventHash != blk.Header.EventHash {
			return errStateMismatch
		}

		label, err = rollingFinalityLabel(t, blk, pni, tipIsFinal)
		if err != nil {
			return errors.Wrap(err, "chain: rolling finality")
		}

		if err := t.StoreBlock(blk, label); err != nil {
			return err
		}
		if err := t.Put(database.MDHashKey, blk.Header.Hash[:]); err != nil {
			return err
		}
		return t.Put(database.MDStateRootKey, blk.Header.StateHash[:])
	})
	if errors.Is(err, errStateMismatch) {
		lg.WithField("height", blk.Header.Height).Error("VM/header state commitment mismatch, reverting to last finalized state")
		if rerr := a.tryRevertLocked(RevertTarget{Kind: RevertToLastFinalized}); rerr != nil {
			return 0, errors.Wrap(rerr, "chain: revert after state mismatch failed")
		}
		return 0, errStateMismatch
	}
	if err != nil {
		return 0, err
	}

	for _, pk := range blk.Header.FailedIterations.ToMissedGeneratorsBytes() {
		lg.WithField("generator", pk).Warn("missed iteration")
	}

	changes := changedProvisioners(blk, result.Txs, result.Calls)
	if err := a.applySelectiveUpdate(blk.Header.StateHash, changes); err != nil {
		lg.WithError(err).Warn("resyncing provisioners after selective update inconsistency")
		fresh, ferr := a.vm.GetProvisioners(blk.Header.StateHash)
		if ferr != nil {
			return label, errors.Wrap(ferr, "chain: full provisioner resync failed")
		}
		a.provisioners = fresh
		a.committees = committee.NewSet(fresh)
	}

	a.tip = ledger.BlockWithLabel{Block: blk, Label: label}

	if label == ledger.LabelFinal {
		if err := a.vm.FinalizeState(blk.Header.StateHash); err != nil {
			return label, errors.Wrap(err, "chain: finalize state")
		}
	}

	a.housekeepLocked(blk)

	lg.WithField("height", blk.Header.Height).
		WithField("iteration", blk.Header.Iteration).
		WithField("label", label).
		Info("block accepted")

	if enableConsensus {
		a.restartConsensusLocked(context.Background())
	}

	return label, nil
}

// housekeepLocked prunes staged candidates, notifies the mempool of the
// newly accepted block's transactions, and shrinks the future-message
// buffer to the window around the new tip (spec §4.6 step 7). Called
// with mu already held.
func (a *Acceptor) housekeepLocked(blk ledger.Block) {
	threshold := uint64(0)
	if blk.Header.Height > config.Get().Consensus.CandidatesDeletionOffset {
		threshold = blk.Header.Height - config.Get().Consensus.CandidatesDeletionOffset
	}
	for height := range a.candidates {
		if height <= threshold {
			delete(a.candidates, height)
		}
	}

	if a.eb != nil {
		var buf bytes.Buffer
		if err := ledger.MarshalBlock(&buf, blk); err != nil {
			lg.WithError(err).Warn("failed to marshal accepted block for mempool cleanup")
		} else {
			a.eb.Publish(eventbus.Message{Topic: mempool.TopicAcceptedBlock, Payload: buf.Bytes()})
		}
	}

	a.futureMsgs.pruneOutOfRange(blk.Header.Height+1, config.Get().Consensus.OffsetFutureMsgs)
}

// StageCandidate records a block received ahead of the current tip (e.g.
// while catching up), to be discarded once it falls behind the
// candidate-deletion window.
func (a *Acceptor) StageCandidate(blk ledger.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidates[blk.Header.Height] = blk
}

// TryRevert unwinds both the VM state and the ledger to target, deleting
// every block down to the one whose state hash matches and resubmitting
// its transactions to the mempool (spec §4.6 try_revert).
func (a *Acceptor) TryRevert(target RevertTarget) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tryRevertLocked(target)
}

func (a *Acceptor) tryRevertLocked(target RevertTarget) error {
	var targetStateHash [32]byte
	switch target.Kind {
	case RevertToLastFinalized:
		root, err := a.vm.RevertToFinalized()
		if err != nil {
			return errors.Wrap(err, "chain: VM revert to finalized state")
		}
		targetStateHash = root
	case RevertToCommit:
		root, err := a.vm.Revert(target.StateHash)
		if err != nil {
			return errors.Wrap(err, "chain: VM revert")
		}
		targetStateHash = root
	default:
		return errors.New("chain: unsupported revert target")
	}

	var (
		reverted ledger.Block
		label    ledger.Label
		found    bool
	)
	err := a.db.Update(func(t database.Transaction) error {
		height := a.tip.Block.Header.Height
		for {
			hash, ok, err := t.FetchBlockHashByHeight(height)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("chain: could not fetch block at height %d", height)
			}

			blk, err := t.FetchBlock(hash)
			if err != nil {
				return err
			}
			lbl, err := t.FetchBlockLabel(hash)
			if err != nil {
				return err
			}

			if blk.Header.StateHash == targetStateHash {
				reverted, label, found = blk, lbl, true
				return nil
			}

			// Genesis is never deleted; if it doesn't match, the target
			// state is simply unreachable by unwinding this chain.
			if height == 0 {
				return errors.New("chain: revert target not found down to genesis")
			}

			if err := t.DeleteBlock(hash); err != nil {
				return err
			}
			for _, tx := range blk.Txs {
				a.mp.Submit(transactions.Raw(tx))
			}

			height--
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.New("chain: revert target not found")
	}
	if reverted.Header.StateHash != targetStateHash {
		return errors.New("chain: failed to revert to proper state")
	}

	if err := a.db.Update(func(t database.Transaction) error {
		if err := t.Put(database.MDHashKey, reverted.Header.Hash[:]); err != nil {
			return err
		}
		return t.Put(database.MDStateRootKey, reverted.Header.StateHash[:])
	}); err != nil {
		return errors.Wrap(err, "chain: update metadata after revert")
	}

	fresh, err := a.vm.GetProvisioners(reverted.Header.StateHash)
	if err == nil {
		a.provisioners = fresh
		a.committees = committee.NewSet(fresh)
	}

	a.tip = ledger.BlockWithLabel{Block: reverted, Label: label}
	return nil
}
