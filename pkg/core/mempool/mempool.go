// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package mempool holds transactions that are valid against current
// chain state and can be included in the next block (spec §4.6 step 7
// housekeeping: "remove from mempool all included tx ids"). Adapted
// from the teacher's pkg/core/mempool/mempool.go: the RPC surface
// (rpcbus.GetMempoolTxs/SendMempoolTx), the single-goroutine run loop,
// and the accepted-block cleanup trigger are kept; the ristretto
// key-image/double-spend check is dropped since the VM-opaque
// transaction model (pkg/core/data/transactions) carries no nullifier
// the consensus core can itself inspect - double-spend and conflict
// detection belong to the VM, not the mempool.
package mempool

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	lg "github.com/sirupsen/logrus"

	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/data/transactions"
	"github.com/vireo-chain/vireo/pkg/crypto/hash"
	"github.com/vireo-chain/vireo/pkg/p2p/wire/encoding"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/rpcbus"
)

var log = lg.WithField("process", "mempool")

// TopicAcceptedBlock is the eventbus topic the Acceptor publishes a
// newly accepted block on.
const TopicAcceptedBlock = "block.accepted"

const idleTick = 20 * time.Second

type key [32]byte

// TxDesc pairs a raw transaction with its lifecycle timestamps.
type TxDesc struct {
	Tx       transactions.Raw
	Received time.Time
	Verified time.Time
}

// pool is an in-memory verified-transaction store. Mempool accesses it
// only from its own run-loop goroutine, so it carries no internal
// locking (mirrors the teacher's "single go-routine, no mutex"
// invariant).
type pool struct {
	txs map[key]TxDesc
}

func newPool() *pool {
	return &pool{txs: make(map[key]TxDesc)}
}

func (p *pool) put(k key, t TxDesc)    { p.txs[k] = t }
func (p *pool) delete(k key)           { delete(p.txs, k) }
func (p *pool) contains(k key) bool    { _, ok := p.txs[k]; return ok }
func (p *pool) len() int               { return len(p.txs) }

// Mempool is a storage for chain transactions valid against current
// chain state, pending inclusion in the next block.
type Mempool struct {
	eventBus *eventbus.EventBus
	rpcBus   *rpcbus.RPCBus

	getTxsChan <-chan rpcbus.Request
	sendTxChan <-chan rpcbus.Request

	pending        chan TxDesc
	acceptedBlocks chan ledger.Block
	verified       *pool

	latestBlockTimestamp int64

	verifyTx func(tx transactions.Raw) error

	quitChan chan struct{}
}

// New instantiates a Mempool subscribed to eventBus and serving
// rpcBus requests. verifyTx, if non-nil, gates every pending
// transaction before it is admitted to the verified pool.
func New(eventBus *eventbus.EventBus, rpcBus *rpcbus.RPCBus, verifyTx func(tx transactions.Raw) error) *Mempool {
	getTxsChan := make(chan rpcbus.Request, 1)
	rpcBus.Register(rpcbus.GetMempoolTxs, getTxsChan)

	sendTxChan := make(chan rpcbus.Request, 1)
	rpcBus.Register(rpcbus.SendMempoolTx, sendTxChan)

	m := &Mempool{
		eventBus:       eventBus,
		rpcBus:         rpcBus,
		getTxsChan:     getTxsChan,
		sendTxChan:     sendTxChan,
		pending:        make(chan TxDesc, 1000),
		acceptedBlocks: make(chan ledger.Block, 8),
		verified:       newPool(),
		verifyTx:       verifyTx,
		quitChan:       make(chan struct{}),
	}

	eventBus.Subscribe(TopicAcceptedBlock, m)
	return m
}

// Notify implements eventbus.Listener: a published accepted-block
// message is handed to the run loop for cleanup.
func (m *Mempool) Notify(msg eventbus.Message) error {
	blk, err := ledger.UnmarshalBlock(bytes.NewReader(msg.Payload))
	if err != nil {
		return errors.Wrap(err, "mempool: unmarshal accepted block")
	}

	select {
	case m.acceptedBlocks <- blk:
	case <-m.quitChan:
	}
	return nil
}

// Run spawns the mempool's single-goroutine lifecycle: all state
// mutation happens on this goroutine only.
func (m *Mempool) Run() {
	go func() {
		for {
			select {
			case r := <-m.sendTxChan:
				m.onSendTx(r)
			case r := <-m.getTxsChan:
				m.onGetMempoolTxs(r)
			case t := <-m.pending:
				if _, err := m.onPendingTx(t); err != nil {
					log.WithError(err).Traceln("rejected pending tx")
				}
			case blk := <-m.acceptedBlocks:
				m.onAcceptedBlock(blk)
			case <-time.After(idleTick):
				m.onIdle()
			case <-m.quitChan:
				return
			}
		}
	}()
}

// Stop terminates the run loop.
func (m *Mempool) Stop() {
	close(m.quitChan)
}

// Submit enqueues an externally-received transaction for admission.
func (m *Mempool) Submit(tx transactions.Raw) {
	m.pending <- TxDesc{Tx: tx, Received: time.Now()}
}

func txKey(tx transactions.Raw) key {
	return key(hash.Sum(tx))
}

func (m *Mempool) onPendingTx(t TxDesc) (key, error) {
	k := txKey(t.Tx)

	if m.verified.contains(k) {
		return k, errors.New("mempool: already present")
	}

	if m.verifyTx != nil {
		if err := m.verifyTx(t.Tx); err != nil {
			return k, errors.Wrap(err, "mempool: verification failed")
		}
	}

	t.Verified = time.Now()
	m.verified.put(k, t)
	return k, nil
}

// onAcceptedBlock removes every transaction the block carried from the
// verified pool (spec §4.6 step 7).
func (m *Mempool) onAcceptedBlock(blk ledger.Block) {
	m.latestBlockTimestamp = blk.Header.Timestamp
	if m.verified.len() == 0 {
		return
	}

	for _, raw := range blk.Txs {
		m.verified.delete(txKey(raw))
	}
}

func (m *Mempool) onIdle() {
	log.WithField("count", m.verified.len()).Traceln("idle tick")
}

func (m *Mempool) onGetMempoolTxs(r rpcbus.Request) {
	filter := r.Params.Bytes()

	out := make([]transactions.Raw, 0, m.verified.len())
	for k, t := range m.verified.txs {
		if len(filter) > 0 {
			if bytes.Equal(filter, k[:]) {
				out = append(out, t.Tx)
				break
			}
			continue
		}
		if len(out) >= 50 {
			break
		}
		out = append(out, t.Tx)
	}

	w := new(bytes.Buffer)
	if err := encoding.WriteVarInt(w, uint64(len(out))); err != nil {
		r.RespChan <- rpcbus.NewResponse(bytes.Buffer{}, err)
		return
	}
	for _, tx := range out {
		if err := encoding.WriteVarBytes(w, tx); err != nil {
			r.RespChan <- rpcbus.NewResponse(bytes.Buffer{}, err)
			return
		}
	}

	r.RespChan <- rpcbus.NewResponse(*w, nil)
}

func (m *Mempool) onSendTx(r rpcbus.Request) {
	raw := transactions.Raw(r.Params.Bytes())

	k, err := m.onPendingTx(TxDesc{Tx: raw, Received: time.Now()})

	result := bytes.Buffer{}
	result.Write(k[:])
	r.RespChan <- rpcbus.NewResponse(result, err)
}
