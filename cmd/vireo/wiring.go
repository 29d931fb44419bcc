// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/phase"
	"github.com/vireo-chain/vireo/pkg/core/consensus/quorum"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/data/transactions"
	"github.com/vireo-chain/vireo/pkg/crypto/bls"
	"github.com/vireo-chain/vireo/pkg/crypto/hash"
	"github.com/vireo-chain/vireo/pkg/p2p/wire/encoding"
	"github.com/vireo-chain/vireo/pkg/p2p/wire/network"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/rpcbus"
	"github.com/vireo-chain/vireo/pkg/vm"
)

// topicConsensusVote is the Network topic agreement.Events are gossiped
// on, mirroring the teacher's topics.* conventions for wire messages.
const topicConsensusVote = "consensus.vote"

// genesisDoc is the on-disk description of a network's starting point: the
// moment the provisioner set and its stakes come into existence.
type genesisDoc struct {
	Timestamp    int64              `yaml:"timestamp"`
	Provisioners []provisionerEntry `yaml:"provisioners"`
}

type provisionerEntry struct {
	PubKeyBLS string `yaml:"pub_key_bls"`
	Amount    uint64 `yaml:"amount"`
}

func loadGenesisDoc(path string) (*genesisDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}

	var doc genesisDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse genesis file")
	}
	return &doc, nil
}

// provisioners decodes the document's entries into the in-memory set the
// VM and committee machinery operate over.
func (d *genesisDoc) provisioners() (*user.Provisioners, error) {
	p := user.NewProvisioners()
	for _, entry := range d.Provisioners {
		pk, err := hex.DecodeString(entry.PubKeyBLS)
		if err != nil {
			return nil, errors.Wrapf(err, "decode provisioner key %q", entry.PubKeyBLS)
		}
		p.Add(pk, user.Stake{Amount: entry.Amount, StartHeight: 0, EndHeight: 0})
	}
	return p, nil
}

func writeGenesisDoc(path string, doc *genesisDoc) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal genesis file")
	}
	return os.WriteFile(path, raw, 0o600)
}

// genesisHeader builds the height-0 header a node bootstraps its ledger
// and VM state from.
func genesisHeader(doc *genesisDoc) ledger.Header {
	h := ledger.Header{Version: 1, Height: 0, Timestamp: doc.Timestamp}
	return h.WithHash()
}

// blsVoteCaster implements driver.VoteCaster by signing a step's vote
// with this node's own BLS key (spec §4.5's casting side of the
// signature verifiers.VerifyStepVotes checks).
type blsVoteCaster struct {
	sk *bls.SecretKey
	pk *bls.PublicKey
}

func (c *blsVoteCaster) CastVote(hdr ledger.ConsensusHeader, seed ledger.Seed, step ledger.StepName, vote ledger.Vote) ([48]byte, []byte, error) {
	msg := make([]byte, 0, 96)
	msg = append(msg, hdr.Signable()...)
	msg = append(msg, quorum.SignSeed[step]...)
	msg = append(msg, quorum.EncodeVote(vote)...)

	sig := bls.Sign(c.sk, msg)

	var out [48]byte
	copy(out[:], sig.Compress())
	return out, c.pk.Compress(), nil
}

// localBroadcaster implements driver.Broadcaster over an in-process
// network.Local, the single-node demo topology's stand-in for a real
// peer-to-peer dialer (network.Local's own doc comment names this as
// its intended use before one exists).
type localBroadcaster struct {
	net *network.Local
}

func (b *localBroadcaster) BroadcastVote(ev agreement.Event) error {
	buf := new(bytes.Buffer)
	if err := agreement.MarshalEvent(buf, ev); err != nil {
		return errors.Wrap(err, "marshal consensus vote")
	}
	return b.net.Broadcast(eventbus.Message{Topic: topicConsensusVote, Payload: buf.Bytes()})
}

// acceptorCommittees is satisfied by *chain.Acceptor; it lets
// mempoolRoundTask be constructed before the Acceptor that owns it,
// breaking the otherwise circular NewAcceptor(task) <-> task(acceptor)
// dependency.
type acceptorCommittees interface {
	Committees() *committee.Set
}

// mempoolRoundTask implements driver.RoundTask for a single-node demo:
// this node is always the sole provisioner, so it proposes in every
// iteration it is drawn as generator and otherwise idles until the round
// is cancelled. Transaction selection policy beyond mempool order is out
// of scope (the RoundTask itself owns candidate content).
type mempoolRoundTask struct {
	acceptor acceptorCommittees
	rpcBus   *rpcbus.RPCBus
	vm       vm.VM
	sk       *bls.SecretKey
	pk       *bls.PublicKey
}

func (t *mempoolRoundTask) Propose(ctx context.Context, ru phase.RoundUpdate, iteration uint8, failed []ledger.FailedIterationEntry) (ledger.Block, error) {
	generator, err := t.acceptor.Committees().GetGenerator(iteration, ru.Seed[:], ru.Round)
	if err != nil {
		return ledger.Block{}, errors.Wrap(err, "resolve iteration generator")
	}

	if !bytes.Equal(generator, t.pk.Compress()) {
		<-ctx.Done()
		return ledger.Block{}, ctx.Err()
	}

	txs, err := t.fetchMempoolTxs(ctx)
	if err != nil {
		return ledger.Block{}, err
	}

	seed := nextSeed(t.sk, ru.Seed)

	var generatorPub [ledger.PubKeySize]byte
	copy(generatorPub[:], t.pk.Compress())

	draft := ledger.Header{
		Version:          1,
		Height:           ru.Round,
		Timestamp:        time.Now().Unix(),
		PrevBlockHash:    ru.TipHash,
		Seed:             seed,
		GeneratorBLSPub:  generatorPub,
		Iteration:        iteration,
		FailedIterations: ledger.FailedIterations{Entries: failed},
	}

	before, err := t.vm.GetStateRoot()
	if err != nil {
		return ledger.Block{}, errors.Wrap(err, "read state root before proposing")
	}

	rawTxs := make([][]byte, len(txs))
	for i, tx := range txs {
		rawTxs[i] = tx
	}

	blk := ledger.Block{Header: draft, Txs: rawTxs}
	res, err := t.vm.Accept(blk)
	if err != nil {
		return ledger.Block{}, errors.Wrap(err, "probe candidate state transition")
	}
	// Undo the probe: TryAcceptBlock runs the real Accept call once the
	// candidate is actually attested and accepted.
	if _, err := t.vm.Revert(before); err != nil {
		return ledger.Block{}, errors.Wrap(err, "revert candidate probe")
	}

	draft.StateHash = res.StateRoot
	draft.EventHash = res.EventHash
	draft = draft.WithHash()

	return ledger.Block{Header: draft, Txs: rawTxs}, nil
}

func (t *mempoolRoundTask) fetchMempoolTxs(ctx context.Context) ([]transactions.Raw, error) {
	resp, err := t.rpcBus.Call(ctx, rpcbus.GetMempoolTxs, rpcbus.NewRequest(bytes.Buffer{}))
	if err != nil {
		return nil, errors.Wrap(err, "fetch mempool transactions")
	}
	if resp.Err != nil {
		return nil, errors.Wrap(resp.Err, "fetch mempool transactions")
	}

	buf, ok := resp.Resp.(bytes.Buffer)
	if !ok {
		return nil, errors.New("unexpected mempool response type")
	}

	count, err := encoding.ReadVarInt(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "decode mempool tx count")
	}

	txs := make([]transactions.Raw, 0, count)
	for i := uint64(0); i < count; i++ {
		var raw []byte
		if err := encoding.ReadVarBytes(&buf, &raw); err != nil {
			return nil, errors.Wrap(err, "decode mempool tx")
		}
		txs = append(txs, raw)
	}
	return txs, nil
}

// nextSeed derives the next block's seed from this generator's BLS
// signature over the previous seed, standing in for the VRF-based
// derivation a real zk-SNARK sortition circuit would produce.
func nextSeed(sk *bls.SecretKey, prev ledger.Seed) ledger.Seed {
	sig := bls.Sign(sk, prev[:])
	return ledger.Seed(hash.Sum(sig.Compress()))
}
