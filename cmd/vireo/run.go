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
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vireo-chain/vireo/internal/log"
	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/chain"
	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/core/database"
	"github.com/vireo-chain/vireo/pkg/core/database/leveldb"
	"github.com/vireo-chain/vireo/pkg/core/mempool"
	"github.com/vireo-chain/vireo/pkg/crypto/bls"
	"github.com/vireo-chain/vireo/pkg/p2p/wire/network"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/eventbus"
	"github.com/vireo-chain/vireo/pkg/util/nativeutils/rpcbus"
	"github.com/vireo-chain/vireo/pkg/vm"
)

var (
	runDataDir    string
	runGenesis    string
	runConfigPath string
	runSecretHex  string
	runLogPath    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a node over a genesis-defined provisioner set",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().StringVar(&runDataDir, "datadir", "./vireo-data", "directory for chain and metadata storage")
	runCmd.Flags().StringVar(&runGenesis, "genesis", "genesis.yaml", "path to the genesis document")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "optional YAML configuration override")
	runCmd.Flags().StringVar(&runSecretHex, "secret-key", "", "hex-encoded BLS secret key material for this node's identity")
	runCmd.Flags().StringVar(&runLogPath, "log-file", "", "log file path (stderr if empty)")
	_ = runCmd.MarkFlagRequired("secret-key")
}

func runNode(cmd *cobra.Command, args []string) error {
	if runConfigPath != "" {
		if _, err := config.Load(runConfigPath); err != nil {
			return errors.Wrap(err, "load config")
		}
	}

	if err := log.Configure(logrus.InfoLevel, runLogPath, 50, 3, 28); err != nil {
		return errors.Wrap(err, "configure logging")
	}
	lg := log.WithProcess("cmd/vireo")

	ikm, err := hex.DecodeString(runSecretHex)
	if err != nil {
		return errors.Wrap(err, "decode --secret-key")
	}
	sk, pk, err := bls.KeyGen(ikm)
	if err != nil {
		return errors.Wrap(err, "derive node keypair")
	}

	doc, err := loadGenesisDoc(runGenesis)
	if err != nil {
		return err
	}
	provisioners, err := doc.provisioners()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(runDataDir, 0o755); err != nil {
		return errors.Wrap(err, "create datadir")
	}
	db, err := leveldb.Open(runDataDir)
	if err != nil {
		return errors.Wrap(err, "open chain database")
	}
	defer func() { _ = db.Close() }()

	genesis := ledger.Block{Header: genesisHeader(doc)}
	tip, err := loadOrStoreTip(db, genesis)
	if err != nil {
		return errors.Wrap(err, "load or store genesis tip")
	}

	memVM := vm.NewMemoryVM(tip.Block.Header.StateHash, provisioners)

	eb := eventbus.New()
	rb := rpcbus.New()
	mp := mempool.New(eb, rb, nil)
	go mp.Run()
	defer mp.Stop()

	net := network.NewLocal(eb)
	caster := &blsVoteCaster{sk: sk, pk: pk}
	broadcaster := &localBroadcaster{net: net}

	var acceptorRef acceptorHolder
	task := &mempoolRoundTask{acceptor: &acceptorRef, rpcBus: rb, vm: memVM, sk: sk, pk: pk}

	a := chain.NewAcceptor(
		db, memVM, eb, mp,
		tip, provisioners,
		chain.DefaultValidator{},
		pk.Compress(), sk.Bytes(),
		caster, broadcaster, task,
	)
	acceptorRef.set(a)

	net.AddRoute(topicConsensusVote, func(_ network.PeerID, msg eventbus.Message) error {
		buf := bytes.NewBuffer(msg.Payload)
		ev, err := agreement.UnmarshalEvent(buf)
		if err != nil {
			return err
		}
		a.RerouteMessage(ev)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.InitConsensus(ctx); err != nil {
		return errors.Wrap(err, "init consensus")
	}
	a.RestartConsensus(ctx)

	lg.WithField("height", a.GetCurrHeight()).Info("node started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	lg.Info("shutting down")
	return nil
}

// loadOrStoreTip returns the persisted tip, seeding the database with
// genesis as an already-final block on first run.
func loadOrStoreTip(db database.DB, genesis ledger.Block) (ledger.BlockWithLabel, error) {
	var tip ledger.BlockWithLabel

	err := db.Update(func(tx database.Transaction) error {
		hashBytes, ok, err := tx.Get(database.MDHashKey)
		if err != nil {
			return err
		}

		if !ok {
			if err := tx.StoreBlock(genesis, ledger.LabelFinal); err != nil {
				return err
			}
			if err := tx.Put(database.MDHashKey, genesis.Header.Hash[:]); err != nil {
				return err
			}
			if err := tx.Put(database.MDStateRootKey, genesis.Header.StateHash[:]); err != nil {
				return err
			}
			tip = ledger.BlockWithLabel{Block: genesis, Label: ledger.LabelFinal}
			return nil
		}

		var tipHash [32]byte
		copy(tipHash[:], hashBytes)

		blk, err := tx.FetchBlock(tipHash)
		if err != nil {
			return err
		}
		label, err := tx.FetchBlockLabel(tipHash)
		if err != nil {
			return err
		}
		tip = ledger.BlockWithLabel{Block: blk, Label: label}
		return nil
	})

	return tip, err
}

// acceptorHolder breaks the circular dependency between NewAcceptor's
// task parameter and the *chain.Acceptor that task needs to query
// committees from: mempoolRoundTask is built before the Acceptor exists,
// then wired to it with set once construction completes.
type acceptorHolder struct {
	a *chain.Acceptor
}

func (h *acceptorHolder) set(a *chain.Acceptor) { h.a = a }

func (h *acceptorHolder) Committees() *committee.Set {
	return h.a.Committees()
}
