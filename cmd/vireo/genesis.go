// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vireo-chain/vireo/pkg/crypto/bls"
)

var (
	genesisOut   string
	genesisStake uint64
	genesisIKM   string
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "generate a genesis document and a sole provisioner's BLS keypair",
	RunE:  runGenesis,
}

func init() {
	genesisCmd.Flags().StringVar(&genesisOut, "out", "genesis.yaml", "path to write the genesis document to")
	genesisCmd.Flags().Uint64Var(&genesisStake, "stake", 1_000_000, "the sole provisioner's stake amount")
	genesisCmd.Flags().StringVar(&genesisIKM, "ikm", "", "hex-encoded key material for bls.KeyGen (random if empty)")
}

func runGenesis(cmd *cobra.Command, args []string) error {
	ikm, err := resolveIKM(genesisIKM)
	if err != nil {
		return err
	}

	_, pk, err := bls.KeyGen(ikm)
	if err != nil {
		return errors.Wrap(err, "generate provisioner keypair")
	}

	doc := &genesisDoc{
		Timestamp: 0,
		Provisioners: []provisionerEntry{
			{PubKeyBLS: hex.EncodeToString(pk.Compress()), Amount: genesisStake},
		},
	}

	if err := writeGenesisDoc(genesisOut, doc); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "genesis document written to %s\n", genesisOut)
	fmt.Fprintf(out, "provisioner public key: %s\n", hex.EncodeToString(pk.Compress()))
	fmt.Fprintf(out, "provisioner secret key material (never written to disk, save it now): %s\n", hex.EncodeToString(ikm))
	return nil
}

// resolveIKM decodes operator-supplied key material or draws fresh
// entropy, satisfying bls.KeyGen's minimum ikm length.
func resolveIKM(hexIKM string) ([]byte, error) {
	if hexIKM == "" {
		ikm := make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return nil, errors.Wrap(err, "read random key material")
		}
		return ikm, nil
	}

	ikm, err := hex.DecodeString(hexIKM)
	if err != nil {
		return nil, errors.Wrap(err, "decode --ikm")
	}
	return ikm, nil
}
