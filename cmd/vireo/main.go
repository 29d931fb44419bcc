// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Command vireo is the node's CLI entrypoint: generate a genesis
// document and keypair, then run a node that drives consensus rounds
// over the resulting provisioner set.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vireo",
	Short: "vireo drives a proof-of-stake consensus core",
}

func init() {
	rootCmd.AddCommand(genesisCmd, runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
