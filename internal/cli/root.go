// Package cli assembles the command tree a node operator or end user drives:
// wallet generation, chain queries, transaction submission, and starting the
// validator itself. Query/send commands talk to a running node over the
// JSON-RPC surface (internal/rpc); only `node start` touches the ledger
// directly.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rpcURLFlag string

var rootCmd = &cobra.Command{
	Use:   "fulmine",
	Short: "fulmine validator node and client",
	Long:  "fulmine is a single-node validator for an account-model chain with a micro-batch pipeline and probabilistic instant finality.",
}

// Execute runs the command tree, printing the banner first.
func Execute() {
	printBanner()
	rootCmd.PersistentFlags().StringVar(&rpcURLFlag, "rpc-url", "http://127.0.0.1:8080", "base URL of a running fulmine node's RPC server")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printBanner() {
	color.Cyan(" _____ _   _ _      __  __ _____ _   _ _____ ")
	color.Cyan("|  ___| | | | |    |  \\/  |_   _| \\ | | ____|")
	color.Cyan("| |_  | | | | |    | |\\/| | | | |  \\| |  _|  ")
	color.Cyan("|  _| | |_| | |___ | |  | | | | | |\\  | |___ ")
	color.Cyan("|_|    \\___/|_____||_|  |_| |_| |_| \\_|_____|")
	fmt.Println("fulmine — account-model validator with instant finality")
	fmt.Println()
}
