package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nicolocarcagni/fulmine/internal/chain"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-balance <addr>",
		Short: "Get an account's balance",
		Args:  cobra.ExactArgs(1),
		Run:   runGetBalance,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-nonce <addr>",
		Short: "Get an account's next expected nonce",
		Args:  cobra.ExactArgs(1),
		Run:   runGetNonce,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-transaction <hash>",
		Short: "Look up a committed transaction by hash",
		Args:  cobra.ExactArgs(1),
		Run:   runGetTransaction,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-block <n>",
		Short: "Get the block at height n",
		Args:  cobra.ExactArgs(1),
		Run:   runGetBlock,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-latest-block",
		Short: "Get the chain tip",
		Args:  cobra.NoArgs,
		Run:   runGetLatestBlock,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-stats",
		Short: "Get validator statistics",
		Args:  cobra.NoArgs,
		Run:   runGetStats,
	})
}

func runGetBalance(cmd *cobra.Command, args []string) {
	var balance string
	if err := callRPC(rpcURLFlag, "getBalance", []string{args[0]}, &balance); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	PrintInfo("%s", balance)
}

func runGetNonce(cmd *cobra.Command, args []string) {
	var nonce uint64
	if err := callRPC(rpcURLFlag, "getNonce", []string{args[0]}, &nonce); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	PrintInfo("%d", nonce)
}

func runGetTransaction(cmd *cobra.Command, args []string) {
	var result struct {
		Transaction chain.TxData `json:"transaction"`
		BlockNumber uint64       `json:"blockNumber"`
	}
	if err := callRPC(rpcURLFlag, "getTransaction", []string{args[0]}, &result); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	if result.Transaction.Hash == "" {
		PrintWarning("transaction not found")
		os.Exit(1)
	}
	printTransaction(result.Transaction, result.BlockNumber)
}

func runGetBlock(cmd *cobra.Command, args []string) {
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		PrintError("invalid block number %q", args[0])
		os.Exit(1)
	}
	var block chain.BlockData
	if err := callRPC(rpcURLFlag, "getBlock", []uint64{n}, &block); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	if block.Hash == "" {
		PrintWarning("block %d not found", n)
		os.Exit(1)
	}
	printBlock(block)
}

func runGetLatestBlock(cmd *cobra.Command, args []string) {
	var block chain.BlockData
	if err := callRPC(rpcURLFlag, "getLatestBlock", nil, &block); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	printBlock(block)
}

func runGetStats(cmd *cobra.Command, args []string) {
	var stats map[string]interface{}
	if err := callRPC(rpcURLFlag, "getValidatorStats", nil, &stats); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	for k, v := range stats {
		PrintInfo("%-20s %v", k+":", v)
	}
}

func printBlock(b chain.BlockData) {
	PrintInfo("Block #%d", b.Number)
	PrintInfo("  Hash:          %s", b.Hash)
	PrintInfo("  Previous hash: %s", b.PreviousHash)
	PrintInfo("  Merkle root:   %s", b.MerkleRoot)
	PrintInfo("  Validator:     %s", b.Validator)
	PrintInfo("  Timestamp:     %d", b.Timestamp)
	PrintInfo("  Transactions:  %d", len(b.Transactions))
}

func printTransaction(tx chain.TxData, blockNumber uint64) {
	PrintInfo("Transaction %s", tx.Hash)
	PrintInfo("  From:      %s", tx.From)
	PrintInfo("  To:        %s", tx.To)
	PrintInfo("  Amount:    %s", tx.Amount)
	PrintInfo("  Fee:       %s", tx.Fee)
	PrintInfo("  Nonce:     %d", tx.Nonce)
	PrintInfo("  Block:     %d", blockNumber)
}
