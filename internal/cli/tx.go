package cli

import (
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicolocarcagni/fulmine/internal/chain"
	"github.com/nicolocarcagni/fulmine/internal/crypto"
)

var sendDryRunFlag bool

func init() {
	sendCmd := &cobra.Command{
		Use:   "send <priv> <to> <amount> [fee]",
		Short: "Sign and submit a transfer",
		Args:  cobra.RangeArgs(3, 4),
		Run:   runSend,
	}
	sendCmd.Flags().BoolVar(&sendDryRunFlag, "dry-run", false, "sign and print the transaction without broadcasting it")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) {
	privateKeyHex, to, amountStr := args[0], args[1], args[2]

	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() <= 0 {
		PrintError("invalid amount %q", amountStr)
		os.Exit(1)
	}

	fee := big.NewInt(0)
	if len(args) == 4 {
		fee, ok = new(big.Int).SetString(args[3], 10)
		if !ok || fee.Sign() < 0 {
			PrintError("invalid fee %q", args[3])
			os.Exit(1)
		}
	}

	from, err := crypto.PublicKeyFromPrivateHex(privateKeyHex)
	if err != nil {
		PrintError("invalid private key: %v", err)
		os.Exit(1)
	}

	fromAddr, err := crypto.AddressOf(from)
	if err != nil {
		PrintError("deriving sender address: %v", err)
		os.Exit(1)
	}

	var nonce uint64
	if err := callRPC(rpcURLFlag, "getNonce", []string{fromAddr}, &nonce); err != nil {
		PrintError("fetching nonce: %v", err)
		os.Exit(1)
	}

	now := currentTimeMs()
	tx := chain.NewTransaction(from, to, amount, fee, nonce, now)
	if err := tx.Sign(privateKeyHex); err != nil {
		PrintError("signing transaction: %v", err)
		os.Exit(1)
	}

	if sendDryRunFlag {
		data := tx.ToJSON()
		PrintInfo("dry run, not broadcast:")
		printTransaction(data, 0)
		return
	}

	var result struct {
		Success bool   `json:"success"`
		Hash    string `json:"hash"`
	}
	if err := callRPC(rpcURLFlag, "sendTransaction", tx.ToJSON(), &result); err != nil {
		PrintError("%v", err)
		os.Exit(1)
	}
	PrintSuccess("transaction submitted: %s", result.Hash)
}
