package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicolocarcagni/fulmine/internal/wallet"
)

var (
	walletOutFlag  string
	walletPassFlag string
)

func init() {
	generateWalletCmd := &cobra.Command{
		Use:   "generate-wallet",
		Short: "Generate a new BIP-39 mnemonic and derive an Ed25519 keypair",
		Run:   runGenerateWallet,
	}
	generateWalletCmd.Flags().StringVar(&walletOutFlag, "out", "", "write the encrypted wallet file to this path")
	generateWalletCmd.Flags().StringVar(&walletPassFlag, "passphrase", "", "passphrase to encrypt the wallet file (required with --out)")
	rootCmd.AddCommand(generateWalletCmd)

	importWalletCmd := &cobra.Command{
		Use:   "import-wallet <priv>",
		Short: "Import a wallet from a hex-encoded Ed25519 private key",
		Args:  cobra.ExactArgs(1),
		Run:   runImportWallet,
	}
	importWalletCmd.Flags().StringVar(&walletOutFlag, "out", "", "write the encrypted wallet file to this path")
	importWalletCmd.Flags().StringVar(&walletPassFlag, "passphrase", "", "passphrase to encrypt the wallet file (required with --out)")
	rootCmd.AddCommand(importWalletCmd)
}

func runGenerateWallet(cmd *cobra.Command, args []string) {
	w, err := wallet.New()
	if err != nil {
		PrintError("generating wallet: %v", err)
		os.Exit(1)
	}
	printWalletAndMaybeSave(w)
}

func runImportWallet(cmd *cobra.Command, args []string) {
	w, err := wallet.FromPrivateKeyHex(args[0])
	if err != nil {
		PrintError("importing wallet: %v", err)
		os.Exit(1)
	}
	printWalletAndMaybeSave(w)
}

func printWalletAndMaybeSave(w *wallet.Wallet) {
	fmt.Println("=== Wallet ===")
	if w.Mnemonic != "" {
		fmt.Printf("Mnemonic:    %s\n", w.Mnemonic)
	}
	fmt.Printf("Address:     %s\n", w.Address)
	fmt.Printf("Public Key:  %s\n", w.PublicKey)
	fmt.Printf("Private Key: %s\n", w.PrivateKey)
	fmt.Println("==============")

	if walletOutFlag == "" {
		return
	}
	if walletPassFlag == "" {
		PrintError("--passphrase is required when --out is set")
		os.Exit(1)
	}
	if err := wallet.SaveEncrypted(w, walletOutFlag, walletPassFlag); err != nil {
		PrintError("saving wallet file: %v", err)
		os.Exit(1)
	}
	PrintSuccess("wallet file written to %s", walletOutFlag)
}
