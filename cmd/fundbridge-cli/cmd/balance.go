package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/fundbridge/fundbridge/internal/infrastructure/evm"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the stablecoin balance of an address on a chain",
	RunE:  runBalance,
}

func init() {
	balanceCmd.Flags().String("chain", "", "chain (name or chain id)")
	balanceCmd.Flags().String("address", "", "address to query (defaults to the signing key's address)")
	_ = balanceCmd.MarkFlagRequired("chain")
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	chainFlag, _ := cmd.Flags().GetString("chain")
	addressFlag, _ := cmd.Flags().GetString("address")

	chain, err := a.resolveChain(chainFlag)
	if err != nil {
		return err
	}

	var account common.Address
	if addressFlag != "" {
		if !common.IsHexAddress(addressFlag) {
			return fmt.Errorf("invalid address %q", addressFlag)
		}
		account = common.HexToAddress(addressFlag)
	} else {
		signer, err := a.newSigner(chain)
		if err != nil {
			return err
		}
		account = signer.Address()
	}

	client, err := evm.NewClient(chain, a.cfg.RPC, a.logger)
	if err != nil {
		return err
	}
	balance, err := client.FreshTokenBalance(cmd.Context(), account)
	if err != nil {
		return err
	}
	fmt.Printf("%s on %s: %s\n", account.Hex(), chain.Name, balance)
	return nil
}
