package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Show current transfer fees between two chains",
	RunE:  runFees,
}

func init() {
	feesCmd.Flags().String("from", "", "source chain (name or chain id)")
	feesCmd.Flags().String("to", "", "destination chain (name or chain id)")
	_ = feesCmd.MarkFlagRequired("from")
	_ = feesCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(feesCmd)
}

func runFees(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")

	source, err := a.resolveChain(fromFlag)
	if err != nil {
		return err
	}
	dest, err := a.resolveChain(toFlag)
	if err != nil {
		return err
	}

	fees, err := a.iris.Fees(cmd.Context(), source.Domain, dest.Domain)
	if err != nil {
		return err
	}

	fmt.Printf("%s -> %s\n", source.Name, dest.Name)
	fmt.Printf("  fast transfer: %d bps", fees.FastTransferFee.MinimumFee)
	if !source.SupportsFastTransfer {
		fmt.Print(" (not available from this chain)")
	}
	fmt.Println()
	fmt.Printf("  standard:      %d bps\n", fees.StandardFee.MinimumFee)
	return nil
}
