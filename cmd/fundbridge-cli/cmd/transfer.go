package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Burn on the source chain, attest, and mint on the destination chain",
	RunE:  runTransfer,
}

func init() {
	transferCmd.Flags().String("from", "", "source chain (name or chain id)")
	transferCmd.Flags().String("to", "", "destination chain (name or chain id)")
	transferCmd.Flags().String("amount", "", "amount in whole tokens, e.g. 100.50")
	transferCmd.Flags().String("recipient", "", "recipient address on the destination chain")
	transferCmd.Flags().Bool("fast", false, "use fast transfer when the source chain supports it")
	transferCmd.Flags().String("max-fee", "", "max fee in whole tokens for fast transfers (default "+entities.DefaultMaxFee+")")
	transferCmd.Flags().Bool("no-mint", false, "stop after the attestation; mint later with resume")
	_ = transferCmd.MarkFlagRequired("from")
	_ = transferCmd.MarkFlagRequired("to")
	_ = transferCmd.MarkFlagRequired("amount")
	_ = transferCmd.MarkFlagRequired("recipient")
	rootCmd.AddCommand(transferCmd)
}

func runTransfer(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	amount, _ := cmd.Flags().GetString("amount")
	recipientFlag, _ := cmd.Flags().GetString("recipient")
	fast, _ := cmd.Flags().GetBool("fast")
	maxFee, _ := cmd.Flags().GetString("max-fee")
	noMint, _ := cmd.Flags().GetBool("no-mint")

	source, err := a.resolveChain(fromFlag)
	if err != nil {
		return err
	}
	dest, err := a.resolveChain(toFlag)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(recipientFlag) {
		return fmt.Errorf("invalid recipient address %q", recipientFlag)
	}

	signer, err := a.newSigner(source)
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator(source, dest, signer)
	if err != nil {
		return err
	}

	req := &entities.TransferRequest{
		Amount:           amount,
		SourceChain:      source,
		DestinationChain: dest,
		Recipient:        common.HexToAddress(recipientFlag),
		UseFastTransfer:  fast,
		MaxFee:           maxFee,
	}

	state, err := orch.Start(cmd.Context(), req)
	if err != nil {
		return describeFailure(state, err)
	}
	fmt.Printf("Burn confirmed: %s\n", source.TxURL(state.BurnTxHash))

	if noMint {
		fmt.Printf("Attestation ready. Mint later with:\n  fundbridge-cli resume --from %d --to %d --burn-tx %s\n",
			source.ID, dest.ID, state.BurnTxHash)
		return nil
	}

	state, err = orch.Complete(cmd.Context(), state)
	if err != nil {
		return describeFailure(state, err)
	}
	fmt.Printf("Mint confirmed: %s\n", dest.TxURL(state.MintTxHash))
	return nil
}

// describeFailure turns a failed state into a terminal-friendly error,
// surfacing the recovery path when the burn already happened.
func describeFailure(state *entities.TransferState, err error) error {
	if state != nil && state.LastError != nil {
		if state.LastError.BurnTxHash != "" {
			return fmt.Errorf("%s\nyour funds are burned but not minted; resume with --burn-tx %s",
				state.LastError.Guidance, state.LastError.BurnTxHash)
		}
		return fmt.Errorf("%s", state.LastError.Guidance)
	}
	return err
}
