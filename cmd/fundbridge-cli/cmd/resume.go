package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a transfer from its burn transaction hash and mint",
	Long: `Resume re-verifies the burn on the source chain, waits for the
attestation if it is not complete yet, and mints on the destination chain.
Safe to run repeatedly; a message that was already minted is reported as such.`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().String("from", "", "source chain of the original burn (name or chain id)")
	resumeCmd.Flags().String("to", "", "destination chain (name or chain id)")
	resumeCmd.Flags().String("burn-tx", "", "burn transaction hash")
	_ = resumeCmd.MarkFlagRequired("from")
	_ = resumeCmd.MarkFlagRequired("to")
	_ = resumeCmd.MarkFlagRequired("burn-tx")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	burnTx, _ := cmd.Flags().GetString("burn-tx")

	source, err := a.resolveChain(fromFlag)
	if err != nil {
		return err
	}
	dest, err := a.resolveChain(toFlag)
	if err != nil {
		return err
	}

	signer, err := a.newSigner(dest)
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator(source, dest, signer)
	if err != nil {
		return err
	}

	state, err := orch.Resume(cmd.Context(), burnTx)
	if err != nil {
		return describeFailure(state, err)
	}

	state, err = orch.Complete(cmd.Context(), state)
	if err != nil {
		return describeFailure(state, err)
	}
	fmt.Printf("Mint confirmed: %s\n", dest.TxURL(state.MintTxHash))
	return nil
}
