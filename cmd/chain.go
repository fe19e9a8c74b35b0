// File: cmd/chain.go
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tandem/api/schemas"
)

func newAnalyzeCmd() *cobra.Command {
	var domFile string

	cmd := &cobra.Command{
		Use:     "analyze [actions...]",
		Short:   "Judges whether a list of actions can run as one chain",
		Example: `  tandem analyze 'setValue(3,"Jane")' 'setValue(4,"Doe")' --dom page.html`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comps, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer comps.Shutdown(cmd.Context())

			var dom string
			if domFile != "" {
				raw, err := os.ReadFile(domFile)
				if err != nil {
					return err
				}
				dom = string(raw)
			}
			return writeOutput(cmd, comps.Coordinator.AnalyzeChain(args, dom))
		},
	}
	cmd.Flags().StringVar(&domFile, "dom", "", "file holding the current DOM snapshot")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Turns planner output into a chain or a single action",
		Long:  "Reads a plan input document (query, planStep, dom, formData, proposedActions, plannerText) and prints the step plan.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comps, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer comps.Shutdown(cmd.Context())

			var in schemas.PlanInput
			if err := readInput(cmd, input, &in); err != nil {
				return err
			}
			plan, err := comps.Coordinator.PlanStep(cmd.Context(), in)
			if err != nil {
				return err
			}
			return writeOutput(cmd, plan)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "plan input JSON file, - for stdin")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Decides how to continue a chain that stopped early",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comps, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer comps.Shutdown(cmd.Context())

			var req schemas.RecoveryRequest
			if err := readInput(cmd, input, &req); err != nil {
				return err
			}
			result, err := comps.Coordinator.Recover(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeOutput(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "recovery request JSON file, - for stdin")
	cmd.Flags().Int("max-retries", 0, "retry budget per failed action (overrides chain.max_retry_attempts)")
	bindToConfig(cmd, "max-retries", "chain.max_retry_attempts")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verifies one executed action through the tiered pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, comps, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer comps.Shutdown(cmd.Context())

			var opts schemas.VerificationOptions
			if err := readInput(cmd, input, &opts); err != nil {
				return err
			}
			result, err := comps.Coordinator.VerifyStep(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "verification request JSON file, - for stdin")
	return cmd
}
