package main

import (
	"errors"

	"github.com/spf13/cobra"

	"jinn/internal/store"
	"jinn/internal/system"
	"jinn/internal/types"
)

var mishapCmd = &cobra.Command{
	Use:   "mishap",
	Short: "Fix, retry and erase recorded failures",
}

var mishapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the mishaps of your incantations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			mishaps, err := j.Ledger.List(cmd.Context(), p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(mishaps) == 0 {
				green.Fprintln(out, "No mishaps.")
				return nil
			}
			for _, m := range mishaps {
				printMishap(out, m, nil)
			}
			return nil
		})
	},
}

var mishapFixCmd = &cobra.Command{
	Use:   "fix [id]",
	Short: "Ask for a repaired version of the failing code",
	Args:  cobra.ExactArgs(1),
	RunE: mishapAction(func(cmd *cobra.Command, j *system.Jinn, m *store.Mishap) error {
		inc, err := j.Ledger.Fix(cmd.Context(), m)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		green.Fprint(out, "repaired ")
		printIncantation(out, inc)
		return nil
	}),
}

var mishapRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Run the current code with the failed call's arguments",
	Args:  cobra.ExactArgs(1),
	RunE: mishapAction(func(cmd *cobra.Command, j *system.Jinn, m *store.Mishap) error {
		result, err := j.Ledger.Retry(cmd.Context(), m)
		return reportRetry(cmd, result, err)
	}),
}

var mishapFixAndRetryCmd = &cobra.Command{
	Use:   "fix-and-retry [id]",
	Short: "Repair the code, then retry the failed call",
	Args:  cobra.ExactArgs(1),
	RunE: mishapAction(func(cmd *cobra.Command, j *system.Jinn, m *store.Mishap) error {
		result, err := j.Ledger.FixAndRetry(cmd.Context(), m)
		return reportRetry(cmd, result, err)
	}),
}

var mishapEraseCmd = &cobra.Command{
	Use:   "erase [id]",
	Short: "Forget a mishap",
	Args:  cobra.ExactArgs(1),
	RunE: mishapAction(func(cmd *cobra.Command, j *system.Jinn, m *store.Mishap) error {
		if err := j.Ledger.Erase(cmd.Context(), m); err != nil {
			return err
		}
		green.Fprintf(cmd.OutOrStdout(), "erased mishap #%d\n", m.ID)
		return nil
	}),
}

// reportRetry prints the outcome of a retry. A failing call is an outcome,
// not a command error; the ledger has already recorded it.
func reportRetry(cmd *cobra.Command, result interface{}, err error) error {
	out := cmd.OutOrStdout()
	if err != nil {
		var exec *types.ExecutionError
		if !errors.As(err, &exec) {
			return err
		}
		printFailure(out, err)
		return nil
	}
	printResult(out, result)
	return nil
}

func mishapAction(fn func(cmd *cobra.Command, j *system.Jinn, m *store.Mishap) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			m, err := j.Ledger.Get(cmd.Context(), p, id)
			if err != nil {
				return err
			}
			return fn(cmd, j, m)
		})
	}
}

func init() {
	mishapCmd.AddCommand(mishapListCmd)
	mishapCmd.AddCommand(mishapFixCmd)
	mishapCmd.AddCommand(mishapRetryCmd)
	mishapCmd.AddCommand(mishapFixAndRetryCmd)
	mishapCmd.AddCommand(mishapEraseCmd)
}
