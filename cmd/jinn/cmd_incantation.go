package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"jinn/internal/store"
	"jinn/internal/system"
	"jinn/internal/types"
)

var incantationCmd = &cobra.Command{
	Use:     "incantation",
	Aliases: []string{"inc"},
	Short:   "Inspect and manage incantations",
}

var incantationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the incantations visible to you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			incs, err := j.Registry.Visible(cmd.Context(), p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(incs) == 0 {
				gray.Fprintln(out, "No incantations yet.")
				return nil
			}
			for _, inc := range incs {
				printIncantation(out, inc)
			}
			return nil
		})
	},
}

var incantationShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an incantation's code, schema, overrides and mishaps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			ctx := cmd.Context()
			inc, err := j.Registry.Get(ctx, p, id)
			if err != nil {
				return err
			}
			params, err := j.Registry.Parameters(inc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printIncantation(out, inc)
			gray.Fprintf(out, "request: %s\n", inc.Request)
			gray.Fprintln(out, "code:")
			fmt.Fprintln(out, inc.Code)
			gray.Fprintln(out, "schema:")
			fmt.Fprintln(out, inc.Schema.String())
			if len(inc.Overrides) > 0 {
				gray.Fprintln(out, "overrides:")
				if err := printJSON(out, inc.Overrides); err != nil {
					return err
				}
			}
			if inc.OwnerID != p.ID {
				return nil
			}
			mishaps, err := j.Ledger.For(ctx, inc)
			if err != nil {
				return err
			}
			for _, m := range mishaps {
				printMishap(out, m, params)
			}
			return nil
		})
	},
}

var incantationRunCmd = &cobra.Command{
	Use:   "run [id] [name=value...]",
	Short: "Call an incantation with arguments",
	Long: `Calls an incantation directly. Values are parsed as JSON when they can be
and taken as strings otherwise. A failing call is recorded as a mishap.

Example:
  jinn incantation run 3 a=2 b=40`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		callArgs, err := parseAssignments(args[1:], true)
		if err != nil {
			return err
		}
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			ctx := cmd.Context()
			inc, err := j.Registry.Get(ctx, p, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := j.Registry.Execute(ctx, inc, callArgs)
			if err != nil {
				var exec *types.ExecutionError
				if !errors.As(err, &exec) {
					return err
				}
				printFailure(out, err)
				m, recErr := j.Ledger.RecordFailure(ctx, inc, callArgs, err)
				if recErr != nil {
					return recErr
				}
				yellow.Fprintf(out, "recorded mishap #%d\n", m.ID)
				return nil
			}
			printResult(out, result)
			return nil
		})
	},
}

var incantationDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an incantation and its mishaps",
	Args:  cobra.ExactArgs(1),
	RunE: ownedAction(func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error {
		if err := j.Registry.Delete(cmd.Context(), inc); err != nil {
			return err
		}
		green.Fprintf(cmd.OutOrStdout(), "deleted #%d %s\n", inc.ID, inc.Name)
		return nil
	}),
}

var incantationOverrideCmd = &cobra.Command{
	Use:   "override [id] [name=value...]",
	Short: "Bind parameters to constants in the code",
	Long: `Removes the named parameters from the incantation, substitutes the values
into its code and regenerates the schema. An empty value leaves a
previously bound parameter bound.`,
	Args: cobra.MinimumNArgs(2),
	RunE: ownedAction(func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error {
		overrides, err := parseOverrides(args)
		if err != nil {
			return err
		}
		updated, err := j.Registry.ApplyOverrides(cmd.Context(), inc, overrides)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		green.Fprint(out, "bound ")
		printIncantation(out, updated)
		fmt.Fprintln(out, updated.Code)
		return nil
	}),
}

var incantationOverrideRawCmd = &cobra.Command{
	Use:   "override-raw [id] [name=value...]",
	Short: "Store default arguments without changing the code",
	Long: `Replaces the stored override mapping verbatim. The code and schema are left
alone; stored values are supplied to calls while the code still declares them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: ownedAction(func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error {
		overrides, err := parseOverrides(args)
		if err != nil {
			return err
		}
		updated, err := j.Registry.StoreOverrides(cmd.Context(), inc, overrides)
		if err != nil {
			return err
		}
		green.Fprintf(cmd.OutOrStdout(), "stored %d override(s) on #%d\n", len(updated.Overrides), updated.ID)
		return nil
	}),
}

var incantationRedescribeCmd = &cobra.Command{
	Use:   "redescribe [id]",
	Short: "Regenerate an incantation's schema from its code",
	Args:  cobra.ExactArgs(1),
	RunE: ownedAction(func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error {
		updated, err := j.Registry.Redescribe(cmd.Context(), inc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), updated.Schema.String())
		return nil
	}),
}

var adjustSchema bool

var incantationAdjustCmd = &cobra.Command{
	Use:   "adjust [id] [reason]",
	Short: "Ask for a revision of an incantation's code",
	Args:  cobra.MinimumNArgs(2),
	RunE: ownedAction(func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error {
		updated, err := j.Registry.Adjust(cmd.Context(), inc, strings.Join(args, " "), adjustSchema)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		green.Fprint(out, "adjusted ")
		printIncantation(out, updated)
		fmt.Fprintln(out, updated.Code)
		return nil
	}),
}

var incantationPublicCmd = &cobra.Command{
	Use:   "public [id] [true|false]",
	Short: "Share an incantation with every principal, or stop sharing it",
	Args:  cobra.ExactArgs(2),
	RunE: ownedAction(func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error {
		public, err := strconv.ParseBool(args[0])
		if err != nil {
			return fmt.Errorf("%w: %q is not a boolean", types.ErrInvalidArgument, args[0])
		}
		updated, err := j.Registry.SetPublic(cmd.Context(), inc, public)
		if err != nil {
			return err
		}
		printIncantation(cmd.OutOrStdout(), updated)
		return nil
	}),
}

// ownedAction resolves the incantation named by the first argument, which
// the acting principal must own, and passes the remaining arguments on.
func ownedAction(fn func(cmd *cobra.Command, j *system.Jinn, inc *store.Incantation, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			inc, err := j.Registry.Owned(cmd.Context(), p, id)
			if err != nil {
				return err
			}
			return fn(cmd, j, inc, args[1:])
		})
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", types.ErrInvalidArgument, s)
	}
	return id, nil
}

// parseAssignments parses name=value pairs. With decode, values that are
// valid JSON are decoded (numbers as json.Number).
func parseAssignments(pairs []string, decode bool) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", types.ErrInvalidArgument, pair)
		}
		out[name] = raw
		if !decode {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err == nil && !dec.More() {
			out[name] = v
		}
	}
	return out, nil
}

func parseOverrides(pairs []string) (map[string]string, error) {
	parsed, err := parseAssignments(pairs, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(parsed))
	for k, v := range parsed {
		out[k] = v.(string)
	}
	return out, nil
}

func init() {
	incantationAdjustCmd.Flags().BoolVar(&adjustSchema, "schema", true, "Regenerate the schema after adjusting")

	incantationCmd.AddCommand(incantationListCmd)
	incantationCmd.AddCommand(incantationShowCmd)
	incantationCmd.AddCommand(incantationRunCmd)
	incantationCmd.AddCommand(incantationDeleteCmd)
	incantationCmd.AddCommand(incantationOverrideCmd)
	incantationCmd.AddCommand(incantationOverrideRawCmd)
	incantationCmd.AddCommand(incantationRedescribeCmd)
	incantationCmd.AddCommand(incantationAdjustCmd)
	incantationCmd.AddCommand(incantationPublicCmd)
}
