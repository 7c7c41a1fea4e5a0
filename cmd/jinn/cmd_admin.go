package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jinn/internal/auth"
	"jinn/internal/store"
	"jinn/internal/system"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and edit runtime settings (administrators)",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	Args:  cobra.NoArgs,
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		settings, err := j.Store.ConfigAll(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range settings {
			cyan.Fprintf(out, "%s", s.Key)
			fmt.Fprintf(out, " = %s\n", s.Value)
		}
		return nil
	}),
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		value, ok, err := j.Store.ConfigGet(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("setting %q is not set", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	}),
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Args:  cobra.MinimumNArgs(2),
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		value := strings.Join(args[1:], " ")
		if err := j.Store.ConfigSet(cmd.Context(), args[0], value); err != nil {
			return err
		}
		green.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], value)
		return nil
	}),
}

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Manage principals (administrators)",
}

var principalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List principals",
	Args:  cobra.NoArgs,
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		principals, err := j.Store.ListPrincipals(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, p := range principals {
			printPrincipal(cmd, p)
		}
		if len(principals) == 0 {
			gray.Fprintln(out, "No principals.")
		}
		return nil
	}),
}

var principalAddCmd = &cobra.Command{
	Use:   "add [moniker] [password]",
	Short: "Register a principal (unverified until verified)",
	Args:  cobra.ExactArgs(2),
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		p, err := j.Auth.Login(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printPrincipal(cmd, p)
		gray.Fprintf(cmd.OutOrStdout(), "token: %s\n", p.Token)
		return nil
	}),
}

var principalVerifyCmd = &cobra.Command{
	Use:   "verify [moniker]",
	Short: "Flip a principal's verification",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		ctx := cmd.Context()
		p, err := j.Store.PrincipalByMoniker(ctx, args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("no principal named %q", args[0])
		}
		if err := j.Store.SetVerified(ctx, p.ID, !p.Verified); err != nil {
			return err
		}
		p.Verified = !p.Verified
		printPrincipal(cmd, p)
		return nil
	}),
}

var incidentsLimit int

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Show recent synthesis failures (administrators)",
	Args:  cobra.NoArgs,
	RunE: adminAction(func(cmd *cobra.Command, j *system.Jinn, args []string) error {
		incidents, err := j.Registry.Incidents(cmd.Context(), incidentsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(incidents) == 0 {
			green.Fprintln(out, "No incidents.")
			return nil
		}
		for _, inc := range incidents {
			red.Fprintf(out, "#%d %s", inc.ID, inc.Kind)
			gray.Fprintf(out, " at %s\n", inc.CreatedAt.Format("2006-01-02 15:04:05"))
			for _, line := range strings.Split(strings.TrimSpace(inc.Traceback), "\n") {
				fmt.Fprintf(out, "  | %s\n", line)
			}
		}
		return nil
	}),
}

func printPrincipal(cmd *cobra.Command, p *store.Principal) {
	out := cmd.OutOrStdout()
	cyan.Fprintf(out, "#%d %s", p.ID, p.Moniker)
	var flags []string
	if p.Admin {
		flags = append(flags, "admin")
	}
	if p.Verified {
		flags = append(flags, "verified")
	} else {
		flags = append(flags, "unverified")
	}
	gray.Fprintf(out, " (%s)\n", strings.Join(flags, ", "))
}

// adminAction runs fn when the acting principal is an administrator.
func adminAction(fn func(cmd *cobra.Command, j *system.Jinn, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			if err := auth.RequireAdmin(p); err != nil {
				return err
			}
			return fn(cmd, j, args)
		})
	}
}

func init() {
	incidentsCmd.Flags().IntVarP(&incidentsLimit, "limit", "n", 20, "Number of incidents to show")

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	principalCmd.AddCommand(principalListCmd)
	principalCmd.AddCommand(principalAddCmd)
	principalCmd.AddCommand(principalVerifyCmd)
}
