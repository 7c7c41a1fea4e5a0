package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jinn/internal/store"
	"jinn/internal/system"
	"jinn/internal/types"
	"jinn/internal/wish"
)

var wishPrepare bool

var wishCmd = &cobra.Command{
	Use:   "wish [text]",
	Short: "Make a wish",
	Long: `Resolves a wish against your incantations, crafting a new one when none fits,
and runs the selected incantation. With --prepare nothing is crafted or run;
the selection is printed instead.

Example:
  jinn wish "what is 17 squared"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		out := cmd.OutOrStdout()
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			resolve := j.Resolver.Wish
			if wishPrepare {
				resolve = j.Resolver.Prepare
			}
			res, err := resolve(cmd.Context(), p, text)
			if res != nil {
				printWish(cmd, res)
			}
			var exec *types.ExecutionError
			if errors.As(err, &exec) {
				printFailure(out, err)
				if res != nil && res.Mishap != nil {
					yellow.Fprintf(out, "recorded mishap #%d; try: jinn mishap fix-and-retry %d\n", res.Mishap.ID, res.Mishap.ID)
				}
				return nil
			}
			return err
		})
	},
}

func printWish(cmd *cobra.Command, res *wish.Result) {
	out := cmd.OutOrStdout()
	if res.Crafted != nil {
		gray.Fprint(out, "crafted ")
		printIncantation(out, res.Crafted)
	}
	switch {
	case res.Craft != "":
		cyan.Fprint(out, "would craft: ")
		fmt.Fprintln(out, res.Craft)
	case res.Tool != nil && res.Value == nil && res.Mishap == nil:
		cyan.Fprintf(out, "would call %s", res.Tool.Name)
		fmt.Fprintf(out, " with %v\n", res.Arguments)
	case res.Tool != nil && res.Mishap == nil:
		gray.Fprintf(out, "%s(%v)\n", res.Tool.Name, res.Arguments)
		printResult(out, res.Value)
	case res.Answer != "":
		fmt.Fprintln(out, res.Answer)
	}
}

var craftCmd = &cobra.Command{
	Use:   "craft [request]",
	Short: "Craft an incantation directly",
	Long: `Crafts an incantation from a description without making a wish.
Requires the manual_incantation_crafting setting.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPrincipal(cmd.Context(), func(j *system.Jinn, p *store.Principal) error {
			if !j.Store.ConfigBool(cmd.Context(), store.KeyManualIncantationCrafting) {
				return types.ErrCraftingDisabled
			}
			inc, err := j.Registry.Craft(cmd.Context(), p, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			green.Fprint(out, "crafted ")
			printIncantation(out, inc)
			return nil
		})
	},
}

func init() {
	wishCmd.Flags().BoolVar(&wishPrepare, "prepare", false, "Only show what the wish would do")
}
