package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/oratio/internal/rules"
)

func newRulesCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the loaded rule packs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the available rule pack languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo := repository(g)
			for _, lang := range repo.Languages() {
				marker := ""
				if lang == g.cfg.Rules.DefaultLanguage {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", lang, marker)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <language>",
		Short: "Print the rules of one language pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pack, err := repository(g).Load(args[0])
			if errors.Is(err, rules.ErrUnknownLanguage) {
				return &InputError{Err: err}
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tRULE\tSEVERITY\tDESCRIPTION")
			for _, cat := range pack.Categories {
				for _, r := range pack.Rules(cat) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cat, r.Name, r.Severity, r.Description)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d rules in %d categories\n", pack.Len(), len(pack.Categories))
			return nil
		},
	})
	return cmd
}

func repository(g *globals) *rules.Repository {
	var opts []rules.RepositoryOption
	if g.cfg.Rules.Dir != "" {
		opts = append(opts, rules.WithDir(g.cfg.Rules.Dir))
	}
	return rules.NewRepository(opts...)
}
