package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTreeCmd(opts *globalOptions) *cobra.Command {
	var flat bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the organization tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgs, _, err := opts.connect(cmd, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flat {
				nodes, err := orgs.ListFlat(cmd.Context())
				if err != nil {
					return classify(err)
				}
				return writeJSON(out, nodes)
			}
			forest, err := orgs.FetchTree(cmd.Context())
			if err != nil {
				return classify(err)
			}
			if opts.JSON {
				return writeJSON(out, forest)
			}
			return printTree(out, forest)
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "print the flat node list as JSON")
	return cmd
}

func newDashboardCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print tree, statistics and allowed types in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgs, _, err := opts.connect(cmd, false)
			if err != nil {
				return err
			}
			d, err := orgs.LoadDashboard(cmd.Context())
			if err != nil {
				return classify(err)
			}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return writeJSON(out, d)
			}
			if err := printStats(out, d.Stats); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "types: %s\n", strings.Join(d.Types, ", ")); err != nil {
				return err
			}
			return printTree(out, d.Tree)
		},
	}
}
