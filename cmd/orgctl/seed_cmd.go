package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var file, parent string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed --file <units.yaml> [--parent <id|root>]",
		Short: "Create a subtree described by a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parentID, err := parseParent(parent)
			if err != nil {
				return withCode(exitUsage, err)
			}
			f, err := os.Open(file)
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer func() { _ = f.Close() }()
			seed, err := parseSeed(f)
			if err != nil {
				return withCode(exitUsage, err)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				_, err := fmt.Fprintf(out, "%d units would be created\n", seed.Count())
				return err
			}

			orgs, _, err := opts.connect(cmd, true)
			if err != nil {
				return err
			}
			created := 0
			err = seed.apply(cmd.Context(), orgs, parentID, func(name string, id int64) {
				created++
				if !opts.JSON {
					_, _ = fmt.Fprintf(out, "%d\t%s\n", id, name)
				}
			})
			if opts.JSON {
				if werr := writeJSON(out, map[string]int{"created": created}); werr != nil && err == nil {
					err = werr
				}
			}
			return classify(err)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file")
	cmd.Flags().StringVar(&parent, "parent", "", "attach the seeded roots under this id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file and print how many units it holds")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
