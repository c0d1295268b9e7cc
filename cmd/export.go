package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TFMV/ontograph/export"
)

func exportCmd(opts *rootOptions) *cobra.Command {
	var (
		input  string
		output string
		inline bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Inline an SVG's styles and print it as a data URI",
		Long: "Resolves the theme stylesheet and any <style> elements into inline style\n" +
			"attributes, drops framework attributes and prints a base64 data URI.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			css, err := cfg.CSS()
			if err != nil {
				return err
			}
			doc, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}

			exporter, err := export.New(css, opts.cliLogger())
			if err != nil {
				return err
			}
			var out []byte
			if inline {
				out, err = exporter.Inline(doc)
			} else {
				var uri string
				uri, err = exporter.Export(doc)
				out = []byte(uri + "\n")
			}
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), output, out); err != nil {
				return err
			}
			if output != "-" {
				subtle.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "SVG document to export")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().BoolVar(&inline, "svg", false, "Write the inlined SVG instead of a data URI")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
