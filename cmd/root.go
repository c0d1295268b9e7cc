// Package cmd implements the ontograph command line.
package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/ontograph/config"
	"github.com/TFMV/ontograph/pkg/logging"
)

var version = "0.3.0"

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
	warn   = color.New(color.FgYellow)
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ontograph",
		Short: "Force-directed graphs of RDF, OWL and SKOS resources",
		Long: brand.Sprint("ontograph") + " explores ontologies and datasets as interactive graphs\n" +
			subtle.Sprint("Serve graph sessions over HTTP, or render and export graphs from the command line"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("ontograph {{ .Version }}\n")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML, JSON or TOML configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		serveCmd(opts),
		renderCmd(opts),
		exportCmd(opts),
	)
	return root
}

// Execute runs the command line and reports a failure on stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		bad.Fprintf(os.Stderr, "ontograph: %v\n", err)
	}
	return err
}

// load reads the configuration named by --config, or the defaults.
func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

// cliLogger is a no-op unless --verbose is set.
func (o *rootOptions) cliLogger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	return logging.Must("debug", "console")
}
