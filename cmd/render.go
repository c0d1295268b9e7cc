package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TFMV/ontograph/config"
	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/ingest"
	"github.com/TFMV/ontograph/models"
	"github.com/TFMV/ontograph/physics"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/TFMV/ontograph/render"
)

type renderOptions struct {
	data       string
	root       string
	kind       string
	depth      int
	iterations int
	format     string
	output     string
	width      float64
	height     float64
	noLabels   bool
}

func renderCmd(opts *rootOptions) *cobra.Command {
	ro := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Lay out a graph from a dataset and write it as SVG, JSON or DOT",
		Example: "  ontograph render --data zoo.json --root http://example.org/zoo#rex --depth 2\n" +
			"  ontograph render --data zoo.yaml --root http://example.org/zoo#Animal --kind uml -o zoo.svg",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runRender(cmd, opts, cfg, ro)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&ro.data, "data", "d", "", "Dataset file (JSON or YAML)")
	f.StringVarP(&ro.root, "root", "r", "", "IRI of the root resource, or _:id for a blank node")
	f.StringVarP(&ro.kind, "kind", "k", string(explore.KindData), "Graph kind: data, explore, model or uml")
	f.IntVar(&ro.depth, "depth", 1, "Expansion depth from the root for data and explore graphs")
	f.IntVarP(&ro.iterations, "iterations", "n", 0, "Simulation ticks to run before rendering (default from configuration)")
	f.StringVarP(&ro.format, "format", "f", "svg", "Output format: "+strings.Join(render.Formats(), ", "))
	f.StringVarP(&ro.output, "output", "o", "", "Output file, - for stdout (defaults to output.<format>)")
	f.Float64Var(&ro.width, "width", 0, "Canvas width (default from configuration)")
	f.Float64Var(&ro.height, "height", 0, "Canvas height (default from configuration)")
	f.BoolVar(&ro.noLabels, "no-labels", false, "Omit node and link labels")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func runRender(cmd *cobra.Command, opts *rootOptions, cfg *config.Config, ro *renderOptions) error {
	renderer, err := render.GetRenderer(ro.format)
	if err != nil {
		return err
	}
	kind, err := explore.ParseKind(ro.kind)
	if err != nil {
		return err
	}
	if ro.depth < 1 {
		return apperrors.NewValidation("depth must be at least 1")
	}
	width, height := ro.width, ro.height
	if width <= 0 {
		width = cfg.Graph.Width
	}
	if height <= 0 {
		height = cfg.Graph.Height
	}
	iterations := ro.iterations
	if iterations <= 0 {
		iterations = cfg.Graph.SettleIterations
	}

	ds, err := ingest.LoadDataset(ro.data)
	if err != nil {
		return err
	}

	logger := opts.cliLogger()
	start := time.Now()
	g := graph.New(physics.NewSimulation(physics.WithVelocityDecay(cfg.Graph.VelocityDecay)), cfg.Graph.Forces, logger)
	g.InitSimulation(graph.SimulationOptions{Width: width, Height: height})
	exp, err := explore.New(kind, g, ds, explore.Options{
		Threshold:    cfg.Graph.Threshold,
		HideLiterals: cfg.Graph.HideLiterals,
		Concurrency:  cfg.Graph.Concurrency,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	root, err := exp.Populate(ctx, parseRoot(ro.root))
	if err != nil {
		return err
	}
	if ro.depth > 1 && root != nil && g.Dynamic() {
		if err := exp.ExpandDepth(ctx, root, ro.depth); err != nil {
			return err
		}
	}
	ticks := g.Settle(iterations)

	css, err := cfg.CSS()
	if err != nil {
		return err
	}
	out := render.NewDefaultOptions(ro.format)
	out.Theme = css
	out.Background = cfg.Theme.Background
	out.ShowLabels = !ro.noLabels
	out.ShowLinkLabels = !ro.noLabels
	doc, err := renderer.Render(g.Snapshot(), out)
	if err != nil {
		return err
	}

	dest := ro.output
	if dest == "" {
		dest = "output." + strings.ToLower(ro.format)
	}
	if err := writeOutput(cmd.OutOrStdout(), dest, doc); err != nil {
		return err
	}

	nodes, links := g.Len()
	w := cmd.ErrOrStderr()
	good.Fprintf(w, "rendered %s graph", kind)
	fmt.Fprintf(w, " %d nodes, %d links", nodes, links)
	subtle.Fprintf(w, " (%d ticks, %s)\n", ticks, time.Since(start).Round(time.Millisecond))
	if root != nil && !root.Open && g.Dynamic() {
		warn.Fprintln(w, "root has more links than the threshold and was left closed")
	}
	if dest != "-" {
		subtle.Fprintf(w, "wrote %s\n", dest)
	}
	return nil
}

func parseRoot(s string) *models.Resource {
	if id, ok := strings.CutPrefix(s, "_:"); ok {
		return models.NewBNode(id)
	}
	return models.NewIRI(s, "")
}

// writeOutput writes doc to path, or to stdout when path is "-".
func writeOutput(stdout io.Writer, path string, doc []byte) error {
	if path == "-" {
		_, err := stdout.Write(doc)
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
