// Package main provides the Digitizer CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conceptmap-ai/digitizer/internal/config"
	"github.com/conceptmap-ai/digitizer/internal/observability"
	"github.com/conceptmap-ai/digitizer/pkg/digitizer"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "digitizer-cli",
	Short: "Digitizer CLI for converting drawings into concept graphs",
	Long: `Digitizer CLI converts hand-drawn diagrams into structured concept graphs.

Use this tool to:
- Digitize a drawing snapshot (JSON) or a pre-rendered SVG document
- Inspect the resulting concept graph, relationships, and layout hint
- Exercise the recognition service from the command line

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			ServiceName: "digitizer-cli",
		})

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newDigitizeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newDigitizeCmd creates the digitize subcommand.
func newDigitizeCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "digitize",
		Short: "Digitize a drawing into a concept graph",
		Long: `Digitize renders the drawing, sends it to the recognition service, and
prints the validated concept graph.

The input is a snapshot JSON file ({"shapes": [...]}) or an SVG document;
.svg files are detected by extension.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Recognition.Timeout+30*time.Second)
			defer cancel()

			content, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			client, err := digitizer.NewClientWithConfig(cfg, logger)
			if err != nil {
				return fmt.Errorf("create client: %w", err)
			}
			defer client.Close()

			ui := NewUI(outputJSON)
			spin := ui.Spinner("Digitizing drawing...")
			spin.Start()

			var result *digitizer.Result
			if strings.EqualFold(filepath.Ext(input), ".svg") {
				result, err = client.DigitizeSVG(ctx, string(content))
			} else {
				var snapshot digitizer.Snapshot
				if err := json.Unmarshal(content, &snapshot); err != nil {
					spin.Stop()
					return fmt.Errorf("parse snapshot: %w", err)
				}
				result, err = client.Digitize(ctx, snapshot)
			}
			spin.Stop()

			if err != nil {
				return fmt.Errorf("digitization failed: %w", err)
			}

			if output != "" {
				data, err := json.MarshalIndent(result.Graph, "", "  ")
				if err != nil {
					return fmt.Errorf("encode graph: %w", err)
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"graph":    result.Graph,
					"degraded": result.Degraded,
					"source":   result.Source,
				})
			}

			ui.Success("Digitization completed")
			ui.Info("Source: %s | Concepts: %d | Relationships: %d",
				result.Source, len(result.Graph.Concepts), len(result.Graph.Relationships))
			if result.Degraded {
				ui.Warning("Export fell back to a blank canvas render")
			}

			fmt.Printf("\nRoot: %s (%s layout)\n", result.Graph.Structure.Root, result.Graph.Structure.Type)
			for _, c := range result.Graph.Concepts {
				fmt.Printf("  • %s: %s\n", c.ID, c.Name)
			}
			for _, r := range result.Graph.Relationships {
				fmt.Printf("  %s --[%s]--> %s\n", r.Source, r.Label, r.Target)
			}

			if output != "" {
				ui.Success("Graph written to %s", output)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "snapshot JSON or SVG file (required)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "write the concept graph JSON to a file")

	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.Encode(map[string]string{
					"version": "0.1.0",
				})
				return
			}
			fmt.Println("digitizer-cli v0.1.0")
		},
	}
}
