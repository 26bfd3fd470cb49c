// Package cli is the operator command line of a panelchain coordinator.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "yaml"
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"json", "yaml"}

// NewRootCommand creates the root command of the panelchain CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "panelchain",
		Short: "panelchain - solar panel lifecycle coordinator",
		Long: `Track recovered solar panels from collection to reuse, recycling or art,
mirroring every lifecycle milestone onto the configured ledger.

Configuration is read from --config and PANELCHAIN_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return &ExitError{Code: ExitCommandError, Err: fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|yaml)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewIntakeCommand(opts))
	cmd.AddCommand(NewCollectCommand(opts))
	cmd.AddCommand(NewTransitCommand(opts))
	cmd.AddCommand(NewReceiveCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRefurbishCommand(opts))
	cmd.AddCommand(NewRecycleCommand(opts))
	cmd.AddCommand(NewArtCommand(opts))
	cmd.AddCommand(NewSellCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// run opens the app, runs fn against it and prints the result. Coordinator
// rejections are printed as error responses and mapped to ExitFailure.
func run(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, app *App) (interface{}, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}

	app, err := Open(ctx, opts.ConfigPath)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Err: err}
	}
	defer app.Close()

	data, err := fn(ctx, app)
	if err != nil {
		if perr := out.failure(err); perr != nil {
			return perr
		}
		return &ExitError{Code: GetExitCode(err), Err: err}
	}
	return out.success(data)
}
