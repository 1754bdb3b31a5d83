// Package cli implements gatectl, the operator command line for bridges and
// tokens.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spec-kit/authgate/internal/bootstrap"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/observability"
)

// AppFactory builds the service a command operates on.
type AppFactory func(ctx context.Context) (*bootstrap.App, error)

// FromEnvironment loads configuration the same way the API server does.
func FromEnvironment(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return bootstrap.Build(ctx, cfg, logger.Named("gatectl"))
}

type runner struct {
	factory AppFactory
	app     *bootstrap.App
}

// withApp builds the service once per invocation and hands it to fn.
func (r *runner) withApp(fn func(cmd *cobra.Command, args []string, a *bootstrap.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if r.app == nil {
			a, err := r.factory(cmd.Context())
			if err != nil {
				return err
			}
			r.app = a
		}
		return fn(cmd, args, r.app)
	}
}

func (r *runner) close() {
	if r.app != nil {
		r.app.Close()
		r.app = nil
	}
}

// Execute runs gatectl with args. The service is closed once the command
// returns, including when it fails.
func Execute(ctx context.Context, factory AppFactory, args []string, out io.Writer) error {
	r := &runner{factory: factory}
	defer r.close()

	root := newRootCommand(r)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func newRootCommand(r *runner) *cobra.Command {
	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Manage feature bridges and inspect auth tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBridgesCommand(r),
		newFiltersCommand(r),
		newCheckCommand(r),
		newBustCommand(r),
		newTokenCommand(r),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
