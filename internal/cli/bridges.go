package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/authgate/internal/api/dto"
	"github.com/spec-kit/authgate/internal/bootstrap"
	"github.com/spec-kit/authgate/internal/domain"
)

func newBridgesCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridges",
		Short: "List, create and delete bridges",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every bridge with its filters",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *bootstrap.App) error {
			bridges, err := a.GateAdmin.ListBridges(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]dto.BridgeResponse, 0, len(bridges))
			for i := range bridges {
				out = append(out, dto.NewBridgeResponse(&bridges[i]))
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty bridge; it denies everyone until filters are added",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *bootstrap.App) error {
			if _, err := a.GateAdmin.CreateBridge(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "created bridge %s\n", args[0])
			return err
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a bridge and its filters",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *bootstrap.App) error {
			if err := a.GateAdmin.DeleteBridge(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted bridge %s\n", args[0])
			return err
		}),
	})

	return cmd
}

func newFiltersCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage bridge filters",
	}

	var (
		kind      string
		blacklist bool
		payload   string
	)
	add := &cobra.Command{
		Use:   "add BRIDGE",
		Short: "Append a filter to a bridge",
		Example: `  gatectl filters add beta --kind all-users
  gatectl filters add beta --kind specific-users --blacklist --payload '{"emails":["eve@example.com"]}'
  gatectl filters add beta --kind percentage --payload '{"percentage":25}'
  gatectl filters add beta --kind expression --payload '{"expr":"identity.email endsWith \"@example.com\""}'`,
		Args: cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *bootstrap.App) error {
			var raw json.RawMessage
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload is not valid JSON")
				}
				raw = json.RawMessage(payload)
			}
			f, err := a.GateAdmin.AddFilter(cmd.Context(), args[0], domain.FilterKind(kind), !blacklist, raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewFilterResponse(f))
		}),
	}
	add.Flags().StringVar(&kind, "kind", "", "filter kind (all-users, specific-users, percentage, expression)")
	add.Flags().BoolVar(&blacklist, "blacklist", false, "deny matching identities instead of allowing them")
	add.Flags().StringVar(&payload, "payload", "", "kind-specific JSON payload")
	_ = add.MarkFlagRequired("kind")
	cmd.AddCommand(add)

	return cmd
}
