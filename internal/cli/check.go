package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/authgate/internal/bootstrap"
	"github.com/spec-kit/authgate/internal/domain"
)

func newCheckCommand(r *runner) *cobra.Command {
	var (
		userID string
		email  string
	)
	cmd := &cobra.Command{
		Use:   "check BRIDGE",
		Short: "Evaluate a bridge for a user, or for an anonymous caller",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *bootstrap.App) error {
			identity, err := lookupIdentity(cmd, a, userID, email)
			if err != nil {
				return err
			}
			verdict := "denied"
			if a.Gates.CanCross(cmd.Context(), args[0], identity) {
				verdict = "allowed"
			}
			who := identity.ID
			if identity.Anonymous() {
				who = "anonymous"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s for %s\n", args[0], verdict, who)
			return err
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.MarkFlagsMutuallyExclusive("user", "email")
	return cmd
}

func lookupIdentity(cmd *cobra.Command, a *bootstrap.App, userID, email string) (domain.Identity, error) {
	var (
		user *domain.User
		err  error
	)
	switch {
	case userID != "":
		user, err = a.Store.Users().GetByID(cmd.Context(), userID)
	case email != "":
		user, err = a.Store.Users().GetByEmail(cmd.Context(), email)
	default:
		return domain.Identity{}, nil
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("look up user: %w", err)
	}
	return domain.IdentityFromUser(user), nil
}

func newBustCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "bust",
		Short: "Drop cached bridge snapshots so every process reloads",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *bootstrap.App) error {
			if err := a.GateAdmin.Bust(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "feature gate cache busted")
			return err
		}),
	}
}
