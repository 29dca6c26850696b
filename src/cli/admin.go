package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin users",
		Long:  "Create accounts that can sign in to the admin API.",
	}

	cmd.AddCommand(newAdminCreateCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin user",
		Example: `  license-server admin create --username admin --password secret123
  license-server admin create --username admin  # prompts for password
  license-server admin create --username support --role user`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				password, err = promptPassword(cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}
			return runAdminCreate(cmd.Context(), cmd.OutOrStdout(), username, password, models.Role(role))
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "Role: admin or user")
	cmd.MarkFlagRequired("username")

	return cmd
}

// promptPassword reads a password twice from the terminal without echo
func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Fprintln(out)

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

func runAdminCreate(ctx context.Context, out io.Writer, username, password string, role models.Role) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	admin, err := services.NewAdminService(store.Admins()).CreateAdminUser(ctx, username, password, role)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Created %s user %q (id %s)\n", admin.Role, admin.Username, admin.ID)
	return nil
}
