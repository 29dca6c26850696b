package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/khabaroff/hwid-license-server/src/services"
	"github.com/spf13/cobra"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage license keys",
		Long:  "Create, list and reset license keys directly against the configured store.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyResetCmd())

	return cmd
}

// withStore opens the configured store for the duration of fn
func withStore(ctx context.Context, fn func(ctx context.Context, store repositories.Store, resetClearsBinding bool) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store, cfg.ResetClearsBinding)
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		maxUses   int
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new license key",
		Example: `  license-server key create
  license-server key create --max-uses 5 --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := services.CreateKeyParams{}
			if maxUses > 0 {
				params.MaxUses = &maxUses
			}
			if expiresIn > 0 {
				expires := time.Now().UTC().Add(expiresIn)
				params.ExpiresAt = &expires
			}

			return withStore(cmd.Context(), func(ctx context.Context, store repositories.Store, _ bool) error {
				return runKeyCreate(ctx, cmd.OutOrStdout(), services.NewKeyService(store, true), params)
			})
		},
	}

	cmd.Flags().IntVar(&maxUses, "max-uses", 0, "Maximum accepted validations (0 = unlimited)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Lifetime of the key (0 = never expires)")

	return cmd
}

func runKeyCreate(ctx context.Context, out io.Writer, ks *services.KeyService, params services.CreateKeyParams) error {
	key, err := ks.CreateKey(ctx, params)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "License key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:      %s\n", key.Key)
	if key.MaxUses != nil {
		fmt.Fprintf(out, "  Max uses: %d\n", *key.MaxUses)
	}
	if key.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires:  %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store repositories.Store, _ bool) error {
				return runKeyList(ctx, cmd.OutOrStdout(), services.NewKeyService(store, true), jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(ctx context.Context, out io.Writer, ks *services.KeyService, jsonOutput bool) error {
	keys, err := ks.ListKeys(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No license keys. Use 'license-server key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-70s %-12s %-9s %-20s\n", "KEY", "STATUS", "USES", "EXPIRES")
	fmt.Fprintf(out, "%-70s %-12s %-9s %-20s\n", "---", "------", "----", "-------")
	for _, k := range keys {
		uses := fmt.Sprintf("%d", k.CurrentUses)
		if k.MaxUses != nil {
			uses = fmt.Sprintf("%d/%d", k.CurrentUses, *k.MaxUses)
		}
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%-70s %-12s %-9s %-20s\n", k.Key.Key, k.Status, uses, expires)
	}

	return nil
}

// ---------- key reset-hwid ----------

func newKeyResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-hwid <key>",
		Short: "Clear a key's attempt history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store repositories.Store, resetClearsBinding bool) error {
				result, err := services.NewKeyService(store, resetClearsBinding).ResetHWID(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s: %d attempts cleared, binding cleared: %t\n",
					args[0], result.AttemptsCleared, result.BindingCleared)
				return nil
			})
		},
	}
}
