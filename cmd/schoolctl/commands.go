package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/app"
	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/internal/service"
	"github.com/noah-isme/academy-admin-api/migrations"
	"github.com/noah-isme/academy-admin-api/pkg/config"
	"github.com/noah-isme/academy-admin-api/pkg/logger"
)

// containerFactory opens the application for a command. Tests replace it.
var containerFactory = func() (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(cfg, logr)
}

func withContainer(fn func(ctx context.Context, c *app.Container) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		c, err := containerFactory()
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd.Context(), c)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schoolctl",
		Short:         "Operator tooling for the academy admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newBackupCmd(), newRegistrationCmd(), newAdminCmd(), newSeedCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			applied, err := migrations.Apply(ctx, c.DB, c.Logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("schema is up to date")
				return nil
			}
			fmt.Printf("applied %d migration(s): %s\n", len(applied), strings.Join(applied, ", "))
			return nil
		}),
	}
}

func newBackupCmd() *cobra.Command {
	backup := &cobra.Command{
		Use:   "backup",
		Short: "Export, restore or reset the dataset",
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a complete backup JSON document",
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			snapshot, err := c.Services.Backup.Export(ctx, nil)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("encode backup: %w", err)
			}
			if out == "" {
				out = service.BackupFilename(time.Now())
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("backup written to %s (%d students, %d payments)\n", out, len(snapshot.Students), len(snapshot.Payments))
			return nil
		}),
	}
	exportCmd.Flags().StringVar(&out, "out", "", "output file (defaults to complete_backup_{timestamp}.json)")

	var in string
	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace all data with a backup JSON document",
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			raw, err := readInput(in)
			if err != nil {
				return err
			}
			result, err := c.Services.Backup.Restore(ctx, raw, nil)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		}),
	}
	restoreCmd.Flags().StringVar(&in, "in", "", "backup file to restore, - for stdin")
	_ = restoreCmd.MarkFlagRequired("in")

	var (
		scope string
		yes   bool
	)
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete one collection or everything except admin users",
		PreRunE: func(*cobra.Command, []string) error {
			if !models.ResetScope(scope).Valid() {
				return fmt.Errorf("unknown scope %q", scope)
			}
			if !yes {
				return fmt.Errorf("reset is destructive, pass --yes to confirm")
			}
			return nil
		},
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			result, err := c.Services.Backup.Reset(ctx, models.ResetScope(scope), nil)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		}),
	}
	resetCmd.Flags().StringVar(&scope, "scope", "", "payments, attendance, enrollments, courses, students, payment_categories or all")
	resetCmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	_ = resetCmd.MarkFlagRequired("scope")

	backup.AddCommand(exportCmd, restoreCmd, resetCmd)
	return backup
}

func newRegistrationCmd() *cobra.Command {
	registration := &cobra.Command{
		Use:   "registration",
		Short: "Inspect registration numbers",
	}

	var allocate bool
	nextCmd := &cobra.Command{
		Use:   "next",
		Short: "Preview the next registration number, or consume it with --allocate",
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			if !allocate {
				preview, err := c.Services.Registration.Preview(ctx)
				if err != nil {
					return err
				}
				fmt.Println(preview.Next)
				return nil
			}
			tx, err := c.DB.BeginTxx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin allocation: %w", err)
			}
			defer tx.Rollback() //nolint:errcheck
			number, err := c.Services.Registration.Next(ctx, tx)
			if err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit allocation: %w", err)
			}
			fmt.Println(number)
			return nil
		}),
	}
	nextCmd.Flags().BoolVar(&allocate, "allocate", false, "consume the number")

	registration.AddCommand(nextCmd)
	return registration
}

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var username, password, fullName string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		PreRunE: func(*cobra.Command, []string) error {
			if len(username) < 3 {
				return fmt.Errorf("username must be at least 3 characters")
			}
			if len(password) < 6 {
				return fmt.Errorf("password must be at least 6 characters")
			}
			return nil
		},
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			if fullName == "" {
				fullName = username
			}
			user, err := c.Services.Users.Create(ctx, service.CreateUserRequest{
				Username: username,
				FullName: fullName,
				Role:     models.RoleAdmin,
				Password: password,
			}, "", models.ClientMeta{UserAgent: "schoolctl"})
			if err != nil {
				return err
			}
			c.Logger.Info("admin created", zap.String("user_id", user.ID), zap.String("username", user.Username))
			fmt.Printf("admin %s created (%s)\n", user.Username, user.ID)
			return nil
		}),
	}
	createCmd.Flags().StringVar(&username, "username", "", "login name")
	createCmd.Flags().StringVar(&password, "password", "", "initial password")
	createCmd.Flags().StringVar(&fullName, "full-name", "", "display name (defaults to the username)")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	admin.AddCommand(createCmd)
	return admin
}

func newSeedCmd() *cobra.Command {
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert reference data",
	}
	seed.AddCommand(&cobra.Command{
		Use:   "categories",
		Short: "Insert the default payment categories that are missing",
		RunE: withContainer(func(ctx context.Context, c *app.Container) error {
			created, err := c.Services.Categories.SeedDefaults(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d payment categor(ies) created\n", created)
			return nil
		}),
	})
	return seed
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
