package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vincemic/ai-fhir-pit/internal/config"
	"github.com/vincemic/ai-fhir-pit/internal/platform/db"
	"github.com/vincemic/ai-fhir-pit/internal/settings"
	"github.com/vincemic/ai-fhir-pit/internal/synthetic"
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic patients and upload them to the configured FHIR server",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			types, _ := cmd.Flags().GetStringSlice("types")
			related, _ := cmd.Flags().GetBool("related")
			seed, _ := cmd.Flags().GetString("seed")

			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			result, err := a.service.GenerateSynthetic(ctx, synthetic.Request{
				PatientCount:   patients,
				ResourceTypes:  types,
				IncludeRelated: related,
				Seed:           seed,
			}, func(p int) { fmt.Fprintf(out, "progress: %d%%\n", p) })
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Uploaded %d resource(s) in %d ms.\n", result.GeneratedCount, result.GenerationTime)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}
			if !result.Success {
				return fmt.Errorf("%d batch(es) failed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().Int("patients", 10, "Number of patients to generate")
	cmd.Flags().StringSlice("types", synthetic.DefaultResourceTypes, "Related resource types to generate")
	cmd.Flags().Bool("related", true, "Generate related resources for each patient")
	cmd.Flags().String("seed", "", "Seed for reproducible output")
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change the FHIR server settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return printJSON(cmd.OutOrStdout(), a.service.Settings(ctx))
		},
	})

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			updated, err := a.service.UpdateSettings(ctx, p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), updated)
		},
	}
	setCmd.Flags().String("url", "", "FHIR server base URL")
	setCmd.Flags().String("name", "", "Display name of the server")
	setCmd.Flags().String("api-key", "", "Bearer token sent to the server")
	setCmd.Flags().Int("timeout", 0, "Request timeout in milliseconds")
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the settings from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.service.ResetSettings(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "test [url]",
		Short: "Read /metadata from the configured server, or from url",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var target string
			if len(args) == 1 {
				target = args[0]
			}
			result, err := a.service.TestConnection(ctx, target)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("connection test failed: %s", result.Error)
			}
			return nil
		},
	})

	return cmd
}

// patchFromFlags sets only the fields whose flags were given, so
// "--api-key=" clears the key while omitting it keeps the key.
func patchFromFlags(cmd *cobra.Command) (settings.Patch, error) {
	var p settings.Patch
	flags := cmd.Flags()
	if flags.Changed("url") {
		v, _ := flags.GetString("url")
		p.ServerURL = &v
	}
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		p.ServerName = &v
	}
	if flags.Changed("api-key") {
		v, _ := flags.GetString("api-key")
		p.APIKey = &v
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetInt("timeout")
		p.Timeout = &v
	}
	if p == (settings.Patch{}) {
		return p, fmt.Errorf("nothing to change: pass at least one of --url, --name, --api-key, --timeout")
	}
	return p, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the postgres settings store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, done, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer done()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, done, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer done()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.MigrationsFS()), pool.Close, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, strings.Repeat("-", 10)+" "+strings.Repeat("-", 40)+" "+strings.Repeat("-", 10)+" "+strings.Repeat("-", 20))
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
