package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/contentplan-backend/internal/app"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
	"github.com/yungbote/contentplan-backend/internal/services"
)

var (
	configPath string
	cfg        app.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "contentplan",
	Short:         "Monthly content strategy generator",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = app.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONTENTPLAN_CONFIG"), "Path to YAML config file")

	planCreateCmd.Flags().StringVar(&planBrandID, "brand-id", "", "Brand id (uuid)")
	planCreateCmd.Flags().StringVar(&planOwnerID, "owner-id", "", "Owner user id (uuid)")
	planCreateCmd.Flags().StringVar(&planBrandName, "brand-name", "", "Brand display name")
	planCreateCmd.Flags().StringVar(&planMonth, "month", "", "Target month (YYYY-MM)")
	planCreateCmd.Flags().IntVar(&planFrequency, "frequency", 3, "Posts per week")
	planCreateCmd.Flags().StringVar(&planBrief, "brief", "", "Campaign brief")
	planCreateCmd.Flags().StringSliceVar(&planPlatforms, "platform", nil, "Target platform (repeatable)")
	planShowCmd.Flags().BoolVar(&planShowItems, "items", false, "Include content items")

	planCmd.AddCommand(planCreateCmd, planShowCmd, planCreatorCmd)
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, planCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runApp(opts app.Options) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Log.Info("Starting",
		"server", opts.RunServer,
		"worker", opts.RunWorker,
		"dispatch", cfg.Jobs.Dispatch,
	)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		a.Log.Error("Exited with error", "error", err)
		return err
	}
	a.Log.Info("Shutdown complete")
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(app.Options{RunServer: true, RunWorker: true})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run job workers only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(app.Options{RunWorker: true})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(cfg.LogMode)
		if err != nil {
			return err
		}
		defer log.Sync()
		svc, err := app.OpenDB(log, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()
		fmt.Printf("Schema up to date (%s)\n", svc.Driver())
		return nil
	},
}

// --- plan commands ---

var (
	planBrandID   string
	planOwnerID   string
	planBrandName string
	planMonth     string
	planFrequency int
	planBrief     string
	planPlatforms []string
	planShowItems bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create and inspect strategy plans",
}

func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a plan and queue strategist batch 1",
	RunE: func(cmd *cobra.Command, args []string) error {
		brandID, err := uuid.Parse(planBrandID)
		if err != nil {
			return fmt.Errorf("--brand-id: %w", err)
		}
		ownerID, err := uuid.Parse(planOwnerID)
		if err != nil {
			return fmt.Errorf("--owner-id: %w", err)
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			plan, err := a.Services.Strategy.CreatePlan(dbctx.Context{Ctx: ctx}, services.CreatePlanInput{
				BrandID:          brandID,
				OwnerUserID:      ownerID,
				BrandName:        planBrandName,
				Month:            planMonth,
				FrequencyPerWeek: planFrequency,
				Brief:            planBrief,
				Platforms:        planPlatforms,
			})
			if err != nil {
				return err
			}
			return printJSON(plan)
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Print a plan and optionally its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("plan id: %w", err)
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			dbc := dbctx.Context{Ctx: ctx}
			plan, err := a.Services.Strategy.GetPlan(dbc, id)
			if err != nil {
				return err
			}
			if !planShowItems {
				return printJSON(plan)
			}
			items, err := a.Services.Strategy.ListItems(dbc, id)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"plan": plan, "items": items})
		})
	},
}

var planCreatorCmd = &cobra.Command{
	Use:   "creator <plan-id>",
	Short: "Queue creator batch 1 for a completed plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("plan id: %w", err)
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			plan, err := a.Services.Strategy.StartCreator(dbctx.Context{Ctx: ctx}, id)
			if err != nil {
				return err
			}
			fmt.Printf("Creator phase queued for plan %s (status=%s)\n", plan.ID, plan.Status)
			return nil
		})
	},
}
