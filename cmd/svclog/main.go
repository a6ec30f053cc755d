package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/oakfield/servicelog/internal/cache"
	"github.com/oakfield/servicelog/internal/config"
	"github.com/oakfield/servicelog/internal/events"
	"github.com/oakfield/servicelog/internal/identity"
	"github.com/oakfield/servicelog/internal/session"
	"github.com/oakfield/servicelog/internal/store"
	"github.com/oakfield/servicelog/internal/store/postgres"
	sessionstore "github.com/oakfield/servicelog/internal/store/session"
	"github.com/oakfield/servicelog/internal/ui"
)

var (
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger

	db       *postgres.DB
	cacheC   cache.Cache
	pub      events.Publisher
	registry *store.Registry

	activities *postgres.Activities
	tasks      *postgres.Tasks
	students   store.StudentStore
)

var rootCmd = &cobra.Command{
	Use:   "svclog",
	Short: "Service activity log administration",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if cfg.RedisAddr != "" {
			rc, err := cache.NewRedis(cmd.Context(), cfg.RedisAddr)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			cacheC = rc
		} else {
			cacheC = cache.NewMemory()
		}

		if cfg.NATSURL != "" {
			np, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return fmt.Errorf("connect to nats: %w", err)
			}
			pub = np
		} else {
			pub = &events.NoopPublisher{}
		}

		return wireStores(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pub != nil {
			pub.Close()
		}
		if db != nil {
			db.Close()
		}
	},
}

// wireStores builds the typed stores, applies the optional TOML store
// selection, and freezes the registry.
func wireStores(ctx context.Context) error {
	users := identity.New(db.Raw())
	durable := postgres.NewStudents(db, users, cacheC)

	activities = postgres.NewActivities(db, pub)
	activities.AddMutationHook(durable.InvalidateAggregates)
	tasks = postgres.NewTasks(db, pub)

	selection, err := config.LoadStores(cfg.StoresFile)
	if err != nil {
		return err
	}

	students = durable
	if selection.Backend("student", "postgres") == "session" {
		sessions := session.New(db.Raw(), cacheC)
		students = sessionstore.NewStudents(durable, sessions)
	}

	registry = store.NewRegistry()
	if err := registry.Register("activity", activities); err != nil {
		return err
	}
	if err := registry.Register("task", tasks); err != nil {
		return err
	}
	if err := registry.Register("student", students); err != nil {
		return err
	}
	registry.Freeze()
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(studentCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
