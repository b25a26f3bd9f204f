package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"bulksync/core/bulk"
	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/metrics"
	"bulksync/core/config"
	"bulksync/core/database"
	"bulksync/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "bulksync",
	Short: "Bulk sync service",
	Long: `bulksync moves large row sets into SQL Server, PostgreSQL, MySQL or SQLite
through a staging table and a single set based merge.
It serves catalog syncs over HTTP and runs them from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var yesConfirm bool

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format with the development config gives readable CLI errors.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}

// runtime holds what every command needs.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *gorm.DB
	reporter metrics.Reporter
	executor *bulk.Executor
}

// setup loads configuration and connects to the database.
func setup() (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	l = l.With(zap.String("driver", cfg.Database.Driver))

	reporter := metrics.NewReporter(cfg.Metrics)
	registry := engine.NewRegistry(cfg.Bulk.ShapeTTL(), nil)
	return &runtime{
		cfg:      cfg,
		logger:   l,
		db:       db,
		reporter: reporter,
		executor: bulk.NewExecutor(registry, l, reporter),
	}, nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction(prompt string) bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n⚠️  %s Type 'yes' to confirm: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(response) == "yes"
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
}
