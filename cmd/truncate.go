package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bulksync/core/bulk"
	"bulksync/core/bulk/op"
	"bulksync/feature/catalog"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// truncatable maps table names to the models the executor truncates through.
var truncatable = map[string]any{
	catalog.Item{}.TableName(): &catalog.Item{},
}

// truncateCmd empties a known table.
var truncateCmd = &cobra.Command{
	Use:   "truncate <table>",
	Short: "Remove every row of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runTruncate,
}

func init() {
	RootCmd.AddCommand(truncateCmd)
}

func runTruncate(cmd *cobra.Command, args []string) error {
	model, ok := truncatable[args[0]]
	if !ok {
		names := make([]string, 0, len(truncatable))
		for name := range truncatable {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown table %q (known: %s)", args[0], strings.Join(names, ", "))
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	if !confirmDestructiveAction(fmt.Sprintf("Every row of %s will be removed.", args[0])) {
		rt.logger.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	res, err := rt.executor.Execute(context.Background(), rt.db, bulk.Request{Kind: op.Truncate, Model: model, Options: rt.cfg.Bulk.Options()})
	if err != nil {
		return err
	}
	rt.logger.Info("Table truncated", zap.String("table", res.Table))
	return nil
}
