package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "barn",
	Short: "Barn, a Postgres/SQLite-backed distributed task queue and scheduler",
	Long: `Barn runs the worker pool and the cron/interval scheduler:
tasks are claimed with SELECT ... FOR UPDATE SKIP LOCKED,
exactly one node holds the scheduler's lease at a time, and LISTEN/NOTIFY
collapses polling latency when the store backend supports it.

Available commands:
  worker    - Run the worker pool only
  scheduler - Run the scheduler, behind the leader lease
  run       - Run worker and scheduler in one process (single-binary dev mode)
  serve     - Run the admin/inspection HTTP API
  migrate   - Apply the store schema`,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
