// Command nexrad-ingest runs the Radar Product Manager as a long-lived
// service ("serve") or drives a bulk archive prefetch ("backfill"),
// grounded on the teacher's cobra-based cmd/nexrad-render/main.go.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "nexrad-ingest",
	Short: "nexrad-ingest serves and backfills NEXRAD Level-2/Level-3 radar products.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		levels := map[string]logrus.Level{
			"error": logrus.ErrorLevel,
			"warn":  logrus.WarnLevel,
			"info":  logrus.InfoLevel,
			"debug": logrus.DebugLevel,
		}
		level, ok := levels[logLevel]
		if !ok {
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backfillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
	os.Exit(0)
}
