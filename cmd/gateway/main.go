// Command gateway runs the HackRx ingestion-and-relay gateway.
//
// It accepts a document (multipart upload or URL) plus a list of questions,
// materializes the document, forwards it to the answering service and
// returns the answers. It can also push documents to S3 and keep a registry
// of those uploads in PostgreSQL.
//
// Usage:
//
//	gateway [serve] [--config configs/gateway.yaml]
//	gateway upload <file> [--config configs/gateway.yaml]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "gateway",
	Short:         "HackRx ingestion-and-relay gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (defaults and env only when empty)")
	rootCmd.AddCommand(serveCmd, uploadCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}
