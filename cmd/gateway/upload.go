package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/uploads"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a local document to object storage and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd.Context(), args[0])
	},
}

func runUpload(ctx context.Context, path string) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	m := metrics.New(prometheus.NewRegistry())
	svc, closeUploads, err := buildUploads(ctx, cfg, m, health.NewChecker(0))
	if err != nil {
		return err
	}
	defer closeUploads()
	if svc == nil {
		return errors.New("object storage is not configured: set storage.bucket and storage.region")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	name := filepath.Base(path)
	rec, err := svc.Upload(ctx, uploads.File{
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Data:        data,
	})
	if err != nil {
		return err
	}
	fmt.Println(rec.URL)
	return nil
}
