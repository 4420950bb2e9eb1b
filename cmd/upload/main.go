package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/gcs"
	"github.com/dvloznov/ynab-itemized/internal/logger"
)

// upload stages a receipt export in GCS so that import-amazon can read it
// from a gs:// URI.
func main() {
	cfg, err := config.Load()
	log := app.Logger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		bucketName string
		objectName string
		filePath   string
	)

	flag.StringVar(&bucketName, "bucket", cfg.GCSBucket, "GCS bucket name (or set GCS_BUCKET)")
	flag.StringVar(&objectName, "object", "", "GCS object name (optional; defaults to imports/YYYY/MM/DD/<file>-<timestamp>)")
	flag.StringVar(&filePath, "file", "", "Path to local export file (required)")
	flag.Parse()

	if bucketName == "" || filePath == "" {
		log.Fatal().Msg("Usage: upload -bucket BUCKET_NAME -file /path/to/orders.csv [-object OBJECT_NAME]")
	}

	if objectName == "" {
		objectName = gcs.ObjectName("imports", filepath.Base(filePath), time.Now())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", filePath).Msg("Failed to open file")
	}
	defer f.Close()

	client, err := gcs.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer client.Close()

	log.Info().
		Str("bucket", bucketName).
		Str("object", objectName).
		Str("file", filePath).
		Msg("Uploading file to GCS")

	if err := client.Upload(ctx, bucketName, objectName, f); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	uri := gcs.URI(bucketName, objectName)
	fmt.Printf("Uploaded %s to %s\n", filePath, uri)
	fmt.Printf("Import it with: cli import-amazon %s\n", uri)
}
