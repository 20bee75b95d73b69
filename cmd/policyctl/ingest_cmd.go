package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/core"
	"github.com/JonMunkholm/policyingest/internal/logging"
	"github.com/JonMunkholm/policyingest/internal/store/memory"
	"github.com/JonMunkholm/policyingest/internal/store/postgres"
)

var errJobFailed = errors.New("import failed")

func newIngestCmd() *cobra.Command {
	var (
		keep   bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Import a policy spreadsheet (.xlsx, .xls or .csv)",
		Long: "Import a policy spreadsheet and print the job response as JSON.\n" +
			"The file is removed once the job ends unless --keep is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				open   core.StoreOpener
				target string
			)
			if dryRun {
				open = memory.New().Opener()
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				open, target = postgres.Opener(), cfg.Database.URL
			}

			path := args[0]
			if keep {
				tmp, err := copyToTemp(path)
				if err != nil {
					return err
				}
				path = tmp
			}

			job := core.Job{ID: uuid.NewString(), FilePath: path, StoreTarget: target}
			logging.WithFields(ctx, "job_id", job.ID, "file", args[0], "dry_run", dryRun).Info("import started")

			resp := core.Await(ctx, core.Spawn(logging.WithJobID(ctx, job.ID), job, open))
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", errJobFailed, resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the input file (a temporary copy is imported)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Import into an in-memory store instead of the database")
	return cmd
}

// copyToTemp copies path into a new temp file with the same extension.
func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "policyctl-*"+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("copy %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
