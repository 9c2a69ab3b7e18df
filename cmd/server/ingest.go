package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/unidata/internal/domain"
	"github.com/rpattn/unidata/internal/ingestion"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		uploaderID int64
		replace    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a spreadsheet from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.Size() > a.cfg.Ingestion.MaxFileSize {
				// Avoid reading oversized files; the service still records the rejection.
				return ingestData(cmd, a, ingestion.Request{
					Filename:        filepath.Base(path),
					FileSize:        info.Size(),
					UploaderID:      uploaderID,
					ReplaceExisting: replace,
				})
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return ingestData(cmd, a, ingestion.Request{
				Data:            data,
				Filename:        filepath.Base(path),
				FileSize:        info.Size(),
				UploaderID:      uploaderID,
				ReplaceExisting: replace,
			})
		},
	}

	cmd.Flags().Int64Var(&uploaderID, "uploader", 0, "Uploader user id (required)")
	cmd.Flags().BoolVar(&replace, "replace", true, "Replace existing records of the detected family")
	_ = cmd.MarkFlagRequired("uploader")
	return cmd
}

func ingestData(cmd *cobra.Command, a *app, req ingestion.Request) error {
	store, closeStore, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := a.newService(store).Ingest(cmd.Context(), req)
	if writeErr := writeJSON(result); writeErr != nil {
		return writeErr
	}
	var failed *domain.IngestionFailedError
	if errors.As(err, &failed) {
		return fmt.Errorf("upload %s failed: %w", failed.UploadLogID, failed.Err)
	}
	return err
}
