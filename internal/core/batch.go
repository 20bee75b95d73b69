package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/policyingest/internal/decode"
	"github.com/JonMunkholm/policyingest/internal/metrics"
)

// ProgressInterval is how many rows pass between progress messages.
const ProgressInterval = 100

// ContextCheckInterval is how many rows pass between cancellation checks.
const ContextCheckInterval = 100

// ProcessFile decodes the file at path and runs every row through a
// RowProcessor backed by store. Progress messages go to emit; the terminal
// message is returned. The file is removed on every exit path.
func ProcessFile(ctx context.Context, path string, store Store, emit func(Message), log *slog.Logger) Message {
	defer removeSource(path, log)

	rows, err := decode.File(path)
	if err != nil {
		log.Warn("decode failed", "error", err)
		return errorMessage(err)
	}

	total := len(rows)
	emit(progressMessage(fmt.Sprintf("Processing %d records...", total)))

	proc := NewRowProcessor(NewResolver(store))
	var (
		processed int
		rowErrors []RowError
	)
	for i, row := range rows {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				log.Warn("batch interrupted", "row", i+1, "error", err)
				return errorMessage(fmt.Errorf("batch interrupted at row %d: %w", i+1, err))
			}
		}

		if err := proc.Process(ctx, row); err != nil {
			rowErrors = append(rowErrors, RowError{Row: i + 1, Error: err.Error()})
			var missing *MissingFieldsError
			if !errors.As(err, &missing) {
				log.Debug("row failed", "row", i+1, "error", err)
			}
		} else {
			processed++
		}

		if (i+1)%ProgressInterval == 0 {
			emit(progressMessage(fmt.Sprintf("Processed %d/%d records...", i+1, total)))
		}
	}

	metrics.RowsProcessed(processed, len(rowErrors))
	log.Info("batch complete", "processed", processed, "total", total, "failed", len(rowErrors))

	return Message{
		Type:      MessageComplete,
		Processed: processed,
		Total:     total,
		Errors:    rowErrors,
	}
}

// removeSource deletes an uploaded file. A file that is already gone is fine.
func removeSource(path string, log *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove source file", "path", path, "error", err)
	}
}
