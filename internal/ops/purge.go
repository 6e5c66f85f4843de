package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/nbaudit/internal/db"
	"github.com/hpungsan/nbaudit/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays int // 0 purges every measurement
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged    int    `json:"purged"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

// Purge deletes cached image measurements.
func Purge(ctx context.Context, cache *db.Cache, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must not be negative")
	}
	if cache.DB() == nil {
		return &PurgeOutput{Message: formatPurgeMessage(0, input.OlderThanDays)}, nil
	}

	cutoff := time.Now().Add(time.Second)
	if input.OlderThanDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -input.OlderThanDays)
	}

	count, err := db.PurgeBefore(ctx, cache.DB(), cutoff)
	if err != nil {
		return nil, err
	}
	remaining, err := db.Count(ctx, cache.DB())
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:    count,
		Remaining: remaining,
		Message:   formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays int) string {
	if count == 0 {
		return "No cached measurements to purge"
	}

	word := "measurement"
	if count > 1 {
		word = "measurements"
	}

	msg := fmt.Sprintf("Purged %d cached %s", count, word)
	if olderThanDays > 0 {
		msg += fmt.Sprintf(" (older than %d days)", olderThanDays)
	}
	return msg
}
