package usage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const minutesField = "minutes"

// Recorder accumulates transcription minutes per user and calendar month.
// Month rollover is handled by the key itself: a new month hashes under a
// new key, so no explicit reset ever runs.
type Recorder struct {
	cache *redis.Client
}

// NewRecorder builds a Redis-backed usage recorder.
func NewRecorder(cache *redis.Client) *Recorder {
	return &Recorder{cache: cache}
}

// Minutes converts an audio duration in seconds to billed minutes, rounding
// up. Zero duration bills zero minutes.
func Minutes(durationSeconds float64) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	return int64(math.Ceil(durationSeconds / 60))
}

// Add accumulates minutes into the user's current month record.
func (r *Recorder) Add(ctx context.Context, userID string, minutes int64) error {
	if minutes <= 0 {
		return nil
	}
	if err := r.cache.HIncrBy(ctx, monthKey(userID, time.Now()), minutesField, minutes).Err(); err != nil {
		return fmt.Errorf("usage: accumulate: %w", err)
	}
	return nil
}

// MinutesThisMonth returns the minutes accumulated in the current month.
func (r *Recorder) MinutesThisMonth(ctx context.Context, userID string) (int64, error) {
	minutes, err := r.cache.HGet(ctx, monthKey(userID, time.Now()), minutesField).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("usage: read month: %w", err)
	}
	return minutes, nil
}

func monthKey(userID string, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s", userID, now.UTC().Format("2006-01"))
}
