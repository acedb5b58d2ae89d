// Package logging sets up the zerolog logger: console output plus a dated
// file per day, with retention-based cleanup of old log files.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const filePrefix = "bridge_"

// Setup opens today's log file under dir and returns a logger writing to
// both the console and the file, plus the file handle for the caller to
// close on shutdown.
func Setup(dir string, verbose bool) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating log dir: %w", err)
	}

	path := filepath.Join(dir, fileName(time.Now()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	log := zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	if !verbose {
		log = log.Level(zerolog.InfoLevel)
	}
	return log, file, nil
}

func fileName(t time.Time) string {
	return filePrefix + t.Format("2006-01-02") + ".log"
}

// CleanupOld deletes log files under dir older than retentionDays and
// returns how many were removed. Files not matching the bridge naming
// pattern are left alone.
func CleanupOld(dir string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading log dir: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".log")
		day, err := time.Parse("2006-01-02", stamp)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// ScheduleCleanup runs CleanupOld once immediately and then every night via
// cron. The returned cron must be stopped by the caller on shutdown.
func ScheduleCleanup(dir string, retentionDays int, log zerolog.Logger) (*cron.Cron, error) {
	runCleanup := func() {
		removed, err := CleanupOld(dir, retentionDays)
		if err != nil {
			log.Warn().Err(err).Msg("log cleanup failed")
			return
		}
		if removed > 0 {
			log.Info().Int("removed", removed).Msg("old log files cleaned up")
		}
	}
	runCleanup()

	c := cron.New()
	if _, err := c.AddFunc("0 0 * * *", runCleanup); err != nil {
		return nil, fmt.Errorf("scheduling log cleanup: %w", err)
	}
	c.Start()
	return c, nil
}
