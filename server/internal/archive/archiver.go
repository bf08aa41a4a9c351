package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clientledger/clientledger/server/internal/config"
	"github.com/clientledger/clientledger/server/internal/metrics"
)

// ReportPrefix is the key prefix of every archived report.
const ReportPrefix = "reports/"

// Archiver writes report snapshots to a Blobs.
type Archiver struct {
	blobs Blobs
	m     *metrics.Metrics
}

// New returns an Archiver over blobs.
func New(blobs Blobs, m *metrics.Metrics) *Archiver {
	return &Archiver{blobs: blobs, m: m}
}

// Open builds the Blobs selected by cfg and wraps it in an Archiver. It
// returns nil, nil when archiving is disabled.
func Open(ctx context.Context, cfg config.ArchiveConfig, m *metrics.Metrics) (*Archiver, error) {
	var (
		blobs Blobs
		err   error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "fs":
		blobs, err = NewFS(cfg.Path)
	case "s3":
		blobs, err = NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("archive: opened", "driver", cfg.Driver)
	return New(blobs, m), nil
}

// Key returns the key a report generated at t is stored under.
func Key(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s.json",
		ReportPrefix, t.Year(), t.Month(), t.Day(), t.Format("20060102T150405.000Z"))
}

// Save stores v, encoded as JSON, under Key(at) and returns the key.
func (a *Archiver) Save(ctx context.Context, at time.Time, v any) (string, error) {
	key, err := a.save(ctx, at, v)
	a.m.ArchiveSaves.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return "", err
	}
	slog.Info("archive: report saved", "key", key)
	return key, nil
}

func (a *Archiver) save(ctx context.Context, at time.Time, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: encode report: %w", err)
	}
	key := Key(at)
	if err := a.blobs.Put(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// List returns the keys of all archived reports, oldest first.
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	keys, err := a.blobs.List(ctx, ReportPrefix)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Load returns the raw JSON of the report stored under key.
func (a *Archiver) Load(ctx context.Context, key string) ([]byte, error) {
	return a.blobs.Get(ctx, key)
}
