package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	verificationCleanupJob   = "verification-cleanup"
	notificationRetentionJob = "notification-retention"
	outboxRetentionJob       = "outbox-retention"

	defaultVerificationRetention = 24 * time.Hour
	defaultNotificationDays      = 90
	defaultOutboxDays            = 7
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleCodeRepo interface {
	DeleteStale(ctx context.Context, tx *gorm.DB, cutoff, now time.Time) (int64, error)
}

type notificationRepo interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// purgeJob deletes rows older than a retention window inside one transaction.
type purgeJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention time.Duration
	purge     func(ctx context.Context, tx *gorm.DB, cutoff, now time.Time) (int64, error)
	now       func() time.Time
}

func newPurgeJob(name string, logg *logger.Logger, db txRunner, retention time.Duration, purge func(ctx context.Context, tx *gorm.DB, cutoff, now time.Time) (int64, error)) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	if db == nil {
		return nil, fmt.Errorf("%s: db runner required", name)
	}
	return &purgeJob{
		name:      name,
		logg:      logg,
		db:        db,
		retention: retention,
		purge:     purge,
		now:       time.Now,
	}, nil
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.purge(ctx, tx, cutoff, now)
		deleted = rows
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "purge complete")
	return deleted, nil
}

// NewVerificationCleanupJob removes card edit codes that are used or expired
// and older than retention.
func NewVerificationCleanupJob(logg *logger.Logger, db txRunner, repo staleCodeRepo, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("verification repository required")
	}
	if retention <= 0 {
		retention = defaultVerificationRetention
	}
	return newPurgeJob(verificationCleanupJob, logg, db, retention, repo.DeleteStale)
}

// NewNotificationRetentionJob removes notifications older than days.
func NewNotificationRetentionJob(logg *logger.Logger, db txRunner, repo notificationRepo, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if days <= 0 {
		days = defaultNotificationDays
	}
	return newPurgeJob(notificationRetentionJob, logg, db, retentionDays(days), func(ctx context.Context, tx *gorm.DB, cutoff, _ time.Time) (int64, error) {
		return repo.DeleteOlderThan(ctx, tx, cutoff)
	})
}

// NewOutboxRetentionJob removes published outbox rows older than days.
// Unpublished and terminal rows are kept for inspection.
func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo outboxRepo, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if days <= 0 {
		days = defaultOutboxDays
	}
	return newPurgeJob(outboxRetentionJob, logg, db, retentionDays(days), func(ctx context.Context, tx *gorm.DB, cutoff, _ time.Time) (int64, error) {
		return repo.DeletePublishedBefore(ctx, tx, cutoff)
	})
}

func retentionDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
