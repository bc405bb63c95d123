package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/archive"
	"github.com/dmitrijs2005/chatkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/retention"
)

const (
	FormatVersion = "1.0"
	MaxHistory    = 50

	DefaultPrefix          = "chat-backup"
	DefaultInterval        = 60 * time.Minute
	DefaultMinGap          = 55 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
)

// Trigger outcomes.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// History entry statuses.
const (
	HistorySuccess         = "success"
	HistoryFailed          = "failed"
	HistoryRetentionFailed = "retention_failed"
)

// Skip reasons reported in Result.Detail.
const (
	SkipNotConfigured = "remote archive not configured"
	SkipInProgress    = "backup already in progress"
	SkipTooSoon       = "minimum gap since last backup not reached"
	SkipInactive      = "no recent client activity"
	SkipShuttingDown  = "scheduler is shutting down"
)

// Exporter yields the full dataset of the active store.
type Exporter interface {
	Export(ctx context.Context) (*models.Dataset, error)
}

// ActivityGate reports whether clients used the service recently.
type ActivityGate interface {
	IsActive() bool
}

// Options tunes the scheduler. Zero values take the Default* constants,
// except MinGap where zero disables the gap check.
type Options struct {
	Prefix          string
	Compress        bool
	Interval        time.Duration
	MinGap          time.Duration
	MaxHourly       int
	MaxDaily        int
	ShutdownTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MinGap < 0 {
		o.MinGap = DefaultMinGap
	}
	if o.MaxHourly <= 0 {
		o.MaxHourly = retention.DefaultMaxHourly
	}
	if o.MaxDaily <= 0 {
		o.MaxDaily = retention.DefaultMaxDaily
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	return o
}

type Result struct {
	Status   string           `json:"status"`
	Detail   string           `json:"detail"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Name      string    `json:"name,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type Status struct {
	Configured     bool           `json:"configured"`
	InProgress     bool           `json:"inProgress"`
	LastBackupTime *time.Time     `json:"lastBackupTime"`
	NextEligibleAt *time.Time     `json:"nextEligibleAt"`
	History        []HistoryEntry `json:"history"`
}

// exportDocument is the uploaded payload.
type exportDocument struct {
	Version           string                 `json:"version"`
	ExportedAt        time.Time              `json:"exportedAt"`
	ConversationCount int                    `json:"conversationCount"`
	MessageCount      int                    `json:"messageCount"`
	Conversations     []*models.Conversation `json:"conversations"`
	Messages          []*models.Message      `json:"messages"`
}

type Scheduler struct {
	store    Exporter
	archive  archive.Client
	activity ActivityGate
	metrics  *metrics.Metrics
	logger   logging.Logger
	opts     Options
	now      func() time.Time

	mu         sync.Mutex
	inProgress bool
	closing    bool
	lastBackup time.Time
	history    []HistoryEntry

	running sync.WaitGroup
}

// NewScheduler wires the collaborators. A nil archive leaves the scheduler
// idle: every trigger is skipped as not configured. m may be nil.
func NewScheduler(store Exporter, arch archive.Client, activity ActivityGate, m *metrics.Metrics, opts Options, logger logging.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		archive:  arch,
		activity: activity,
		metrics:  m,
		logger:   logger.With("module", "backup_scheduler"),
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// begin checks the trigger conditions and, when they hold, claims the
// single in-flight slot.
func (s *Scheduler) begin(manual bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.archive == nil:
		return SkipNotConfigured, false
	case s.closing:
		return SkipShuttingDown, false
	case s.inProgress:
		return SkipInProgress, false
	case !s.lastBackup.IsZero() && s.now().Sub(s.lastBackup) < s.opts.MinGap:
		next := s.lastBackup.Add(s.opts.MinGap)
		return fmt.Sprintf("%s, next eligible at %s", SkipTooSoon, next.Format(time.RFC3339)), false
	case !manual && (s.activity == nil || !s.activity.IsActive()):
		return SkipInactive, false
	}

	s.inProgress = true
	s.running.Add(1)
	return "", true
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.inProgress = false
	s.mu.Unlock()
	s.metrics.SetBackupInProgress(false)
	s.running.Done()
}

func (s *Scheduler) record(e HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	if n := len(s.history) - MaxHistory; n > 0 {
		s.history = append([]HistoryEntry(nil), s.history[n:]...)
	}
}

// Trigger runs one backup if the conditions allow it. The export is not
// canceled when ctx is; it runs to completion or failure.
func (s *Scheduler) Trigger(ctx context.Context, manual bool) Result {
	if reason, ok := s.begin(manual); !ok {
		s.metrics.BackupFinished(StatusSkipped, 0)
		s.logger.Debug(ctx, "backup skipped", "manual", manual, "reason", reason)
		return Result{Status: StatusSkipped, Detail: reason}
	}
	defer s.finish()
	s.metrics.SetBackupInProgress(true)

	ctx = context.WithoutCancel(ctx)
	started := s.now()
	s.logger.Info(ctx, "backup started", "manual", manual)

	snap, err := s.export(ctx, started)
	if err != nil {
		s.record(HistoryEntry{Timestamp: started, Status: HistoryFailed, Error: err.Error()})
		s.metrics.BackupFinished(StatusError, s.now().Sub(started))
		s.logger.Error(ctx, "backup failed", "error", err)
		return Result{Status: StatusError, Detail: err.Error()}
	}

	done := s.now()
	s.mu.Lock()
	s.lastBackup = done
	s.mu.Unlock()
	s.record(HistoryEntry{Timestamp: done, Status: HistorySuccess, Name: snap.ID})
	s.logger.Info(ctx, "backup uploaded",
		"name", snap.ID,
		"bytes", snap.SizeBytes,
		"conversations", snap.ConversationCount,
		"messages", snap.MessageCount)

	detail := "uploaded " + snap.ID
	pruned, err := s.prune(ctx)
	s.metrics.SnapshotsPruned(pruned)
	if err != nil {
		s.record(HistoryEntry{Timestamp: s.now(), Status: HistoryRetentionFailed, Name: snap.ID, Error: err.Error()})
		s.logger.Error(ctx, "snapshot rotation failed", "error", err)
		detail += "; " + err.Error()
	} else if pruned > 0 {
		s.logger.Info(ctx, "old snapshots pruned", "count", pruned)
	}

	s.metrics.BackupFinished(StatusSuccess, s.now().Sub(started))
	return Result{Status: StatusSuccess, Detail: detail, Snapshot: snap}
}

func (s *Scheduler) export(ctx context.Context, at time.Time) (*models.Snapshot, error) {
	ds, err := s.store.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	doc := exportDocument{
		Version:           FormatVersion,
		ExportedAt:        at,
		ConversationCount: len(ds.Conversations),
		MessageCount:      len(ds.Messages),
		Conversations:     ds.Conversations,
		Messages:          ds.Messages,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode export: %v", common.ErrSerialization, err)
	}
	if s.opts.Compress {
		if data, err = archive.Compress(data); err != nil {
			return nil, fmt.Errorf("%w: compress export: %v", common.ErrSerialization, err)
		}
	}

	name := archive.SnapshotName(s.opts.Prefix, at, s.opts.Compress)
	if err := s.archive.Upload(ctx, name, data); err != nil {
		return nil, err
	}

	return &models.Snapshot{
		ID:                name,
		CreatedAt:         at,
		SizeBytes:         int64(len(data)),
		ConversationCount: doc.ConversationCount,
		MessageCount:      doc.MessageCount,
	}, nil
}

// prune lists the archive, applies the retention policy and deletes what it
// rejects. Deletion continues past individual failures.
func (s *Scheduler) prune(ctx context.Context) (int, error) {
	objs, err := s.archive.List(ctx, s.opts.Prefix+"-")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrRetention, err)
	}

	snaps := make([]models.Snapshot, 0, len(objs))
	for _, o := range objs {
		if !archive.IsSnapshotName(s.opts.Prefix, o.Name) {
			continue
		}
		at, ok := archive.ParseSnapshotTime(s.opts.Prefix, o.Name)
		if !ok {
			at = o.LastModified
		}
		snaps = append(snaps, models.Snapshot{ID: o.Name, CreatedAt: at, SizeBytes: o.Size})
	}

	decision := retention.Decide(snaps, s.now(), s.opts.MaxHourly, s.opts.MaxDaily)

	var (
		pruned int
		errs   []error
	)
	for _, snap := range decision.Delete {
		if err := s.archive.Delete(ctx, snap.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		pruned++
	}
	if len(errs) > 0 {
		return pruned, fmt.Errorf("%w: %w", common.ErrRetention, errors.Join(errs...))
	}
	return pruned, nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Configured: s.archive != nil,
		InProgress: s.inProgress,
		History:    append([]HistoryEntry{}, s.history...),
	}
	if !s.lastBackup.IsZero() {
		last := s.lastBackup
		next := last.Add(s.opts.MinGap)
		st.LastBackupTime = &last
		st.NextEligibleAt = &next
	}
	return st
}

// Run fires a periodic trigger every Interval until ctx is done, then waits
// up to ShutdownTimeout for an in-flight export.
func (s *Scheduler) Run(ctx context.Context) {
	if s.archive == nil {
		s.logger.Warn(ctx, "remote archive not configured, periodic backups disabled")
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			res := s.Trigger(ctx, false)
			if res.Status == StatusError {
				s.logger.Warn(ctx, "periodic backup failed", "detail", res.Detail)
			}
		}
	}
}

// Shutdown refuses new triggers and waits for the running export. It
// reports false when ShutdownTimeout elapsed first.
func (s *Scheduler) Shutdown(ctx context.Context) bool {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(s.opts.ShutdownTimeout):
		s.logger.Warn(ctx, "backup still running at shutdown, forcing stop", "timeout", s.opts.ShutdownTimeout)
		return false
	}
}
