// Package scheduler runs the delivery pipeline: one worker scans the
// monitored folders each cycle and pushes new or changed files through
// hash dedup, archival, chunking and transport, committing the ledger
// only after a file's entire artifact has been delivered.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"courier/internal/archive"
	"courier/internal/config"
	"courier/internal/deliverylog"
	"courier/internal/events"
	"courier/internal/hashing"
	"courier/internal/ledger"
	"courier/internal/logging"
	"courier/internal/sizecache"
	"courier/internal/split"
	"courier/internal/transport"
)

// Transport is the delivery surface the scheduler depends on.
type Transport interface {
	SendDocument(ctx context.Context, path, caption string, part, totalParts int) (transport.Message, error)
	Broadcast(ctx context.Context, text string) (transport.Message, error)
	NotifyFailure(ctx context.Context, path string)
	RetractFailure(ctx context.Context, path string)
}

// Scheduler owns the single scheduling domain. All ledger and size
// cache mutations happen on its worker; the admin boundary may replace
// persisted state underneath it, which each cycle absorbs by reloading.
type Scheduler struct {
	cfg       *config.Config
	logger    *slog.Logger
	history   *ledger.Store
	sizes     *sizecache.Cache
	archiver  *archive.Archiver
	transport Transport
	events    events.Publisher
	audit     *deliverylog.Store

	chunkSize int64
	interval  time.Duration
}

// Option customizes the scheduler.
type Option func(*Scheduler)

// WithChunkSize overrides the split threshold (useful for tests).
func WithChunkSize(size int64) Option {
	return func(s *Scheduler) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// New wires the pipeline together.
func New(
	cfg *config.Config,
	history *ledger.Store,
	sizes *sizecache.Cache,
	archiver *archive.Archiver,
	tp Transport,
	publisher events.Publisher,
	audit *deliverylog.Store,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Watch.CheckInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Scheduler{
		cfg:       cfg,
		logger:    logger,
		history:   history,
		sizes:     sizes,
		archiver:  archiver,
		transport: tp,
		events:    publisher,
		audit:     audit,
		chunkSize: split.DefaultChunkSize,
		interval:  interval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes scan cycles until the context is cancelled. A cycle
// failure is logged and retried after the normal interval; it never
// terminates the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		logging.Int("folders", len(s.cfg.Watch.Folders)),
		logging.Duration("interval", s.interval))
	for {
		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopped")
				return ctx.Err()
			}
			s.logger.Error("scan cycle failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// RunCycle performs one full scan over the monitored folders. Errors
// local to one candidate are isolated and logged; only a ledger-load
// failure aborts the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()[:8]
	logger := s.logger.With(logging.String("cycle", cycleID))

	// The admin boundary may have cleared persisted state since the
	// previous cycle; never trust in-memory state across cycles.
	if err := s.history.Reload(); err != nil {
		return fmt.Errorf("reload history ledger: %w", err)
	}

	logging.CleanupOldLogs(logger, s.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     s.cfg.Paths.LogDir,
		Pattern: "courier*.log",
		Exclude: []string{s.cfg.LogFilePath()},
	})

	candidates, err := s.candidates(logger)
	if err != nil {
		return err
	}
	logger.Debug("scan cycle starting", logging.Int("candidates", len(candidates)))

	for _, path := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processCandidate(ctx, logger, path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("candidate failed",
				logging.String("path", path),
				logging.Error(err))
		}
	}
	return nil
}

// candidates enumerates files under the monitored folders. With the
// size cache enabled the list is ordered smallest first; otherwise it
// follows enumeration order. Unreadable entries are skipped.
func (s *Scheduler) candidates(logger *slog.Logger) ([]string, error) {
	if s.cfg.Watch.SizeCacheEnabled && s.sizes != nil {
		if err := s.sizes.Rebuild(s.cfg.Watch.Folders); err != nil {
			logger.Warn("size cache rebuild failed", logging.Error(err))
		} else {
			return s.sizes.Ordered(), nil
		}
	}
	var paths []string
	for _, folder := range s.cfg.Watch.Folders {
		err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("skipping unreadable entry",
					logging.String("path", path),
					logging.Error(err))
				return nil
			}
			if !entry.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			logger.Warn("folder walk failed",
				logging.String("folder", folder),
				logging.Error(err))
		}
	}
	return paths, nil
}

func (s *Scheduler) extensionAllowed(path string) bool {
	if len(s.cfg.Watch.AllowedExtensions) == 0 {
		return true
	}
	lower := strings.ToLower(path)
	for _, ext := range s.cfg.Watch.AllowedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// processCandidate runs one file through the pipeline. It returns nil
// for skips (unchanged, filtered, vanished) and an error only for a
// delivery failure, which the caller logs without aborting the cycle.
func (s *Scheduler) processCandidate(ctx context.Context, logger *slog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		// Vanished between enumeration and processing; next cycle
		// will pick it up if it reappears.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		logger.Warn("cannot stat candidate", logging.String("path", path), logging.Error(err))
		return nil
	}
	started := time.Now()

	hash, err := hashing.File(path)
	if err != nil {
		logger.Warn("cannot hash candidate", logging.String("path", path), logging.Error(err))
		return nil
	}
	if !s.extensionAllowed(path) {
		logger.Debug("candidate filtered by extension", logging.String("path", path))
		return nil
	}
	// Content already delivered under any path wins over per-path
	// staleness: renamed duplicates are skipped.
	if s.history.LookupByHash(hash) {
		logger.Debug("content already delivered", logging.String("path", path))
		return nil
	}
	if !s.history.IsStaleOrNew(path, hash) {
		return nil
	}

	logger.Info("delivering file",
		logging.String("path", path),
		logging.Int64("size", info.Size()))

	outcome, err := s.deliver(ctx, logger, path, info.Size())
	elapsed := time.Since(started)

	if err != nil {
		s.transport.NotifyFailure(ctx, path)
		s.recordAudit(ctx, deliverylog.Entry{
			Path: path, Hash: hash, Parts: outcome.parts, Size: info.Size(),
			Outcome: deliverylog.OutcomeFailed, Detail: err.Error(),
		})
		s.events.PublishOutcome(ctx, events.Outcome{
			Type:           events.OutcomeFailure,
			File:           filepath.Base(path),
			Hash:           hash,
			FileSize:       info.Size(),
			ProcessingTime: float64(elapsed.Milliseconds()),
		})
		return err
	}

	uploadSeconds := outcome.uploadTime.Seconds()
	var uploadSpeed float64
	if uploadSeconds > 0 {
		uploadSpeed = float64(info.Size()) / uploadSeconds
	}
	sequenceID := s.history.NextSequenceID()
	record := ledger.FileRecord{
		Hash:           hash,
		LastSentAt:     time.Now().UTC(),
		Delivered:      true,
		Encrypted:      s.cfg.Archive.Encryption,
		Algorithm:      ledger.AlgorithmNone,
		SequenceID:     sequenceID,
		OriginalSize:   info.Size(),
		ProcessedSize:  outcome.artifactSize,
		ProcessingMs:   float64(elapsed.Milliseconds()),
		UploadBytesSec: uploadSpeed,
	}
	if s.cfg.Archive.Encryption {
		record.Algorithm = ledger.AlgorithmAES
	}
	if err := s.history.Commit(path, record); err != nil {
		return fmt.Errorf("commit ledger entry: %w", err)
	}

	s.transport.RetractFailure(ctx, path)
	s.recordAudit(ctx, deliverylog.Entry{
		Path: path, Hash: hash, SequenceID: sequenceID,
		Parts: outcome.parts, Size: info.Size(),
		Outcome: deliverylog.OutcomeDelivered,
	})
	s.events.PublishOutcome(ctx, events.Outcome{
		Type:           events.OutcomeSuccess,
		File:           filepath.Base(path),
		FileID:         sequenceID,
		Hash:           hash,
		FileSize:       info.Size(),
		ProcessingTime: record.ProcessingMs,
		UploadSpeed:    uploadSpeed,
	})
	logger.Info("file delivered",
		logging.String("path", path),
		logging.Int64("sequence_id", sequenceID),
		logging.Int("parts", outcome.parts),
		logging.Duration("elapsed", elapsed))
	return nil
}

type deliveryOutcome struct {
	parts        int
	artifactSize int64
	uploadTime   time.Duration
}

// deliver archives the file and pushes the artifact out, chunked when
// it exceeds the transport ceiling. Scratch artifacts and chunk files
// are removed on every exit path.
func (s *Scheduler) deliver(ctx context.Context, logger *slog.Logger, path string, originalSize int64) (deliveryOutcome, error) {
	outcome := deliveryOutcome{parts: 1}

	artifact, err := s.archiver.Create(path, archive.Spec{
		Compression: archive.Compression(s.cfg.Archive.Compression),
		Encrypt:     s.cfg.Archive.Encryption,
		Passphrase:  s.cfg.Archive.Passphrase,
	})
	if err != nil {
		return outcome, fmt.Errorf("archive %s: %w", path, err)
	}
	if artifact.Owned {
		defer func() {
			if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("failed to remove scratch artifact",
					logging.String("path", artifact.Path),
					logging.Error(err))
			}
		}()
	}

	artifactInfo, err := os.Stat(artifact.Path)
	if err != nil {
		return outcome, fmt.Errorf("stat artifact: %w", err)
	}
	outcome.artifactSize = artifactInfo.Size()
	baseName := filepath.Base(path)

	uploadStart := time.Now()
	if artifactInfo.Size() > s.chunkSize {
		parts, err := s.deliverChunked(ctx, logger, artifact.Path, baseName)
		outcome.parts = parts
		outcome.uploadTime = time.Since(uploadStart)
		if err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	caption := fmt.Sprintf("File: %s\n%s", baseName, encryptionBadge(s.cfg.Archive.Encryption))
	if _, err := s.transport.SendDocument(ctx, artifact.Path, caption, 0, 0); err != nil {
		outcome.uploadTime = time.Since(uploadStart)
		return outcome, fmt.Errorf("send %s: %w", baseName, err)
	}
	outcome.uploadTime = time.Since(uploadStart)
	return outcome, nil
}

// deliverChunked splits the artifact and sends parts strictly in order.
// A failed part aborts the remainder; already-sent parts stay on the
// remote side and the whole file is re-sent next cycle.
func (s *Scheduler) deliverChunked(ctx context.Context, logger *slog.Logger, artifactPath, baseName string) (int, error) {
	plan, err := split.PlanFor(artifactPath, s.chunkSize)
	if err != nil {
		return 0, err
	}
	scratch, err := os.MkdirTemp(s.cfg.Paths.StagingDir, "chunks-")
	if err != nil {
		return plan.TotalParts, fmt.Errorf("create chunk scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	parts, err := plan.Write(scratch, logger)
	if err != nil {
		return plan.TotalParts, err
	}
	defer split.Cleanup(parts, logger)

	for _, part := range parts {
		caption := fmt.Sprintf("Part %d of %s", part.Index, baseName)
		if _, err := s.transport.SendDocument(ctx, part.Path, caption, part.Index, plan.TotalParts); err != nil {
			return plan.TotalParts, fmt.Errorf("send part %d/%d of %s: %w", part.Index, plan.TotalParts, baseName, err)
		}
		logger.Debug("part delivered",
			logging.String("file", baseName),
			logging.Int("part", part.Index),
			logging.Int("total", plan.TotalParts))
	}

	instructions := split.Instructions(filepath.Base(artifactPath), plan.TotalParts, s.cfg.Archive.Encryption)
	if _, err := s.transport.Broadcast(ctx, instructions); err != nil {
		return plan.TotalParts, fmt.Errorf("send reassembly instructions for %s: %w", baseName, err)
	}
	return plan.TotalParts, nil
}

func (s *Scheduler) recordAudit(ctx context.Context, entry deliverylog.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record delivery audit entry",
			logging.String("path", entry.Path),
			logging.Error(err))
	}
}

func encryptionBadge(encrypted bool) string {
	if encrypted {
		return "🔒 Encrypted"
	}
	return "🔓 Not encrypted"
}
