// Package service contains the application services: authentication, routing,
// and the confirmation workflow.
package service

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamshai/gateway/internal/domain/audit"
)

// AuditService records audit events asynchronously through a buffered channel
// and a background worker, keeping disk I/O off the request hot path. A full
// channel drops the record and counts the drop; routing never blocks on audit.
type AuditService struct {
	store audit.Store

	records   chan audit.Record
	wg        sync.WaitGroup
	dropCount atomic.Int64

	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithAuditBatchSize sets how many records are collected before a write.
func WithAuditBatchSize(n int) AuditOption {
	return func(s *AuditService) { s.batchSize = n }
}

// WithAuditFlushInterval sets how often a partial batch is flushed.
func WithAuditFlushInterval(d time.Duration) AuditOption {
	return func(s *AuditService) { s.flushInterval = d }
}

// WithAuditChannelSize sets the buffer between producers and the worker.
func WithAuditChannelSize(n int) AuditOption {
	return func(s *AuditService) { s.records = make(chan audit.Record, n) }
}

// NewAuditService creates the recorder and starts its worker.
func NewAuditService(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditService {
	s := &AuditService{
		store:         store,
		records:       make(chan audit.Record, 1000),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.worker()
	return s
}

// Record enqueues one audit record. Never blocks; a full buffer drops.
func (s *AuditService) Record(rec audit.Record) {
	select {
	case s.records <- rec:
	default:
		drops := s.dropCount.Add(1)
		s.logger.Warn("audit record dropped",
			"subject", rec.Subject,
			"domain", rec.Domain,
			"tool", rec.Tool,
			"total_drops", drops,
		)
	}
}

// DroppedRecords returns the total number of dropped records.
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// Close flushes pending records, stops the worker, and closes the store.
func (s *AuditService) Close() error {
	close(s.records)
	s.wg.Wait()
	return s.store.Close()
}

func (s *AuditService) worker() {
	defer s.wg.Done()

	batch := make([]audit.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.store.Append(batch...); err != nil {
			s.logger.Error("audit batch write failed", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-s.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
