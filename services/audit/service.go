package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService writes audit events to storage from a pool of background workers
type AuditService struct {
	auditRepo    repositories.AuditRepository
	logger       *zap.Logger
	eventChan    chan *AuditEvent
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	started      bool
	stopped      bool
	mu           sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Bound for each insert
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:    auditRepo,
		logger:       logger,
		eventChan:    make(chan *AuditEvent, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains pending events and stops the workers, giving up after timeout
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	// no sender can be inside the select below while mu is held
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. A full buffer drops the event.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("resource_type", event.Log.ResourceType))
		return fmt.Errorf("audit event buffer full")
	}
}

// Record queues an audit log entry; failures are logged, never returned
func (s *AuditService) Record(log *models.AuditLog) {
	if log == nil {
		return
	}
	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil {
		s.logger.Debug("audit event not queued", zap.Error(err), zap.String("action", string(log.Action)))
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
}
