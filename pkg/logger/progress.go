package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs throughput for batch work such as reclassifying
// every stored statement after a correction.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int
	done        int
	failed      int
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures a ProgressTracker
type ProgressConfig struct {
	Operation   string
	Total       int
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a tracker and logs the start of the operation.
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Debug("Starting operation")

	return tracker
}

// Increment records one finished item.
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.done++
	if now := time.Now(); now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(p.fields(now)).Info("Progress update")
		p.lastLogTime = now
	}
}

// Fail records one item that could not be processed.
func (p *ProgressTracker) Fail() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.failed++
}

// Complete logs the final statistics and returns them.
func (p *ProgressTracker) Complete() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(p.fields(time.Now())).Info("Operation completed")
	return p.statsLocked(time.Now())
}

// CompleteWithError logs the final statistics at error level.
func (p *ProgressTracker) CompleteWithError(err error) ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithError(err).WithFields(p.fields(time.Now())).Error("Operation completed with error")
	return p.statsLocked(time.Now())
}

// Stats returns a snapshot of the current progress.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.statsLocked(time.Now())
}

func (p *ProgressTracker) statsLocked(now time.Time) ProgressStats {
	stats := ProgressStats{
		Operation: p.operation,
		Total:     p.total,
		Done:      p.done,
		Failed:    p.failed,
		Duration:  now.Sub(p.startTime),
	}
	if p.total > 0 {
		stats.Percentage = float64(p.done) / float64(p.total) * 100
	}
	return stats
}

func (p *ProgressTracker) fields(now time.Time) Fields {
	stats := p.statsLocked(now)
	fields := Fields{
		"operation": stats.Operation,
		"processed": stats.Done,
		"duration":  stats.Duration.String(),
	}
	if stats.Failed > 0 {
		fields["failed"] = stats.Failed
	}
	if stats.Total > 0 {
		fields["total"] = stats.Total
		fields["percentage"] = fmt.Sprintf("%.1f%%", stats.Percentage)
	}
	return fields
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int           `json:"total"`
	Done       int           `json:"done"`
	Failed     int           `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%) in %v", ps.Operation, ps.Done, ps.Total, ps.Percentage, ps.Duration)
	}
	return fmt.Sprintf("%s: %d processed in %v", ps.Operation, ps.Done, ps.Duration)
}

// TimedOperation runs fn and logs its duration and outcome.
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	log := logger.WithComponent("operation").WithField("operation", operation)

	start := time.Now()
	err := fn()
	log = log.WithField("duration", time.Since(start).String())

	if err != nil {
		log.WithError(err).Error("Operation failed")
	} else {
		log.Debug("Operation completed")
	}
	return err
}
