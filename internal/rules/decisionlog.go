package rules

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DecisionLogConfig controls the decision logger behaviour.
type DecisionLogConfig struct {
	Path          string        // JSON Lines file
	MaxSizeMB     int           // Max file size before rotation (default: 10)
	FlushInterval time.Duration // How often to flush buffer (default: 5s)
	SampleAllowed int           // Log 1-in-N allowed decisions (0 or 1 = log all)
}

// DecisionEntry is the structured log entry for a single gate decision.
type DecisionEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	RulesVer    string    `json:"rules_version"`
	InputHash   string    `json:"input_hash"`
	Command     string    `json:"command"`
	Caller      string    `json:"caller,omitempty"`
	Decision    string    `json:"decision"`
	Rule        string    `json:"rule,omitempty"`
	Layer       Layer     `json:"layer,omitempty"`
	Description string    `json:"description,omitempty"`
	Reason      string    `json:"reason"`
	DurationMS  float64   `json:"duration_ms"`

	// Line is the 0-based line the entry was read from. It is not stored.
	Line int `json:"-"`
}

// Decision values stored in DecisionEntry.Decision.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// DecisionFilter specifies criteria for searching decision log entries.
type DecisionFilter struct {
	Since    time.Time
	Until    time.Time
	Decision string // "allow" or "block"
	Rule     string
	Limit    int
}

// DecisionLogger writes structured JSON decision logs for audit.
type DecisionLogger struct {
	writer  *bufio.Writer
	file    *os.File
	mu      sync.Mutex
	config  DecisionLogConfig
	sampler *sampler

	done chan struct{}
	wg   sync.WaitGroup
}

// sampler provides deterministic 1-in-N sampling using a simple counter.
type sampler struct {
	mu    sync.Mutex
	rate  int
	count int
}

func newSampler(rate int) *sampler {
	return &sampler{rate: rate}
}

// shouldLog returns true if this event should be logged.
// When rate <= 1, every event is logged.
func (s *sampler) shouldLog() bool {
	if s.rate <= 1 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.count >= s.rate {
		s.count = 0
		return true
	}
	return false
}

// NewDecisionLogger opens (or creates) the JSON Lines file at cfg.Path.
// A background goroutine periodically flushes the buffer until Close.
func NewDecisionLogger(cfg DecisionLogConfig) (*DecisionLogger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("decision log path is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening decision log %s: %w", cfg.Path, err)
	}

	dl := &DecisionLogger{
		writer:  bufio.NewWriterSize(f, 16*1024),
		file:    f,
		config:  cfg,
		sampler: newSampler(cfg.SampleAllowed),
		done:    make(chan struct{}),
	}

	dl.wg.Add(1)
	go dl.flushLoop()

	slog.Debug("decision logger started", "path", cfg.Path, "flush_interval", cfg.FlushInterval)
	return dl, nil
}

// Log writes a single decision entry. Allowed decisions may be sampled;
// blocked decisions are always written.
func (l *DecisionLogger) Log(entry DecisionEntry) error {
	if entry.Decision == DecisionAllow && !l.sampler.shouldLog() {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling decision entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		slog.Error("decision log rotation failed", "error", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("writing decision entry: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}

	return nil
}

// Flush forces a buffer flush to disk.
func (l *DecisionLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Flush()
}

// Close stops the background flush goroutine, flushes remaining data, and closes the file.
func (l *DecisionLogger) Close() error {
	close(l.done)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flushing on close: %w", err)
	}
	return l.file.Close()
}

// Path returns the file the logger writes to.
func (l *DecisionLogger) Path() string {
	return l.config.Path
}

// Search flushes buffered entries and searches the current log file.
func (l *DecisionLogger) Search(filter DecisionFilter) ([]DecisionEntry, error) {
	if err := l.Flush(); err != nil {
		return nil, fmt.Errorf("flushing decision log: %w", err)
	}
	return SearchDecisions(l.config.Path, filter)
}

// ReadEntry flushes buffered entries and reads the entry at lineNum.
func (l *DecisionLogger) ReadEntry(lineNum int) (*DecisionEntry, error) {
	if err := l.Flush(); err != nil {
		return nil, fmt.Errorf("flushing decision log: %w", err)
	}
	return ReadDecisionEntry(l.config.Path, lineNum)
}

// ReadDecisionEntry reads a single entry at the given 0-based line number.
func ReadDecisionEntry(path string, lineNum int) (*DecisionEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening decision log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 256*1024), 256*1024)
	cur := 0
	for scanner.Scan() {
		if cur == lineNum {
			var entry DecisionEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				return nil, fmt.Errorf("parsing entry at line %d: %w", lineNum, err)
			}
			entry.Line = lineNum
			return &entry, nil
		}
		cur++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning decision log: %w", err)
	}

	return nil, fmt.Errorf("line %d not found (file has %d lines)", lineNum, cur)
}

// SearchDecisions returns entries in the file at path matching filter.
// Malformed lines are skipped. A Limit of 0 returns all matches.
func SearchDecisions(path string, filter DecisionFilter) ([]DecisionEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening decision log %s: %w", path, err)
	}
	defer f.Close()

	var results []DecisionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 256*1024), 256*1024)

	for line := 0; scanner.Scan(); line++ {
		var entry DecisionEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entry.Line = line

		if !matchesFilter(entry, filter) {
			continue
		}

		results = append(results, entry)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning decision log: %w", err)
	}

	return results, nil
}

// matchesFilter checks whether an entry satisfies every non-zero field in the filter.
func matchesFilter(e DecisionEntry, f DecisionFilter) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.Rule != "" && e.Rule != f.Rule {
		return false
	}
	return true
}

// flushLoop runs in a background goroutine, flushing the buffer periodically.
func (l *DecisionLogger) flushLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			if err := l.writer.Flush(); err != nil {
				slog.Error("periodic flush failed", "error", err)
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

// rotateIfNeeded rotates the file once it exceeds MaxSizeMB. Caller must hold l.mu.
func (l *DecisionLogger) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat decision log: %w", err)
	}

	maxBytes := int64(l.config.MaxSizeMB) * 1024 * 1024
	if info.Size()+int64(l.writer.Buffered()) < maxBytes {
		return nil
	}

	slog.Info("rotating decision log", "size_bytes", info.Size(), "max_bytes", maxBytes)

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flushing before rotation: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing old log: %w", err)
	}

	// .8 -> .9, ..., .1 -> .2; missing files are fine.
	for i := 8; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", l.config.Path, i), fmt.Sprintf("%s.%d", l.config.Path, i+1))
	}

	if err := os.Rename(l.config.Path, l.config.Path+".1"); err != nil {
		return fmt.Errorf("renaming current log: %w", err)
	}

	f, err := os.OpenFile(l.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening new log file: %w", err)
	}

	l.file = f
	l.writer.Reset(f)
	return nil
}

// EntryFromDecision converts a gate Decision into a DecisionEntry.
func EntryFromDecision(d Decision, rulesVer, caller string) DecisionEntry {
	decision := DecisionAllow
	if d.Blocked {
		decision = DecisionBlock
	}
	return DecisionEntry{
		Timestamp:   d.Timestamp,
		RulesVer:    rulesVer,
		InputHash:   d.InputHash,
		Command:     d.Command,
		Caller:      caller,
		Decision:    decision,
		Rule:        d.RuleID,
		Layer:       d.Layer,
		Description: d.Description,
		Reason:      d.Reason,
		DurationMS:  float64(d.Duration.Microseconds()) / 1000.0,
	}
}
