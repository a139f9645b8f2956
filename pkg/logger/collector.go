package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that force a flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry counts repetitions of one (level, message, fields, caller) tuple
// between two flushes.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated warn/error logs into counted entries and publishes
// them from a single goroutine, on a timer or when CountThreshold distinct entries
// are pending. Close publishes what is left before returning.
type LogCollector struct {
	config  *CollectionConfig
	mutex   sync.Mutex
	pending map[string]*AggregatedLogEntry
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	c := &LogCollector{
		config:  config,
		pending: make(map[string]*AggregatedLogEntry),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	d.mutex.Lock()
	entry, ok := d.pending[key]
	if !ok {
		entry = &AggregatedLogEntry{Level: level, Message: message, Fields: fields, Caller: caller, FirstSeen: now}
		d.pending[key] = entry
	}
	entry.Count++
	entry.LastSeen = now
	full := len(d.pending) >= d.config.CountThreshold
	d.mutex.Unlock()

	if full {
		select {
		case d.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of distinct entries waiting for the next flush.
func (d *LogCollector) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

// Close stops the flusher after a last publish. It is safe to call twice.
func (d *LogCollector) Close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	data, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:16])
}

func (d *LogCollector) loop() {
	defer close(d.done)
	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.flush()
		case <-d.kick:
			d.flush()
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// take swaps out the pending entries, oldest first.
func (d *LogCollector) take() []AggregatedLogEntry {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.pending) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(d.pending))
	for _, e := range d.pending {
		out = append(out, *e)
	}
	d.pending = make(map[string]*AggregatedLogEntry, len(out))
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

func (d *LogCollector) flush() {
	batch := d.take()
	if len(batch) == 0 || d.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, batch); err != nil {
		// the logger cannot log its own delivery failure
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch), d.config.Topic, err)
	}
}
