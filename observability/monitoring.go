package observability

import (
	"log/slog"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// QueueStats is the last sampled fill level of one internal channel.
type QueueStats struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
}

// ActivityEntry is what the relay remembers of a delivered message: who spoke where, not what was said.
type ActivityEntry struct {
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
}

// MonitoringStats aggregates every metric exposed on /stats.
type MonitoringStats struct {
	// --- RELAY METRICS ---
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Rejected      uint64 `json:"rejected"`
	Joined        uint64 `json:"joined"`
	Left          uint64 `json:"left"`
	Censored      uint64 `json:"censored"`
	ActiveClients int64  `json:"active_clients"`

	// --- SYSTEM METRICS ---
	Queues     map[string]QueueStats `json:"queues"`
	RSSBytes   uint64                `json:"rss_bytes"`
	CPUPercent float64               `json:"cpu_percent"`
	AllocMemMb uint64                `json:"alloc_mem_mb"`
	NumGC      uint32                `json:"num_gc"`
	Goroutines int                   `json:"goroutines"`
	Uptime     string                `json:"uptime"`

	// --- ACTIVITY ---
	Recent []ActivityEntry `json:"recent"`
}

// MonitoringManager collects relay telemetry in real time.
// Counters are updated with atomics from the hot path, sampled values under the lock.
type MonitoringManager struct {
	log       *slog.Logger
	startedAt time.Time

	delivered atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	joined    atomic.Uint64
	left      atomic.Uint64
	censored  atomic.Uint64
	active    atomic.Int64

	mu         sync.RWMutex
	queues     map[string]QueueStats
	rssBytes   uint64
	cpuPercent float64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{
		log:       log,
		startedAt: time.Now(),
		queues:    make(map[string]QueueStats),
	}
}

// IncrDelivered counts one event handed to a session sink.
func (mm *MonitoringManager) IncrDelivered() { mm.delivered.Add(1) }

// IncrDropped counts one event a session sink refused.
func (mm *MonitoringManager) IncrDropped() { mm.dropped.Add(1) }

// IncrRejected counts one message refused before it reached the store.
func (mm *MonitoringManager) IncrRejected() { mm.rejected.Add(1) }

func (mm *MonitoringManager) IncrCensored() { mm.censored.Add(1) }

func (mm *MonitoringManager) IncrJoined() {
	mm.joined.Add(1)
	mm.active.Add(1)
}

func (mm *MonitoringManager) IncrLeft() {
	mm.left.Add(1)
	mm.active.Add(-1)
}

func (mm *MonitoringManager) SetQueue(name string, length, capacity int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.queues[name] = QueueStats{Length: length, Capacity: capacity}
}

func (mm *MonitoringManager) SetProcess(rss uint64, cpu float64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.rssBytes = rss
	mm.cpuPercent = cpu
}

// GetLatest returns a consistent copy of every metric.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return MonitoringStats{
		Delivered:     mm.delivered.Load(),
		Dropped:       mm.dropped.Load(),
		Rejected:      mm.rejected.Load(),
		Joined:        mm.joined.Load(),
		Left:          mm.left.Load(),
		Censored:      mm.censored.Load(),
		ActiveClients: mm.active.Load(),
		Queues:        maps.Clone(mm.queues),
		RSSBytes:      mm.rssBytes,
		CPUPercent:    mm.cpuPercent,
		AllocMemMb:    m.Alloc / 1024 / 1024,
		NumGC:         m.NumGC,
		Goroutines:    runtime.NumGoroutine(),
		Uptime:        time.Since(mm.startedAt).Truncate(time.Second).String(),
	}
}
