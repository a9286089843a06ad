package workers

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type queueRecorder struct {
	mu     sync.Mutex
	queues map[string][2]int
}

func (r *queueRecorder) SetQueue(name string, length, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[name] = [2]int{length, capacity}
}

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	recorder := &queueRecorder{queues: make(map[string][2]int)}

	jobs := make(chan int, 4)
	jobs <- 1
	jobs <- 2

	worker := NewChannelCapacityWorker(log, []NamedChannel{
		{Name: "jobs", Channel: jobs},
		{Name: "not_a_channel", Channel: 42},
	}, recorder, time.Second)

	worker.Sample()

	req.Equal([2]int{2, 4}, recorder.queues["jobs"])
	_, ok := recorder.queues["not_a_channel"]
	req.False(ok)
}
