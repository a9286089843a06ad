package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
)

// Ensure *DeliveryWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*DeliveryWorker)(nil)

// DeliveryJob is one message waiting for its turn on a shard.
// Reply is buffered by the sender so the worker never blocks on it.
type DeliveryJob struct {
	Command domain.PostMessageCommand
	Room    domain.RoomKey
	Reply   chan DeliveryResult
}

type DeliveryResult struct {
	Message domain.Message
	Err     error
}

func NewDeliveryJob(cmd domain.PostMessageCommand, room domain.RoomKey) DeliveryJob {
	return DeliveryJob{Command: cmd, Room: room, Reply: make(chan DeliveryResult, 1)}
}

// DeliverFunc stores one message and pushes it to its receivers.
type DeliverFunc func(ctx context.Context, job DeliveryJob) (domain.Message, error)

// DeliveryWorker owns one shard of rooms.
// Every room hashes to exactly one shard, so the jobs of a room are handled
// one after the other: store order and delivery order are the same.
type DeliveryWorker struct {
	name    contract.WorkerName
	jobs    chan DeliveryJob
	deliver DeliverFunc
	log     *slog.Logger
}

func NewDeliveryWorker(shard int, jobs chan DeliveryJob, deliver DeliverFunc, log *slog.Logger) *DeliveryWorker {
	return &DeliveryWorker{
		name:    contract.WorkerName(fmt.Sprintf("delivery_%d", shard)),
		jobs:    jobs,
		deliver: deliver,
		log:     log,
	}
}

func (w *DeliveryWorker) GetName() contract.WorkerName { return w.name }

func (w *DeliveryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker", "name", w.name)
			return ctx.Err()
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Channel is closed", "name", w.name)
				return nil
			}
			w.handle(ctx, job)
		}
	}
}

// handle answers the job even when the delivery panics, then lets the panic
// reach the supervisor which restarts the shard.
func (w *DeliveryWorker) handle(ctx context.Context, job DeliveryJob) {
	defer func() {
		if r := recover(); r != nil {
			job.Reply <- DeliveryResult{Err: errors.ErrWorkerPanic}
			panic(r)
		}
	}()
	message, err := w.deliver(ctx, job)
	job.Reply <- DeliveryResult{Message: message, Err: err}
}
