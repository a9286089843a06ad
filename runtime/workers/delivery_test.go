package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestDeliveryWorker_Replies_With_Delivered_Message(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	jobs := make(chan DeliveryJob, 1)

	worker := NewDeliveryWorker(0, jobs, func(_ context.Context, job DeliveryJob) (domain.Message, error) {
		return domain.Message{Body: job.Command.Body, Room: job.Room}, nil
	}, log)
	req.Equal("delivery_0", string(worker.GetName()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	job := NewDeliveryJob(domain.PostMessageCommand{Sender: "alice", Body: "hi"}, domain.PublicRoom)
	jobs <- job

	select {
	case result := <-job.Reply:
		req.NoError(result.Err)
		req.Equal("hi", result.Message.Body)
		req.Equal(domain.PublicRoom, result.Message.Room)
	case <-time.After(time.Second):
		req.Fail("No reply received")
	}
}

func TestDeliveryWorker_Handles_Jobs_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	jobs := make(chan DeliveryJob, 10)

	var seen []string
	worker := NewDeliveryWorker(1, jobs, func(_ context.Context, job DeliveryJob) (domain.Message, error) {
		seen = append(seen, job.Command.Body)
		return domain.Message{}, nil
	}, log)

	var replies []chan DeliveryResult
	for _, body := range []string{"a", "b", "c"} {
		job := NewDeliveryJob(domain.PostMessageCommand{Sender: "alice", Body: body}, domain.PublicRoom)
		replies = append(replies, job.Reply)
		jobs <- job
	}
	close(jobs)

	// The worker returns once the channel is drained and closed
	req.NoError(worker.Run(context.Background()))
	for _, reply := range replies {
		req.NoError((<-reply).Err)
	}
	req.Equal([]string{"a", "b", "c"}, seen)
}

func TestDeliveryWorker_Replies_Then_Panics(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	jobs := make(chan DeliveryJob, 2)

	var calls atomic.Int32
	worker := NewDeliveryWorker(2, jobs, func(_ context.Context, job DeliveryJob) (domain.Message, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return domain.Message{Body: job.Command.Body}, nil
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	supervisor := NewSupervisor(log, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		supervisor.Add(worker).Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Given a delivery that panics, the caller still gets an answer
	first := NewDeliveryJob(domain.PostMessageCommand{Sender: "alice", Body: "one"}, domain.PublicRoom)
	jobs <- first
	req.ErrorIs((<-first.Reply).Err, errors.ErrWorkerPanic)

	// Then the supervisor restarts the shard and the next job succeeds
	second := NewDeliveryJob(domain.PostMessageCommand{Sender: "alice", Body: "two"}, domain.PublicRoom)
	jobs <- second
	select {
	case result := <-second.Reply:
		req.NoError(result.Err)
		req.Equal("two", result.Message.Body)
	case <-time.After(time.Second):
		req.Fail("Shard was not restarted")
	}
}
