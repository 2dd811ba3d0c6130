package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"adforge/internal/bus"
	"adforge/internal/infra"
)

// Task is the wire form of a queued job.
type Task struct {
	JobID string `json:"jobId"`
}

// NATSDispatcher publishes tasks for workers in another process.
type NATSDispatcher struct {
	client  *bus.Client
	subject string
}

func NewNATSDispatcher(client *bus.Client, subject string) *NATSDispatcher {
	return &NATSDispatcher{client: client, subject: subject}
}

func (d *NATSDispatcher) Submit(_ context.Context, jobID string) error {
	if err := d.client.PublishJSON(d.subject, Task{JobID: jobID}); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Submitter accepts decoded tasks. *Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, jobID string) error
}

// Consumer pulls tasks from a NATS queue group into a local Submitter.
type Consumer struct {
	client  *bus.Client
	subject string
	group   string
	target  Submitter
	logger  infra.Logger
	sub     *nats.Subscription
}

func NewConsumer(client *bus.Client, subject, group string, target Submitter, logger infra.Logger) *Consumer {
	return &Consumer{client: client, subject: subject, group: group, target: target, logger: logger}
}

func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.client.QueueSubscribeJSON(ctx, c.subject, c.group, c.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	c.logger.Info().Str("subject", c.subject).Str("group", c.group).Msg("queue: consuming tasks")
	return nil
}

func (c *Consumer) handle(ctx context.Context, data []byte) {
	task, err := DecodeTask(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("queue: dropping malformed task")
		return
	}
	if err := c.target.Submit(ctx, task.JobID); err != nil {
		c.logger.Error().Err(err).Str("job_id", task.JobID).Msg("queue: submit task")
	}
}

// Stop unsubscribes without waiting for running jobs.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

// DecodeTask parses a task message.
func DecodeTask(data []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	task.JobID = strings.TrimSpace(task.JobID)
	if task.JobID == "" {
		return Task{}, errors.New("task without job id")
	}
	return task, nil
}
