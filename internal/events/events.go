// Package events publishes job lifecycle changes. Delivery is best effort;
// clients that need state poll the job store.
package events

import (
	"context"
	"strings"
	"time"

	"adforge/internal/bus"
)

// JobEvent is emitted whenever a job is persisted.
type JobEvent struct {
	JobID      string    `json:"jobId"`
	CampaignID string    `json:"campaignId"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage"`
	Progress   int       `json:"progress"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev JobEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, JobEvent) error { return nil }

// NATSPublisher publishes events as JSON on subject.<campaignId>. The
// payload always carries the exact campaign id.
type NATSPublisher struct {
	client  *bus.Client
	subject string
}

func NewNATSPublisher(client *bus.Client, subject string) *NATSPublisher {
	return &NATSPublisher{client: client, subject: subject}
}

func (p *NATSPublisher) Subject(ev JobEvent) string {
	token := subjectToken(ev.CampaignID)
	if token == "" {
		return p.subject
	}
	return p.subject + "." + token
}

// subjectToken makes id safe as a single subject token. Separators,
// wildcards and whitespace become underscores.
func subjectToken(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func (p *NATSPublisher) Publish(_ context.Context, ev JobEvent) error {
	return p.client.PublishJSON(p.Subject(ev), ev)
}
