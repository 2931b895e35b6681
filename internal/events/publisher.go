package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink receives attempt outcomes and campaign reports as they are produced.
type Sink interface {
	PublishOutcome(ctx context.Context, ev OutcomeEvent) error
	PublishReport(ctx context.Context, ev ReportEvent) error
}

// Publisher emits outcome and report events to Kafka.
type Publisher struct {
	outcomes *kafka.Writer
	reports  *kafka.Writer
}

// NewPublisher constructs a publisher for the configured topics.
func NewPublisher(k *Kafka, outcomeTopic, reportTopic string) *Publisher {
	return &Publisher{
		outcomes: k.NewWriter(outcomeTopic),
		reports:  k.NewWriter(reportTopic),
	}
}

// PublishOutcome emits an attempt outcome keyed by campaign.
func (p *Publisher) PublishOutcome(ctx context.Context, ev OutcomeEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("publisher: marshal outcome: %w", err)
	}
	record := kafka.Message{
		Key:   ev.CampaignID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.outcomes.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("publisher: write outcome: %w", err)
	}
	return nil
}

// PublishReport emits the final campaign report.
func (p *Publisher) PublishReport(ctx context.Context, ev ReportEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("publisher: marshal report: %w", err)
	}
	record := kafka.Message{
		Key:   ev.CampaignID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.reports.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("publisher: write report: %w", err)
	}
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	for _, w := range []*kafka.Writer{p.outcomes, p.reports} {
		if w == nil {
			continue
		}
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// NopSink discards all events. Useful in tests and local runs without Kafka.
type NopSink struct{}

func (NopSink) PublishOutcome(context.Context, OutcomeEvent) error { return nil }
func (NopSink) PublishReport(context.Context, ReportEvent) error   { return nil }
