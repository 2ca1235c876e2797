package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/propertyhub/libs/events"
	"github.com/md-rashed-zaman/propertyhub/libs/kafkax"
	"github.com/md-rashed-zaman/propertyhub/libs/refsync"
	"github.com/segmentio/kafka-go"
)

// OrganizationEvents are the topics whose data is an organization snapshot.
var OrganizationEvents = []string{"created", "activated", "renamed", "suspended", "reactivated", "deleted"}

// OrganizationTopics names the v1 topics for OrganizationEvents.
func OrganizationTopics() []string {
	out := make([]string, 0, len(OrganizationEvents))
	for _, ev := range OrganizationEvents {
		out = append(out, kafkax.TopicName("organization", ev, 1))
	}
	return out
}

// OrganizationHandler merges the snapshot carried by organization events into the
// local reference copies. It shares the Merger with the pull synchronizer.
type OrganizationHandler struct {
	gate      *kafkax.VersionGate
	validator *refsync.Validator
	merger    *refsync.Merger
	logger    *slog.Logger
}

func NewOrganizationHandler(gate *kafkax.VersionGate, validator *refsync.Validator, merger *refsync.Merger, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{gate: gate, validator: validator, merger: merger, logger: logger}
}

// Handle drops messages it can never apply and returns errors only for retryable failures.
func (h *OrganizationHandler) Handle(ctx context.Context, msg kafka.Message) error {
	item, err := h.decode(msg)
	if err != nil {
		h.logger.Error("organization event rejected", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}
	outcome, err := h.merger.Merge(ctx, item)
	if err != nil {
		return fmt.Errorf("merge organization %s: %w", item.ID, err)
	}
	h.logger.Debug("organization reference merged", "organization_id", item.ID, "version", item.Version, "outcome", outcome.String())
	return nil
}

func (h *OrganizationHandler) decode(msg kafka.Message) (refsync.Item, error) {
	topic, err := kafkax.ParseTopic(msg.Topic)
	if err != nil {
		return refsync.Item{}, err
	}
	if topic.Domain != "organization" {
		return refsync.Item{}, fmt.Errorf("unexpected domain %q", topic.Domain)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if err := h.gate.Check(topic, meta.SchemaVersion); err != nil {
		return refsync.Item{}, err
	}
	env, err := events.Decode(msg.Value)
	if err != nil {
		return refsync.Item{}, err
	}
	item, err := h.validator.Parse(env.Data)
	if err != nil {
		return refsync.Item{}, err
	}
	if item.ID != env.StreamID || (env.TenantID != "" && item.TenantID != env.TenantID) {
		return refsync.Item{}, errors.New("envelope and data disagree on identity")
	}
	return item, nil
}
