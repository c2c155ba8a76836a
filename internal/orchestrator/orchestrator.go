// Package orchestrator drives the crawl pipeline: fixed sources first,
// then the user subscription sweep, all under a cross-process lock.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
	"github.com/ctisec/ctihub/internal/metrics"
	"github.com/ctisec/ctihub/internal/normalize"
	"github.com/ctisec/ctihub/internal/source"
)

// Config carries orchestration knobs.
type Config struct {
	LockName       string
	Topic          string
	MaxSubs        int
	PublishEnabled bool
}

// Orchestrator coordinates one crawl cycle end to end.
type Orchestrator struct {
	cfg         Config
	adapters    []intel.Adapter
	userFetcher *source.UserFeedFetcher
	builder     *normalize.Builder
	records     intel.RecordStore
	feedItems   intel.FeedItemStore
	subs        intel.SubscriptionStore
	locker      intel.Locker
	publisher   intel.Publisher
	clock       intel.Clock
	logger      *zap.Logger
}

// New builds an Orchestrator.
func New(
	cfg Config,
	adapters []intel.Adapter,
	userFetcher *source.UserFeedFetcher,
	builder *normalize.Builder,
	records intel.RecordStore,
	feedItems intel.FeedItemStore,
	subs intel.SubscriptionStore,
	locker intel.Locker,
	publisher intel.Publisher,
	clock intel.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		adapters:    adapters,
		userFetcher: userFetcher,
		builder:     builder,
		records:     records,
		feedItems:   feedItems,
		subs:        subs,
		locker:      locker,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.Named("orchestrator"),
	}
}

// FetchAll runs the whole crawl cycle under the fetch lock. Sources run
// sequentially and in isolation: one source failing is reported but never
// aborts the others.
func (o *Orchestrator) FetchAll(ctx context.Context) (intel.FetchReport, error) {
	var report intel.FetchReport
	start := o.clock.Now()

	err := o.locker.WithLock(ctx, o.cfg.LockName, func(ctx context.Context) error {
		report = o.fetchLocked(ctx)
		return nil
	})
	if err != nil {
		metrics.FetchRuns.WithLabelValues("error").Inc()
		return intel.FetchReport{}, fmt.Errorf("fetch run: %w", err)
	}

	metrics.FetchRuns.WithLabelValues("ok").Inc()
	metrics.FetchDuration.Observe(o.clock.Now().Sub(start).Seconds())
	o.logger.Info("fetch run finished",
		zap.Int("new", report.New),
		zap.Int("total", report.Total),
		zap.Duration("took", o.clock.Now().Sub(start)))
	return report, nil
}

func (o *Orchestrator) fetchLocked(ctx context.Context) intel.FetchReport {
	var report intel.FetchReport

	for _, adapter := range o.adapters {
		sr := o.runAdapter(ctx, adapter)
		report.Sources = append(report.Sources, sr)
		report.New += sr.Inserted
		report.Total += sr.Inserted + sr.Matched
	}

	sweep := o.SweepSubscriptions(ctx)
	report.Sources = append(report.Sources, sweep)
	report.New += sweep.Inserted
	report.Total += sweep.Inserted + sweep.Matched

	return report
}

func (o *Orchestrator) runAdapter(ctx context.Context, adapter intel.Adapter) intel.SourceReport {
	sr := intel.SourceReport{Source: adapter.Name()}

	items, err := adapter.Fetch(ctx)
	if err != nil {
		metrics.SourceErrors.WithLabelValues(adapter.Name()).Inc()
		o.logger.Warn("source fetch failed", zap.String("source", adapter.Name()), zap.Error(err))
		sr.Error = err.Error()
		return sr
	}
	sr.Fetched = len(items)
	metrics.SourceItems.WithLabelValues(adapter.Name()).Add(float64(len(items)))

	records := make([]intel.Record, 0, len(items))
	for _, item := range items {
		records = append(records, o.builder.Record(adapter.Source(), item))
	}

	inserted, matched, err := o.records.BulkUpsert(ctx, records)
	if err != nil {
		metrics.SourceErrors.WithLabelValues(adapter.Name()).Inc()
		sr.Error = err.Error()
		return sr
	}
	sr.Inserted = inserted
	sr.Matched = matched
	metrics.RecordsInserted.Add(float64(inserted))
	metrics.RecordsMatched.Add(float64(matched))
	return sr
}

// SweepSubscriptions crawls every enabled subscription. Each feed is
// isolated: failures are written back to the subscription's status and
// the sweep moves on.
func (o *Orchestrator) SweepSubscriptions(ctx context.Context) intel.SourceReport {
	sr := intel.SourceReport{Source: string(intel.SourceUser)}

	subs, err := o.subs.ListEnabled(ctx, o.cfg.MaxSubs)
	if err != nil {
		o.logger.Warn("listing subscriptions failed", zap.Error(err))
		sr.Error = err.Error()
		return sr
	}

	for _, sub := range subs {
		rep, err := o.crawlSubscription(ctx, sub, 0)
		if err != nil {
			sr.Error = err.Error()
			continue
		}
		sr.Fetched += rep.Fetched
		sr.Inserted += rep.Inserted
		sr.Matched += rep.Matched
	}
	metrics.RecordsInserted.Add(float64(sr.Inserted))
	metrics.RecordsMatched.Add(float64(sr.Matched))
	return sr
}

// FetchSubscription crawls a single subscription on demand.
func (o *Orchestrator) FetchSubscription(ctx context.Context, sub intel.Subscription, limit int) (intel.SourceReport, error) {
	return o.crawlSubscription(ctx, sub, limit)
}

// crawlSubscription pulls one feed, persists both the owner-scoped items
// and their canonical records, and writes the outcome back onto the
// subscription row.
func (o *Orchestrator) crawlSubscription(ctx context.Context, sub intel.Subscription, limit int) (intel.SourceReport, error) {
	sr := intel.SourceReport{Source: string(intel.SourceUser)}

	items, err := o.userFetcher.Fetch(ctx, sub, limit)
	if err != nil {
		o.setStatus(ctx, sub, fmt.Sprintf("error: %v", err))
		return sr, fmt.Errorf("crawl %s for %s: %w", sub.URL, sub.Owner, err)
	}
	sr.Fetched = len(items)

	feedItems := make([]intel.FeedItem, 0, len(items))
	records := make([]intel.Record, 0, len(items))
	for _, item := range items {
		feedItems = append(feedItems, o.builder.FeedItem(sub.URL, item))
		records = append(records, o.builder.Record(intel.SourceUser, item))
	}

	if _, _, err := o.feedItems.BulkUpsert(ctx, feedItems); err != nil {
		o.setStatus(ctx, sub, fmt.Sprintf("error: %v", err))
		return sr, fmt.Errorf("store feed items for %s: %w", sub.Owner, err)
	}
	inserted, matched, err := o.records.BulkUpsert(ctx, records)
	if err != nil {
		o.setStatus(ctx, sub, fmt.Sprintf("error: %v", err))
		return sr, fmt.Errorf("store records for %s: %w", sub.Owner, err)
	}
	sr.Inserted = inserted
	sr.Matched = matched

	o.setStatus(ctx, sub, fmt.Sprintf("ok new=%d total=%d", inserted, inserted+matched))
	return sr, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, sub intel.Subscription, status string) {
	if err := o.subs.SetStatus(ctx, sub.Owner, sub.URL, o.clock.Now(), status); err != nil {
		o.logger.Warn("updating subscription status failed",
			zap.String("owner", sub.Owner),
			zap.String("url", sub.URL),
			zap.Error(err))
	}
}

// FetchAndRecommend runs a full fetch and, when a publisher is wired,
// notifies downstream consumers that fresh records are available.
func (o *Orchestrator) FetchAndRecommend(ctx context.Context) (intel.FetchReport, error) {
	report, err := o.FetchAll(ctx)
	if err != nil {
		return intel.FetchReport{}, err
	}

	if o.cfg.PublishEnabled && o.publisher != nil {
		event := map[string]any{
			"event": "records_fetched",
			"new":   report.New,
			"total": report.Total,
			"at":    o.clock.Now().Format(time.RFC3339),
		}
		if _, err := o.publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
			// The fetch itself succeeded; surface the publish failure in
			// logs without failing the run.
			o.logger.Warn("recommend publish failed", zap.Error(err))
		}
	}
	return report, nil
}
