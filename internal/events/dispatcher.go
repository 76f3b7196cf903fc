package events

import (
	"context"
	"errors"
	"time"

	"visionline/internal/config"
	"visionline/internal/logger"
	"visionline/internal/metrics"
	"visionline/internal/repo"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 100
)

// Dispatcher tails the event log and hands new events to each publisher.
// Every publisher keeps its own persisted cursor, so a slow or failing
// receiver never blocks the others and nothing is lost across restarts.
type Dispatcher struct {
	Repo       repo.Repo
	ProjectID  string
	Publishers []Publisher
	Log        *logger.Logger
	Metrics    *metrics.Metrics
	Interval   time.Duration
	Batch      int
	Now        func() time.Time
}

// PublishersFromConfig builds the webhook and Kafka publishers a config asks for.
func PublishersFromConfig(cfg *config.Config) ([]Publisher, error) {
	if cfg == nil {
		return nil, nil
	}
	var pubs []Publisher
	for _, hook := range cfg.Events.Webhooks {
		if !hook.IsEnabled() {
			continue
		}
		pubs = append(pubs, NewWebhookPublisher(hook))
	}
	if cfg.Events.Kafka.Enabled() {
		kp, err := NewKafkaPublisher(cfg.Events.Kafka)
		if err != nil {
			for _, p := range pubs {
				p.Close()
			}
			return nil, err
		}
		pubs = append(pubs, kp)
	}
	return pubs, nil
}

func (d *Dispatcher) log() *logger.Logger {
	if d.Log == nil {
		return logger.Nop()
	}
	return d.Log
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run dispatches until ctx is done, then closes the publishers.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() {
		for _, p := range d.Publishers {
			p.Close()
		}
	}()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce runs one delivery pass over all publishers.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for _, p := range d.Publishers {
		if ctx.Err() != nil {
			return
		}
		d.dispatch(ctx, p)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, p Publisher) {
	log := d.log().With("publisher", p.Name(), "project_id", d.ProjectID)
	cursor, err := d.cursorFor(ctx, p)
	if err != nil {
		log.Warn("init cursor failed", "error", err)
		return
	}
	batch := d.Batch
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	evts, err := d.Repo.EventsAfter(ctx, batch, cursor, d.ProjectID)
	if err != nil {
		log.Warn("fetch events failed", "error", err)
		return
	}
	for _, evt := range evts {
		err := p.Publish(ctx, evt)
		d.Metrics.IncPublished(p.Name(), err)
		if err != nil {
			log.Warn("delivery failed", "event_id", evt.EventID, "type", evt.Type, "error", err)
			return
		}
		if err := d.Repo.SetCursor(ctx, d.consumer(p), evt.ID, d.now()); err != nil {
			log.Warn("save cursor failed", "error", err)
			return
		}
	}
}

// cursorFor starts new publishers at the current end of the log.
func (d *Dispatcher) cursorFor(ctx context.Context, p Publisher) (int64, error) {
	cur, err := d.Repo.Cursor(ctx, d.consumer(p))
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}
	cur, err = d.Repo.LatestEventID(ctx, d.ProjectID)
	if err != nil {
		return 0, err
	}
	return cur, d.Repo.SetCursor(ctx, d.consumer(p), cur, d.now())
}

func (d *Dispatcher) consumer(p Publisher) string {
	if d.ProjectID == "" {
		return p.Name()
	}
	return d.ProjectID + "|" + p.Name()
}
