package server

import (
	"context"
	"strings"

	"visionline/internal/engine"
	"visionline/internal/events"
	"visionline/internal/logger"
)

// StartDispatcher tails the configured project's event log in the
// background until ctx is done. It returns nil when no webhook or Kafka
// publisher is configured.
func StartDispatcher(ctx context.Context, e engine.Engine) (*events.Dispatcher, error) {
	if e.Config == nil || strings.TrimSpace(e.Config.Project.ID) == "" {
		return nil, nil
	}
	pubs, err := events.PublishersFromConfig(e.Config)
	if err != nil {
		return nil, err
	}
	if len(pubs) == 0 {
		return nil, nil
	}
	log := e.Log
	if log == nil {
		log = logger.Nop()
	}
	d := &events.Dispatcher{
		Repo:       e.Repo,
		ProjectID:  e.Config.Project.ID,
		Publishers: pubs,
		Log:        log.With("component", "dispatcher"),
		Metrics:    e.Metrics,
		Now:        e.Now,
	}
	go d.Run(ctx)
	return d, nil
}
