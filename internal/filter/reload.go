package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/cache"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// AllTenants in a reload notice addresses every engine.
const AllTenants = "*"

// ReloadNotice asks instances to drop a tenant's compiled rules.
type ReloadNotice struct {
	Tenant string    `json:"tenant"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// ReloadWatcher applies reload notices published by other instances to a
// local registry.
type ReloadWatcher struct {
	registry *Registry
	sub      cache.PubSub
	channel  string
	logger   *observability.Logger
}

// NewReloadWatcher creates a watcher on channel.
func NewReloadWatcher(registry *Registry, sub cache.PubSub, channel string, logger *observability.Logger) *ReloadWatcher {
	if channel == "" {
		channel = DefaultReloadChannel
	}
	return &ReloadWatcher{
		registry: registry,
		sub:      sub,
		channel:  channel,
		logger:   observability.OrNop(logger).WithOperation("reload_watcher"),
	}
}

// Run consumes notices until ctx is done or the subscription ends.
func (w *ReloadWatcher) Run(ctx context.Context) error {
	msgs, unsubscribe, err := w.sub.Subscribe(ctx, w.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.channel, err)
	}
	defer unsubscribe()

	w.logger.Info().Str("channel", w.channel).Msg("Watching for rule reloads")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, payload)
		}
	}
}

func (w *ReloadWatcher) handle(ctx context.Context, payload []byte) {
	var notice ReloadNotice
	if err := json.Unmarshal(payload, &notice); err != nil {
		w.logger.Warn().Err(err).Msg("Ignoring malformed reload notice")
		return
	}
	if notice.Origin != "" && notice.Origin == w.registry.ID() {
		return
	}

	if notice.Tenant == AllTenants {
		for _, t := range w.registry.Tenants() {
			if e, ok := w.registry.Lookup(t); ok {
				e.dropLocal(ctx)
			}
		}
		return
	}
	if e, ok := w.registry.Lookup(notice.Tenant); ok {
		e.dropLocal(ctx)
	}
}
