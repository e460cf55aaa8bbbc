package delivery

import (
	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/observability/metrics"
)

// Resolver picks the channel for an envelope. It never fails: the internal channel is the
// final default whether or not a provider is registered for it.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver over registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the chosen channel and the reason it was chosen
// (metrics.ReasonPreferred, ReasonFallback or ReasonDefault).
//
// An explicit preference wins when its provider can deliver; this is the only way to reach
// the device bridge. External delivery is a manual action and is never resolved to.
// Otherwise the channels in entity.FallbackOrder are probed in order.
func (r *Resolver) Resolve(env Envelope) (entity.Channel, string) {
	ch, reason := r.resolve(env)
	metrics.RecordResolution(ch, reason)
	return ch, reason
}

func (r *Resolver) resolve(env Envelope) (entity.Channel, string) {
	if pref := env.Request.PreferredChannel; pref != "" && pref != entity.ChannelExternal {
		if r.canDeliver(pref, env) {
			return pref, metrics.ReasonPreferred
		}
	}
	for _, ch := range entity.FallbackOrder {
		if !ch.AutoSelectable() {
			continue
		}
		if r.canDeliver(ch, env) {
			return ch, metrics.ReasonFallback
		}
	}
	return entity.ChannelInternal, metrics.ReasonDefault
}

func (r *Resolver) canDeliver(ch entity.Channel, env Envelope) bool {
	p, ok := r.registry.Get(ch)
	return ok && p.CanDeliver(env)
}
