// Package delivery routes outbound messages to channel providers.
//
// A send goes through three steps. The Substitutor fills placeholders in title and body,
// the Resolver picks a channel, and the Dispatcher calls that channel's provider once, or
// once per registered phone number for phone-addressed channels. Service ties the steps
// together for the synchronous path and is reused by the queue worker and the invitation
// ledger.
package delivery

import (
	"context"

	"github.com/sony/gobreaker"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/resilience/circuitbreaker"
)

// Provider delivers messages over one channel.
//
// CanDeliver reports whether the envelope is addressable on the channel (the recipient has
// a mail address, a phone number, event credentials). It does not look at transport
// configuration: an addressable request on an unconfigured channel is recorded for manual
// follow-up by the Dispatcher instead of being routed elsewhere.
//
// Deliver never panics on transport failures and never returns Success=false with a status
// other than FAILED.
type Provider interface {
	Channel() entity.Channel
	IsConfigured() bool
	CanDeliver(env Envelope) bool
	Deliver(ctx context.Context, env Envelope) entity.DeliveryResult
}

// guarded is implemented by providers that sit behind a circuit breaker.
type guarded interface {
	Circuit() *circuitbreaker.CircuitBreaker
}

// ChannelHealth is the /health/channels view of one provider.
type ChannelHealth struct {
	Channel    entity.Channel `json:"channel"`
	Configured bool           `json:"configured"`
	Circuit    string         `json:"circuit,omitempty"`
	Failures   uint32         `json:"consecutive_failures,omitempty"`
}

// Registry maps channels to providers. The set of channels is closed, so a map keyed by
// entity.Channel is all the dispatch machinery needed.
type Registry struct {
	providers map[entity.Channel]Provider
}

// NewRegistry registers providers. A later provider for the same channel replaces an earlier one.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[entity.Channel]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the provider for p.Channel(). Nil providers are ignored.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Channel()] = p
}

// Get returns the provider for ch.
func (r *Registry) Get(ch entity.Channel) (Provider, bool) {
	p, ok := r.providers[ch]
	return p, ok
}

// Channels lists registered channels in entity.AllChannels order.
func (r *Registry) Channels() []entity.Channel {
	out := make([]entity.Channel, 0, len(r.providers))
	for _, ch := range entity.AllChannels {
		if _, ok := r.providers[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// ChannelHealth reports configuration and circuit state of every registered provider.
func (r *Registry) ChannelHealth() []ChannelHealth {
	out := make([]ChannelHealth, 0, len(r.providers))
	for _, ch := range r.Channels() {
		p := r.providers[ch]
		h := ChannelHealth{Channel: ch, Configured: p.IsConfigured()}
		if g, ok := p.(guarded); ok && g.Circuit() != nil {
			h.Circuit = g.Circuit().State().String()
			h.Failures = g.Circuit().Counts().ConsecutiveFailures
		}
		out = append(out, h)
	}
	return out
}

// Healthy reports whether no registered circuit is open.
func (r *Registry) Healthy() bool {
	for _, p := range r.providers {
		if g, ok := p.(guarded); ok && g.Circuit() != nil && g.Circuit().State() == gobreaker.StateOpen {
			return false
		}
	}
	return true
}
