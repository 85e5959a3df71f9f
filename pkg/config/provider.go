package config

import "sync/atomic"

// Provider hands out the current Snapshot atomically. Readers never observe
// a torn update; a reload swaps the whole pointer.
type Provider struct {
	current atomic.Pointer[Snapshot]
}

func NewProvider(snap *Snapshot) *Provider {
	p := &Provider{}
	p.current.Store(snap)
	return p
}

func (p *Provider) Snapshot() *Snapshot { return p.current.Load() }

func (p *Provider) Swap(snap *Snapshot) { p.current.Store(snap) }
