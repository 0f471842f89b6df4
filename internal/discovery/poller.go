// Package discovery keeps the controller's server list current by polling
// configured QLab hosts.
package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
)

// DefaultInterval matches the refresh cadence operators expect from the app.
const DefaultInterval = 3 * time.Second

// Lister asks one server for its open workspaces.
type Lister interface {
	ListWorkspaces(ctx context.Context, server *model.Server) (*model.Server, error)
}

// Listener receives poll results. OnServersChanged gets results that differ
// from the previous poll, OnServersRefreshed the rest.
type Listener interface {
	OnServersChanged(servers []*model.Server)
	OnServersRefreshed(servers []*model.Server)
}

// Poller polls a fixed set of servers and reports the reachable ones with
// their workspaces whenever the result changes.
type Poller struct {
	servers  []*model.Server
	lister   Lister
	listener Listener
	interval time.Duration
	log      *logging.Logger

	mu   sync.Mutex
	last string
	seen bool
}

// NewPoller creates a poller over servers. A non-positive interval uses DefaultInterval.
func NewPoller(servers []*model.Server, lister Lister, listener Listener, interval time.Duration, logger *logging.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		servers:  servers,
		lister:   lister,
		listener: listener,
		interval: interval,
		log:      logger.Named("discovery"),
	}
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll queries every server concurrently and reports the reachable set to the
// listener. The first poll always counts as a change.
func (p *Poller) Poll(ctx context.Context) []*model.Server {
	results := make([]*model.Server, len(p.servers))

	pollCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	var g errgroup.Group
	for i, server := range p.servers {
		g.Go(func() error {
			found, err := p.lister.ListWorkspaces(pollCtx, server)
			if err != nil {
				// Unreachable servers drop out of the list until they answer again.
				p.log.Debug("server unreachable", zap.String("server", server.Key()), zap.Error(err))
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var reachable []*model.Server
	for _, s := range results {
		if s != nil {
			reachable = append(reachable, s)
		}
	}

	if ctx.Err() != nil {
		return reachable
	}

	if p.changed(reachable) {
		p.log.Info("server list changed",
			zap.Int("servers", len(reachable)),
			zap.Int("workspaces", len(model.FlattenWorkspaces(reachable))))
		p.listener.OnServersChanged(reachable)
		return reachable
	}
	p.listener.OnServersRefreshed(reachable)
	return reachable
}

func (p *Poller) changed(servers []*model.Server) bool {
	fp := fingerprint(servers)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen && fp == p.last {
		return false
	}
	p.seen = true
	p.last = fp
	return true
}

// fingerprint identifies a server list by the fields the controller renders.
func fingerprint(servers []*model.Server) string {
	var b []byte
	for _, s := range servers {
		b = append(b, s.Key()...)
		b = append(b, '|')
		b = append(b, s.Name...)
		for _, ws := range s.Workspaces {
			b = append(b, '\n')
			b = append(b, ws.ID...)
			b = append(b, '|')
			b = append(b, ws.Name...)
			if ws.HasPasscode {
				b = append(b, "|locked"...)
			}
		}
		b = append(b, '\x00')
	}
	return string(b)
}
