// Package server runs the station's network servers side by side.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/groundlink/internal/station/server/http"
	"github.com/autopeer-io/groundlink/pkg/log"
	"github.com/autopeer-io/groundlink/pkg/options"
)

// Server defines the common interface for all sub-servers.
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all servers.
type Manager struct {
	servers []Server
}

// NewManager creates the servers enabled by httpOpts. An empty HTTP address
// leaves the status API off.
func NewManager(httpOpts *options.HttpOptions, deps http.Deps) *Manager {
	var servers []Server
	if httpOpts != nil && httpOpts.Addr != "" {
		servers = append(servers, http.NewServer(httpOpts, deps))
	}
	return &Manager{servers: servers}
}

// Add registers an extra server.
func (m *Manager) Add(s Server) { m.servers = append(m.servers, s) }

// Len returns the number of managed servers.
func (m *Manager) Len() int { return len(m.servers) }

// Start launches all servers in parallel and waits until ctx is done or one
// of them fails.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
