package mcp

import (
	"context"
	"fmt"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/config"
)

// ClientFactory builds per-request Client instances bound to a fixed
// server registry, connecting to the requested servers before handing
// the Client back to the caller.
type ClientFactory struct {
	registry       *config.MCPServerRegistry
	createClientFn func(ctx context.Context, serverIDs []string) (*Client, error)
}

// NewClientFactory creates a ClientFactory backed by registry.
func NewClientFactory(registry *config.MCPServerRegistry) *ClientFactory {
	f := &ClientFactory{registry: registry}
	f.createClientFn = f.createClient
	return f
}

// CreateClient connects a fresh Client to every server in serverIDs,
// returning the client even if some servers failed (callers can inspect
// FailedServers()), and an error only if createClientFn itself fails.
func (f *ClientFactory) CreateClient(ctx context.Context, serverIDs []string) (*Client, error) {
	return f.createClientFn(ctx, serverIDs)
}

func (f *ClientFactory) createClient(ctx context.Context, serverIDs []string) (*Client, error) {
	c := newClient(f.registry)
	if err := c.Initialize(ctx, serverIDs); err != nil {
		return nil, fmt.Errorf("initialize mcp client: %w", err)
	}
	return c, nil
}
