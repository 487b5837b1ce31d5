package health

import (
	"context"
	"fmt"

	"github.com/devblac/cw-indexer/internal/chain"
)

// NodeChecker probes the chain node.
type NodeChecker struct {
	client chain.Client
}

// NewNodeChecker creates a checker over the given chain client.
func NewNodeChecker(client chain.Client) *NodeChecker {
	return &NodeChecker{client: client}
}

// Ping asks the node for its latest height.
func (c *NodeChecker) Ping(ctx context.Context) error {
	if c.client == nil {
		return chain.ErrNotConnected
	}
	if _, err := c.client.GetHeight(ctx); err != nil {
		return fmt.Errorf("node height: %w", err)
	}
	return nil
}
