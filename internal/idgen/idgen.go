// Package idgen issues string identifiers backed by snowflake ids.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out identifiers that sort the same way as strings and as
// numbers, so text primary keys keep insertion order.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node number (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// MustNew is like New but panics on an out-of-range node.
func MustNew(nodeID int64) *Generator {
	g, err := New(nodeID)
	if err != nil {
		panic(err)
	}
	return g
}

// NewID returns the next identifier, zero padded to 19 digits.
func (g *Generator) NewID() string {
	return fmt.Sprintf("%019d", g.node.Generate().Int64())
}
