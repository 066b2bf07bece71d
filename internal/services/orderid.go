package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bwmarrin/snowflake"
)

const (
	orderIDPrefix    = "PAY_"
	orderSuffixChars = "0123456789abcdefghijklmnopqrstuvwxyz"
	orderSuffixLen   = 9
)

// OrderIDGenerator issues order identifiers of the form
// PAY_<snowflake>_<random base36>. The snowflake keeps IDs time-ordered and
// unique per node; the suffix makes them unguessable.
type OrderIDGenerator struct {
	node *snowflake.Node
}

// NewOrderIDGenerator creates a generator for the given node (0..1023).
func NewOrderIDGenerator(nodeID int64) (*OrderIDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &OrderIDGenerator{node: node}, nil
}

// Next returns a new order ID.
func (g *OrderIDGenerator) Next() (string, error) {
	suffix, err := randomBase36(orderSuffixLen)
	if err != nil {
		return "", err
	}
	return orderIDPrefix + g.node.Generate().String() + "_" + suffix, nil
}

func randomBase36(n int) (string, error) {
	max := big.NewInt(int64(len(orderSuffixChars)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random order suffix: %w", err)
		}
		out[i] = orderSuffixChars[idx.Int64()]
	}
	return string(out), nil
}
