package mwapi

import (
	"context"
	"time"
)

// SetSleep replaces the retry sleeper so tests never block.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	c.sleep = fn
}
