package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ConnectionChannel is the pub/sub channel carrying live events for one
// ephemeral connection.
func ConnectionChannel(connectionID string) string {
	return fmt.Sprintf("connection:%s", connectionID)
}

// CandidateNoticeKey is the set of candidate session ids a session has
// already been notified about.
func CandidateNoticeKey(sessionID string) string {
	return fmt.Sprintf("candidate_notices:%s", sessionID)
}
