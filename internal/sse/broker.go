package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/lateshift-app/afterhours-server/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Event types carried on a connection's live channel
const (
	EventTypeMessage          = "message"
	EventTypeConnectionOpened = "connection_opened"
	EventTypeConnectionClosed = "connection_closed"
	EventTypeSaveRequested    = "save_requested"
	EventTypeSaveConfirmed    = "save_confirmed"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	ConnectionID string
	Events       chan Event
	Done         chan struct{}
}

// Broker fans live connection events out to local SSE subscribers, with
// Redis pub/sub bridging processes. Subscriptions are keyed by connection
// id: both participants of a connection share one channel.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // connectionID -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(connectionID string) *Client {
	client := &Client{
		ConnectionID: connectionID,
		Events:       make(chan Event, 100),
		Done:         make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[connectionID] == nil {
		b.clients[connectionID] = make(map[*Client]bool)
		go b.subscribeToRedis(connectionID)
	}
	b.clients[connectionID][client] = true
	clientCount := len(b.clients[connectionID])
	b.mu.Unlock()

	log.Info().
		Str("connectionId", connectionID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.ConnectionID]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.ConnectionID)
		}

		log.Info().
			Str("connectionId", client.ConnectionID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, connectionID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.ConnectionChannel(connectionID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(connectionID string) {
	channel := redisclient.ConnectionChannel(connectionID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("connectionId", connectionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(connectionID, event)
		}
	}
}

func (b *Broker) broadcast(connectionID string, event Event) {
	// Snapshot the subscriber set under the lock; Unsubscribe mutates the
	// map concurrently with fan-out.
	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients[connectionID]))
	for client := range b.clients[connectionID] {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("connectionId", connectionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(connectionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[connectionID])
}
