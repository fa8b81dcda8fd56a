package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
)

// GrantsTopic carries grant mutations from the authz service; any message for
// an actor invalidates that actor's cached capabilities.
const GrantsTopic = "authz.grants"

// Client answers capability checks against the authz service. Answers are
// cached per actor for the client's lifetime and invalidated when the authz
// service announces a grant change, so there is no process-wide stale
// permission state.
type Client struct {
	mu     sync.RWMutex
	grants map[uuid.UUID]map[string]bool
	client *apt.ServiceClient
	logger apt.Logger
}

func NewClient(client *apt.ServiceClient, logger apt.Logger) *Client {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Client{
		grants: make(map[uuid.UUID]map[string]bool),
		client: client,
		logger: logger,
	}
}

// Allowed reports whether the actor holds the capability.
func (c *Client) Allowed(ctx context.Context, actorID uuid.UUID, capability string) (bool, error) {
	if actorID == uuid.Nil {
		return false, fmt.Errorf("invalid actor id")
	}

	c.mu.RLock()
	caps, ok := c.grants[actorID]
	c.mu.RUnlock()
	if ok {
		if allowed, cached := caps[capability]; cached {
			return allowed, nil
		}
	}

	return c.refresh(ctx, actorID, capability)
}

func (c *Client) refresh(ctx context.Context, actorID uuid.UUID, capability string) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("authz client uninitialized")
	}

	path := fmt.Sprintf("/authz/checks/%s/%s", actorID, capability)
	resp, err := c.client.Request(ctx, "GET", path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check capability %s for %s: %w", capability, actorID, err)
	}

	var dto checkDTO
	if err := rehydrate(resp.Data, &dto); err != nil {
		return false, fmt.Errorf("failed to decode capability check: %w", err)
	}

	c.set(actorID, capability, dto.Allowed)
	return dto.Allowed, nil
}

func (c *Client) set(actorID uuid.UUID, capability string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	caps, ok := c.grants[actorID]
	if !ok {
		caps = make(map[string]bool)
		c.grants[actorID] = caps
	}
	caps[capability] = allowed
}

// InvalidateActor drops all cached capabilities for one actor.
func (c *Client) InvalidateActor(actorID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.grants, actorID)
}

// Subscribe wires grant-change invalidation. Safe to skip when the event bus
// is not configured; the cache then lives until process restart.
func (c *Client) Subscribe(ctx context.Context, subscriber events.Subscriber) error {
	return subscriber.Subscribe(ctx, GrantsTopic, c.handleGrantEvent)
}

func (c *Client) handleGrantEvent(ctx context.Context, msg []byte) error {
	var evt grantEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		c.logger.Error("cannot decode grant event", "error", err)
		return nil
	}

	actorID, err := uuid.Parse(evt.UserID)
	if err != nil {
		c.logger.Debug("skipping grant event with invalid user id", "user_id", evt.UserID)
		return nil
	}

	c.InvalidateActor(actorID)
	c.logger.Debug("invalidated cached capabilities", "actor_id", actorID.String())
	return nil
}

type grantEvent struct {
	EventType string `json:"event_type"`
	UserID    string `json:"user_id"`
}

type checkDTO struct {
	Allowed bool `json:"allowed"`
}

func rehydrate(data interface{}, out interface{}) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}
