package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// MenuItemInfo is the slice of the menu catalog the fulfillment engine needs:
// a display name and the expected preparation time driving the kitchen budget.
type MenuItemInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PrepMinutes int       `json:"prep_minutes"`
}

// Client looks up menu items from the catalog service and caches the answers.
// Menu data changes rarely, so entries are kept until Invalidate is called.
type Client struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]MenuItemInfo
	client *apt.ServiceClient
	logger apt.Logger
}

func NewClient(client *apt.ServiceClient, logger apt.Logger) *Client {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Client{
		items:  make(map[uuid.UUID]MenuItemInfo),
		client: client,
		logger: logger,
	}
}

// Lookup returns the catalog info for a menu item, fetching on cache miss.
func (c *Client) Lookup(ctx context.Context, id uuid.UUID) (MenuItemInfo, error) {
	if id == uuid.Nil {
		return MenuItemInfo{}, fmt.Errorf("invalid menu item id")
	}

	c.mu.RLock()
	info, ok := c.items[id]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	return c.refresh(ctx, id)
}

func (c *Client) refresh(ctx context.Context, id uuid.UUID) (MenuItemInfo, error) {
	if c.client == nil {
		return MenuItemInfo{}, fmt.Errorf("catalog client uninitialized")
	}

	resp, err := c.client.Get(ctx, "menu-items", id.String())
	if err != nil {
		return MenuItemInfo{}, fmt.Errorf("failed to fetch menu item %s: %w", id, err)
	}

	var dto menuItemDTO
	if err := rehydrate(resp.Data, &dto); err != nil {
		return MenuItemInfo{}, fmt.Errorf("failed to decode menu item %s: %w", id, err)
	}

	idValue, parseErr := uuid.Parse(dto.ID)
	if parseErr != nil {
		return MenuItemInfo{}, fmt.Errorf("invalid menu item id %s", dto.ID)
	}

	info := MenuItemInfo{ID: idValue, Name: dto.Name, PrepMinutes: dto.PrepMinutes}
	c.Set(info)
	return info, nil
}

func (c *Client) Set(info MenuItemInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[info.ID] = info
}

// Invalidate drops a cached entry, forcing a refetch on next lookup.
func (c *Client) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

type menuItemDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PrepMinutes int    `json:"prep_minutes"`
}

func rehydrate(data interface{}, out interface{}) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}
