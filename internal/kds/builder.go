package kds

import (
	"time"
)

// Builder assembles kitchen view snapshots from the board cache.
type Builder struct {
	cache *BoardCache
	now   func() time.Time
}

// NewBuilder creates a view builder backed by the given cache.
func NewBuilder(cache *BoardCache) *Builder {
	return &Builder{
		cache: cache,
		now:   time.Now,
	}
}

// Build computes a fresh kitchen view from the cached open orders.
func (b *Builder) Build() *KitchenView {
	now := b.now().UTC()
	orders, itemsByOrder := b.cache.OpenOrders()

	view := &KitchenView{
		GeneratedAt: now,
		Pending:     []OrderCard{},
		Preparing:   []OrderCard{},
		Ready:       []OrderCard{},
	}

	for _, order := range orders {
		card := BuildCard(order, itemsByOrder[order.ID], now)
		switch card.Column {
		case ColumnReady:
			view.Ready = append(view.Ready, card)
		case ColumnPreparing:
			view.Preparing = append(view.Preparing, card)
		default:
			view.Pending = append(view.Pending, card)
		}
	}

	return view
}
