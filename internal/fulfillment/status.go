package fulfillment

// ItemStatus is the status of a single order item on its way through the kitchen.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
	ItemCancelled ItemStatus = "cancelled"
)

// OrderStatus is the aggregate status of an order, derived from its items.
type OrderStatus string

const (
	OrderPlaced    OrderStatus = "placed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// ServePolicy controls whether items may be delivered as they individually
// become ready or only once the whole order is ready.
type ServePolicy string

const (
	ServePartial   ServePolicy = "partial"
	ServeAllAtOnce ServePolicy = "all_at_once"
)

// itemTransitions is the single source of truth for legal item status moves.
// No transition logic exists anywhere else.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:   {ItemPreparing, ItemCancelled},
	ItemPreparing: {ItemReady, ItemCancelled},
	ItemReady:     {ItemServed, ItemCancelled},
	ItemServed:    {},
	ItemCancelled: {},
}

// orderTransitions governs manual order-level status changes. Derived status
// changes bypass it; the deriver output is authoritative.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPlaced:    {OrderPreparing, OrderReady, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCompleted, OrderCancelled},
	OrderReady:     {OrderCompleted, OrderCancelled},
	OrderCompleted: {},
	OrderCancelled: {},
}

func (s ItemStatus) Terminal() bool {
	return s == ItemServed || s == ItemCancelled
}

// Active reports whether the item still counts toward kitchen work,
// i.e. it has been neither served nor cancelled.
func (s ItemStatus) Active() bool {
	return !s.Terminal()
}

func (s ItemStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

// CanTransition reports whether moving the item from s to next is legal.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransition reports whether a manual move from s to next is legal.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (p ServePolicy) Valid() bool {
	return p == ServePartial || p == ServeAllAtOnce
}
