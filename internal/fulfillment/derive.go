package fulfillment

// DeriveOrderStatus maps an order's serve policy and full item set (cancelled
// items included) to its aggregate status. It is deterministic and
// side-effect-free so it can be re-run idempotently after every item mutation.
func DeriveOrderStatus(policy ServePolicy, items []*OrderItem) OrderStatus {
	var active []*OrderItem
	for _, item := range items {
		if item.Status != ItemCancelled {
			active = append(active, item)
		}
	}

	if len(items) > 0 && len(active) == 0 {
		return OrderCancelled
	}
	if len(active) == 0 {
		return OrderPlaced
	}

	allServed := true
	allReady := true
	anyReady := false
	anyPreparing := false
	for _, item := range active {
		switch item.Status {
		case ItemServed:
		case ItemReady:
			anyReady = true
		case ItemPreparing:
			anyPreparing = true
		default:
		}
		if item.Status != ItemServed {
			allServed = false
		}
		if item.Status != ItemReady {
			allReady = false
		}
	}

	if allServed {
		return OrderCompleted
	}

	if policy == ServeAllAtOnce {
		if allReady {
			return OrderReady
		}
		if anyReady || anyPreparing {
			return OrderPreparing
		}
		return OrderPlaced
	}

	// Partial service: a single ready item lets the order begin service.
	if anyReady {
		return OrderReady
	}
	if anyPreparing {
		return OrderPreparing
	}
	return OrderPlaced
}
