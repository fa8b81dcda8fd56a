package kds

import (
	"time"
)

// Heat is the four-level urgency classification of an order on the board.
type Heat string

const (
	HeatGreen  Heat = "green"
	HeatYellow Heat = "yellow"
	HeatOrange Heat = "orange"
	HeatRed    Heat = "red"
)

// Column is the workflow column an order card is displayed in.
type Column string

const (
	ColumnPending   Column = "pending"
	ColumnPreparing Column = "preparing"
	ColumnReady     Column = "ready"
)

const (
	budgetFactor = 1.2
	minBudget    = 5 * time.Minute
)

// CardItem is one line of an order card.
type CardItem struct {
	ID          string     `json:"id"`
	MenuItemID  string     `json:"menu_item_id"`
	Name        string     `json:"name,omitempty"`
	Quantity    int        `json:"quantity"`
	Notes       string     `json:"notes,omitempty"`
	Status      string     `json:"status"`
	PrepMinutes int        `json:"prep_minutes,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OrderCard is a display-ready projection of one open order.
type OrderCard struct {
	OrderID        string     `json:"order_id"`
	TableLabel     string     `json:"table_label,omitempty"`
	CustomerLabel  string     `json:"customer_label,omitempty"`
	ServePolicy    string     `json:"serve_policy"`
	Column         Column     `json:"column"`
	Heat           Heat       `json:"heat"`
	Blocking       bool       `json:"blocking"`
	Pulse          bool       `json:"pulse"`
	LastProgressAt time.Time  `json:"last_progress_at"`
	BudgetMillis   int64      `json:"budget_millis"`
	ElapsedMillis  int64      `json:"elapsed_millis"`
	PlacedAt       time.Time  `json:"placed_at"`
	Items          []CardItem `json:"items"`
}

// KitchenView is a read-only snapshot of all open orders, grouped by column.
type KitchenView struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Pending     []OrderCard `json:"pending"`
	Preparing   []OrderCard `json:"preparing"`
	Ready       []OrderCard `json:"ready"`
}

// lastProgressAt is the freshest evidence of kitchen progress on an order:
// the latest completion if any item finished, else the earliest start if any
// item was picked up, else the order's placement time.
func lastProgressAt(items []ItemSnapshot, placedAt time.Time) time.Time {
	var latestCompleted *time.Time
	var earliestStarted *time.Time

	for i := range items {
		item := &items[i]
		if item.CompletedAt != nil {
			if latestCompleted == nil || item.CompletedAt.After(*latestCompleted) {
				latestCompleted = item.CompletedAt
			}
		}
		if item.StartedAt != nil {
			if earliestStarted == nil || item.StartedAt.Before(*earliestStarted) {
				earliestStarted = item.StartedAt
			}
		}
	}

	if latestCompleted != nil {
		return *latestCompleted
	}
	if earliestStarted != nil {
		return *earliestStarted
	}
	return placedAt
}

// budgetFor converts the summed expected preparation minutes into the time
// budget used for heat scoring. The 5-minute floor is authoritative, also for
// items the catalog knows no preparation time for.
func budgetFor(items []ItemSnapshot) time.Duration {
	totalMinutes := 0
	for i := range items {
		if items[i].Status == statusCancelled {
			continue
		}
		totalMinutes += items[i].PrepMinutes
	}

	budget := time.Duration(float64(totalMinutes) * budgetFactor * float64(time.Minute))
	if budget < minBudget {
		budget = minBudget
	}
	return budget
}

// heatFor classifies elapsed time against the budget.
func heatFor(now, lastProgress time.Time, budget time.Duration) Heat {
	if budget <= 0 {
		return HeatRed
	}
	ratio := float64(now.Sub(lastProgress)) / float64(budget)
	switch {
	case ratio < 0.5:
		return HeatGreen
	case ratio < 0.8:
		return HeatYellow
	case ratio < 1.0:
		return HeatOrange
	default:
		return HeatRed
	}
}

// blockingFor reports whether an all-at-once order is withholding finished
// plates. The mixture is only "strict" once the kitchen has engaged every
// remaining item: a line still pending means the hold has not started yet.
func blockingFor(policy string, items []ItemSnapshot) bool {
	if policy != policyAllAtOnce {
		return false
	}

	hasReady := false
	hasPreparing := false
	hasPending := false
	for i := range items {
		switch items[i].Status {
		case statusReady:
			hasReady = true
		case statusPreparing:
			hasPreparing = true
		case statusPending:
			hasPending = true
		}
	}

	return hasReady && hasPreparing && !hasPending
}

// columnFor places the card by the same derivation logic the engine uses for
// order status, but evaluated over the raw item snapshots so the board
// reflects the freshest data even before persistence catches up.
func columnFor(policy string, items []ItemSnapshot) Column {
	anyReady := false
	anyPreparing := false
	allReady := true
	activeCount := 0

	for i := range items {
		status := items[i].Status
		if status == statusCancelled || status == statusServed {
			continue
		}
		activeCount++
		switch status {
		case statusReady:
			anyReady = true
		case statusPreparing:
			anyPreparing = true
			allReady = false
		default:
			allReady = false
		}
	}

	if activeCount == 0 {
		return ColumnPending
	}

	if policy == policyAllAtOnce {
		if allReady {
			return ColumnReady
		}
		if anyReady || anyPreparing {
			return ColumnPreparing
		}
		return ColumnPending
	}

	if anyReady {
		return ColumnReady
	}
	if anyPreparing {
		return ColumnPreparing
	}
	return ColumnPending
}

// BuildCard projects one open order into its display card.
func BuildCard(order OrderSnapshot, items []ItemSnapshot, now time.Time) OrderCard {
	progress := lastProgressAt(items, order.PlacedAt)
	budget := budgetFor(items)
	heat := heatFor(now, progress, budget)
	blocking := blockingFor(order.ServePolicy, items)

	card := OrderCard{
		OrderID:        order.ID,
		TableLabel:     order.TableLabel,
		CustomerLabel:  order.CustomerLabel,
		ServePolicy:    order.ServePolicy,
		Column:         columnFor(order.ServePolicy, items),
		Heat:           heat,
		Blocking:       blocking,
		Pulse:          heat == HeatRed || blocking,
		LastProgressAt: progress,
		BudgetMillis:   budget.Milliseconds(),
		ElapsedMillis:  now.Sub(progress).Milliseconds(),
		PlacedAt:       order.PlacedAt,
		Items:          make([]CardItem, 0, len(items)),
	}

	for i := range items {
		item := &items[i]
		card.Items = append(card.Items, CardItem{
			ID:          item.ID,
			MenuItemID:  item.MenuItemID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			Status:      item.Status,
			PrepMinutes: item.PrepMinutes,
			StartedAt:   item.StartedAt,
			CompletedAt: item.CompletedAt,
		})
	}

	return card
}
