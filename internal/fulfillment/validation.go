package fulfillment

import (
	"strings"

	"github.com/google/uuid"
)

func ValidateOrderCreate(req OrderCreateRequest) []string {
	var errors []string

	if req.StaffID == uuid.Nil {
		errors = append(errors, "staff_id is required")
	}

	if req.ServePolicy != "" && !ServePolicy(req.ServePolicy).Valid() {
		errors = append(errors, "invalid serve_policy")
	}

	if len(req.CustomerLabel) > 120 {
		errors = append(errors, "customer_label too long")
	}

	return errors
}

func ValidateOrderItemCreate(req OrderItemCreateRequest) []string {
	var errors []string

	if req.MenuItemID == uuid.Nil {
		errors = append(errors, "menu_item_id is required")
	}

	if req.Quantity <= 0 {
		errors = append(errors, "quantity must be greater than 0")
	}

	return errors
}

func ValidateStatusChange(status string) []string {
	var errors []string

	if strings.TrimSpace(status) == "" {
		errors = append(errors, "status is required")
	}

	return errors
}
