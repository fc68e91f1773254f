// Package crm holds the restaurant-relationship domain: restaurants, staff
// contacts, sales interactions, orders, call plans and derived performance
// metrics.
package crm

import (
	"fmt"
	"strings"
	"time"
)

// RestaurantStatus tracks where a restaurant sits in the sales funnel.
type RestaurantStatus string

const (
	StatusNew        RestaurantStatus = "New"
	StatusContacted  RestaurantStatus = "Contacted"
	StatusInProgress RestaurantStatus = "In Progress"
	StatusConverted  RestaurantStatus = "Converted"
	StatusClosed     RestaurantStatus = "Closed"
)

// ParseRestaurantStatus validates a funnel status value.
func ParseRestaurantStatus(s string) (RestaurantStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return StatusNew, nil
	case "contacted":
		return StatusContacted, nil
	case "in progress":
		return StatusInProgress, nil
	case "converted":
		return StatusConverted, nil
	case "closed":
		return StatusClosed, nil
	default:
		return "", fmt.Errorf("unknown restaurant status %q", s)
	}
}

// Restaurant is an organizational unit staff contacts belong to.
type Restaurant struct {
	ID        string           `json:"restaurant_id"`
	Name      string           `json:"name"`
	Address   string           `json:"address"`
	Phone     string           `json:"phone"`
	Email     string           `json:"email"`
	Status    RestaurantStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// InteractionType classifies a sales touchpoint.
type InteractionType string

const (
	InteractionEmail   InteractionType = "Email"
	InteractionCall    InteractionType = "Call"
	InteractionMeeting InteractionType = "Meeting"
	InteractionOrder   InteractionType = "Order"
	InteractionOther   InteractionType = "Other"
)

// ParseInteractionType validates an interaction type value.
func ParseInteractionType(s string) (InteractionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return InteractionEmail, nil
	case "call":
		return InteractionCall, nil
	case "meeting":
		return InteractionMeeting, nil
	case "order":
		return InteractionOrder, nil
	case "other":
		return InteractionOther, nil
	default:
		return "", fmt.Errorf("unknown interaction type %q", s)
	}
}

// Interaction records one touchpoint between a contact and a restaurant.
type Interaction struct {
	ID           string          `json:"interaction_id"`
	UserID       string          `json:"user_id"`
	RestaurantID string          `json:"restaurant_id"`
	Type         InteractionType `json:"interaction_type"`
	OccurredAt   time.Time       `json:"interaction_date"`
	Notes        string          `json:"notes,omitempty"`
}

// OrderStatus tracks order fulfilment.
type OrderStatus string

const (
	OrderNew       OrderStatus = "New"
	OrderConfirmed OrderStatus = "Confirmed"
	OrderPreparing OrderStatus = "Preparing"
	OrderReady     OrderStatus = "Ready"
	OrderDelivered OrderStatus = "Delivered"
	OrderCanceled  OrderStatus = "Canceled"
)

// ParseOrderStatus validates an order status value.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return OrderNew, nil
	case "confirmed":
		return OrderConfirmed, nil
	case "preparing":
		return OrderPreparing, nil
	case "ready":
		return OrderReady, nil
	case "delivered":
		return OrderDelivered, nil
	case "canceled":
		return OrderCanceled, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

// Order is a sales order placed through a contact. Amount is in minor
// currency units.
type Order struct {
	ID            string      `json:"order_id"`
	RestaurantID  string      `json:"restaurant_id"`
	UserID        string      `json:"user_id"`
	InteractionID string      `json:"interaction_id"`
	Status        OrderStatus `json:"status"`
	Amount        int64       `json:"amount"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// CallPlan schedules recurring outreach to a restaurant.
type CallPlan struct {
	ID            string     `json:"call_plan_id"`
	RestaurantID  string     `json:"restaurant_id"`
	UserID        string     `json:"user_id"`
	FrequencyDays int        `json:"frequency_days"`
	LastCallDate  *time.Time `json:"last_call_date,omitempty"`
	NextCallDate  time.Time  `json:"next_call_date"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PerformanceMetric is a derived per-restaurant aggregate over a period.
// OrderFrequency is the average number of days between orders.
type PerformanceMetric struct {
	ID                string    `json:"metric_id"`
	RestaurantID      string    `json:"restaurant_id"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	TotalOrders       int       `json:"total_orders"`
	TotalAmount       int64     `json:"total_amount"`
	AverageOrderValue float64   `json:"average_order_value"`
	OrderFrequency    float64   `json:"order_frequency"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
