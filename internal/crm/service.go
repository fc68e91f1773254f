package crm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"forkline.io/internal/auth"
	"forkline.io/internal/fault"
	"forkline.io/internal/store"
)

// Service composes the repositories into the relationship-management
// operations. Public methods open their own transaction scope; internal
// helpers accept a scope so multi-step operations commit atomically.
type Service struct {
	db           *store.DB
	restaurants  RestaurantRepo
	users        UserRepo
	interactions InteractionRepo
	orders       OrderRepo
	callPlans    CallPlanRepo
	metrics      PerformanceRepo
	cache        *MetricsCache
	log          *zap.Logger
}

func NewService(db *store.DB, cache *MetricsCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cache: cache, log: log}
}

// ByEmail resolves a user for authentication. Satisfies auth.UserSource.
func (s *Service) ByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u *auth.User
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		u, err = s.users.FindByEmail(ctx, sc, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// NewContact carries the input for registering a user or restaurant
// contact. Password arrives in clear and is hashed before storage.
type NewContact struct {
	Name         string
	Email        string
	Phone        string
	Password     string
	Role         auth.Role
	RestaurantID string
}

func (s *Service) CreateContact(ctx context.Context, nc NewContact) (*auth.User, error) {
	if strings.TrimSpace(nc.Email) == "" || nc.Password == "" {
		return nil, fault.Validationf("email and password are required")
	}
	if nc.Role == "" {
		nc.Role = auth.RoleStaff
	}
	hash, err := auth.HashPassword(nc.Password)
	if err != nil {
		return nil, fault.Internalf(err)
	}
	u := &auth.User{
		Name:         nc.Name,
		Email:        nc.Email,
		Phone:        nc.Phone,
		Role:         nc.Role,
		PasswordHash: hash,
		RestaurantID: nc.RestaurantID,
	}
	err = s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		if u.RestaurantID != "" {
			if _, err := s.restaurants.Find(ctx, sc, u.RestaurantID); err != nil {
				return err
			}
		}
		return s.users.Create(ctx, sc, u)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("contact created", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// UpdateContact applies a partial profile update. Because tokens are
// re-resolved on every request, a role change here takes effect on the
// principal's very next call.
func (s *Service) UpdateContact(ctx context.Context, id string, upd ContactUpdate, newPassword string) (*auth.User, error) {
	if newPassword != "" {
		hash, err := auth.HashPassword(newPassword)
		if err != nil {
			return nil, fault.Internalf(err)
		}
		upd.PasswordHash = &hash
	}
	var u *auth.User
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		if upd.RestaurantID != nil && *upd.RestaurantID != "" {
			if _, err := s.restaurants.Find(ctx, sc, *upd.RestaurantID); err != nil {
				return err
			}
		}
		var err error
		u, err = s.users.Update(ctx, sc, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("contact updated", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

func (s *Service) GetContact(ctx context.Context, id string) (*auth.User, error) {
	var u *auth.User
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		u, err = s.users.Find(ctx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListAllContacts(ctx context.Context) ([]*auth.User, error) {
	var res []*auth.User
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.users.List(ctx, sc)
		return err
	})
	return res, err
}

func (s *Service) ListContacts(ctx context.Context, restaurantID string) ([]*auth.User, error) {
	var res []*auth.User
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.users.ListByRestaurant(ctx, sc, restaurantID)
		return err
	})
	return res, err
}

func (s *Service) DeleteContact(ctx context.Context, id string) error {
	return s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		return s.users.Delete(ctx, sc, id)
	})
}

func (s *Service) CreateRestaurant(ctx context.Context, r *Restaurant) (*Restaurant, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fault.Validationf("restaurant name is required")
	}
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		return s.restaurants.Create(ctx, sc, r)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("restaurant created", zap.String("restaurant_id", r.ID))
	return r, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id string) (*Restaurant, error) {
	var r *Restaurant
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		r, err = s.restaurants.Find(ctx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ListRestaurants(ctx context.Context) ([]*Restaurant, error) {
	var res []*Restaurant
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.restaurants.List(ctx, sc)
		return err
	})
	return res, err
}

func (s *Service) UpdateRestaurant(ctx context.Context, id string, upd RestaurantUpdate) (*Restaurant, error) {
	var r *Restaurant
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		r, err = s.restaurants.Update(ctx, sc, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) DeleteRestaurant(ctx context.Context, id string) error {
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		return s.restaurants.Delete(ctx, sc, id)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// RecordInteraction stores a touchpoint. A completed call also advances
// the restaurant's call plan; both writes share one transaction.
func (s *Service) RecordInteraction(ctx context.Context, in *Interaction) (*Interaction, error) {
	if in.UserID == "" || in.RestaurantID == "" {
		return nil, fault.Validationf("user_id and restaurant_id are required")
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		if _, err := s.restaurants.Find(ctx, sc, in.RestaurantID); err != nil {
			return err
		}
		if err := s.interactions.Create(ctx, sc, in); err != nil {
			return err
		}
		if in.Type == InteractionCall {
			return s.callPlans.Advance(ctx, sc, in.RestaurantID, in.OccurredAt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) GetInteraction(ctx context.Context, id string) (*Interaction, error) {
	var in *Interaction
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		in, err = s.interactions.Find(ctx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) ListInteractions(ctx context.Context, restaurantID string) ([]*Interaction, error) {
	var res []*Interaction
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.interactions.ListByRestaurant(ctx, sc, restaurantID)
		return err
	})
	return res, err
}

func (s *Service) ListContactInteractions(ctx context.Context, userID string) ([]*Interaction, error) {
	var res []*Interaction
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.interactions.ListByUser(ctx, sc, userID)
		return err
	})
	return res, err
}

// NewOrder carries the input for placing an order.
type NewOrder struct {
	RestaurantID string
	UserID       string
	Amount       int64
	Notes        string
}

// PlaceOrder creates the order together with its Order-type interaction
// in a single transaction. Either both rows land or neither does.
func (s *Service) PlaceOrder(ctx context.Context, no NewOrder) (*Order, error) {
	if no.RestaurantID == "" || no.UserID == "" {
		return nil, fault.Validationf("restaurant_id and user_id are required")
	}
	if no.Amount <= 0 {
		return nil, fault.Validationf("amount must be positive")
	}
	o := &Order{RestaurantID: no.RestaurantID, UserID: no.UserID, Amount: no.Amount}
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		if _, err := s.restaurants.Find(ctx, sc, no.RestaurantID); err != nil {
			return err
		}
		in := &Interaction{
			UserID:       no.UserID,
			RestaurantID: no.RestaurantID,
			Type:         InteractionOrder,
			OccurredAt:   time.Now().UTC(),
			Notes:        no.Notes,
		}
		if err := s.interactions.Create(ctx, sc, in); err != nil {
			return err
		}
		o.InteractionID = in.ID
		return s.orders.Create(ctx, sc, o)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, o.RestaurantID)
	s.log.Info("order placed", zap.String("order_id", o.ID), zap.String("restaurant_id", o.RestaurantID))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o *Order
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		o, err = s.orders.Find(ctx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, restaurantID string) ([]*Order, error) {
	var res []*Order
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.orders.ListByRestaurant(ctx, sc, restaurantID)
		return err
	})
	return res, err
}

// UpdateOrderStatus moves an order through fulfilment. Delivery changes
// the aggregates, so the current month's metrics are recomputed in the
// same transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (*Order, error) {
	var o *Order
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		o, err = s.orders.UpdateStatus(ctx, sc, id, status)
		if err != nil {
			return err
		}
		if status == OrderDelivered {
			start, end := currentMonth(time.Now().UTC())
			return s.recompute(ctx, sc, o.RestaurantID, start, end)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, o.RestaurantID)
	return o, nil
}

// Performance returns the stored metric for a period, serving from the
// cache when possible.
func (s *Service) Performance(ctx context.Context, restaurantID string, start, end time.Time) (*PerformanceMetric, error) {
	if m := s.cache.Get(ctx, restaurantID, start, end); m != nil {
		return m, nil
	}
	var m *PerformanceMetric
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		m, err = s.metrics.Find(ctx, sc, restaurantID, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, m)
	return m, nil
}

// PerformanceHistory lists every stored metric period for a restaurant,
// newest first.
func (s *Service) PerformanceHistory(ctx context.Context, restaurantID string) ([]*PerformanceMetric, error) {
	var res []*PerformanceMetric
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.metrics.ListByRestaurant(ctx, sc, restaurantID)
		return err
	})
	return res, err
}

// RecomputePerformance rebuilds a restaurant's metrics for a period from
// the order history.
func (s *Service) RecomputePerformance(ctx context.Context, restaurantID string, start, end time.Time) (*PerformanceMetric, error) {
	if !end.After(start) {
		return nil, fault.Validationf("period end must be after start")
	}
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		if _, err := s.restaurants.Find(ctx, sc, restaurantID); err != nil {
			return err
		}
		return s.recompute(ctx, sc, restaurantID, start, end)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, restaurantID)
	return s.Performance(ctx, restaurantID, start, end)
}

// recompute aggregates delivered orders and upserts the metric row on
// the caller's scope, so it can join a larger transaction.
func (s *Service) recompute(ctx context.Context, sc *store.Scope, restaurantID string, start, end time.Time) error {
	agg, err := s.orders.AggregateForPeriod(ctx, sc, restaurantID, start, end)
	if err != nil {
		return err
	}
	m := &PerformanceMetric{
		RestaurantID: restaurantID,
		PeriodStart:  start,
		PeriodEnd:    end,
		TotalOrders:  agg.Count,
		TotalAmount:  agg.TotalAmount,
	}
	if agg.Count > 0 {
		m.AverageOrderValue = float64(agg.TotalAmount) / float64(agg.Count)
		m.OrderFrequency = end.Sub(start).Hours() / 24 / float64(agg.Count)
	}
	return s.metrics.Upsert(ctx, sc, m)
}

func (s *Service) CreateCallPlan(ctx context.Context, p *CallPlan) (*CallPlan, error) {
	if p.RestaurantID == "" || p.UserID == "" {
		return nil, fault.Validationf("restaurant_id and user_id are required")
	}
	if p.FrequencyDays <= 0 {
		return nil, fault.Validationf("frequency_days must be positive")
	}
	if p.NextCallDate.IsZero() {
		p.NextCallDate = time.Now().UTC().AddDate(0, 0, p.FrequencyDays)
	}
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		if _, err := s.restaurants.Find(ctx, sc, p.RestaurantID); err != nil {
			return err
		}
		return s.callPlans.Create(ctx, sc, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetCallPlan(ctx context.Context, id string) (*CallPlan, error) {
	var p *CallPlan
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		p, err = s.callPlans.Find(ctx, sc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListCallPlans(ctx context.Context, restaurantID string) ([]*CallPlan, error) {
	var res []*CallPlan
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.callPlans.ListByRestaurant(ctx, sc, restaurantID)
		return err
	})
	return res, err
}

func (s *Service) DueCallPlans(ctx context.Context, by time.Time) ([]*CallPlan, error) {
	var res []*CallPlan
	err := s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		var err error
		res, err = s.callPlans.ListDue(ctx, sc, by)
		return err
	})
	return res, err
}

func (s *Service) DeleteCallPlan(ctx context.Context, id string) error {
	return s.db.InScope(ctx, nil, func(sc *store.Scope) error {
		return s.callPlans.Delete(ctx, sc, id)
	})
}

func currentMonth(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
