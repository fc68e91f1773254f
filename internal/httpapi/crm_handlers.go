package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"forkline.io/internal/auth"
	"forkline.io/internal/crm"
)

type restaurantRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Status  string `json:"status"`
}

type restaurantPatch struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Status  *string `json:"status"`
}

type contactPatch struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Role         *string `json:"role"`
	RestaurantID *string `json:"restaurant_id"`
	Password     *string `json:"password"`
}

type interactionRequest struct {
	RestaurantID string    `json:"restaurant_id"`
	Type         string    `json:"interaction_type"`
	OccurredAt   time.Time `json:"interaction_date"`
	Notes        string    `json:"notes"`
}

type orderRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Amount       int64  `json:"amount"`
	Notes        string `json:"notes"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type callPlanRequest struct {
	RestaurantID  string     `json:"restaurant_id"`
	FrequencyDays int        `json:"frequency_days"`
	NextCallDate  *time.Time `json:"next_call_date"`
	Notes         string     `json:"notes"`
}

func (a *API) createRestaurant(w http.ResponseWriter, r *http.Request) {
	var req restaurantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res := &crm.Restaurant{
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
		Email:   req.Email,
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := crm.ParseRestaurantStatus(req.Status)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res.Status = status
	}
	created, err := a.svc.CreateRestaurant(r.Context(), res)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.restaurant.created", zap.String("restaurant_id", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listRestaurants(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.ListRestaurants(r.Context())
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) getRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.GetRestaurant(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) updateRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	var req restaurantPatch
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := crm.RestaurantUpdate{Name: req.Name, Address: req.Address, Phone: req.Phone, Email: req.Email}
	if req.Status != nil {
		status, err := crm.ParseRestaurantStatus(*req.Status)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd.Status = &status
	}
	res, err := a.svc.UpdateRestaurant(r.Context(), id, upd)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.restaurant.updated", zap.String("restaurant_id", id))
	writeJSON(w, http.StatusOK, res)
}

func (a *API) deleteRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	if err := a.svc.DeleteRestaurant(r.Context(), id); err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.restaurant.deleted", zap.String("restaurant_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createContact(w http.ResponseWriter, r *http.Request) {
	a.register(w, r)
}

func (a *API) getContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	u, err := a.svc.GetContact(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	var req contactPatch
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := crm.ContactUpdate{Name: req.Name, Email: req.Email, Phone: req.Phone, RestaurantID: req.RestaurantID}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd.Role = &role
	}
	var password string
	if req.Password != nil {
		password = *req.Password
	}
	u, err := a.svc.UpdateContact(r.Context(), id, upd, password)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.contact.updated", zap.String("user_id", id))
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	if err := a.svc.DeleteContact(r.Context(), id); err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.contact.deleted", zap.String("user_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listContacts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.ListContacts(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) listAllContacts(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.ListAllContacts(r.Context())
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) listContactInteractions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.ListContactInteractions(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) recordInteraction(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	var req interactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := crm.ParseInteractionType(req.Type)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := &crm.Interaction{
		UserID:       user.ID,
		RestaurantID: req.RestaurantID,
		Type:         kind,
		OccurredAt:   req.OccurredAt,
		Notes:        req.Notes,
	}
	created, err := a.svc.RecordInteraction(r.Context(), in)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) getInteraction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	in, err := a.svc.GetInteraction(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (a *API) listInteractions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.ListInteractions(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	order, err := a.svc.PlaceOrder(r.Context(), crm.NewOrder{
		RestaurantID: req.RestaurantID,
		UserID:       user.ID,
		Amount:       req.Amount,
		Notes:        req.Notes,
	})
	if err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.order.placed", zap.String("order_id", order.ID), zap.Int64("amount", order.Amount))
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	order, err := a.svc.GetOrder(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	var req orderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := crm.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	order, err := a.svc.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.order.status", zap.String("order_id", id), zap.String("status", string(status)))
	writeJSON(w, http.StatusOK, order)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.ListOrders(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) createCallPlan(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	var req callPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	plan := &crm.CallPlan{
		RestaurantID:  req.RestaurantID,
		UserID:        user.ID,
		FrequencyDays: req.FrequencyDays,
		Notes:         req.Notes,
	}
	if req.NextCallDate != nil {
		plan.NextCallDate = *req.NextCallDate
	}
	created, err := a.svc.CreateCallPlan(r.Context(), plan)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) dueCallPlans(w http.ResponseWriter, r *http.Request) {
	by := time.Now().UTC()
	if raw := r.URL.Query().Get("by"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "by must be RFC 3339")
			return
		}
		by = parsed
	}
	res, err := a.svc.DueCallPlans(r.Context(), by)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) getCallPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	plan, err := a.svc.GetCallPlan(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) deleteCallPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	if err := a.svc.DeleteCallPlan(r.Context(), id); err != nil {
		handleFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listCallPlans(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.ListCallPlans(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) performance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	start, end, err := periodFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.svc.Performance(r.Context(), id, start, end)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) performanceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	res, err := a.svc.PerformanceHistory(r.Context(), id)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": res})
}

func (a *API) recomputePerformance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	start, end, err := periodFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.svc.RecomputePerformance(r.Context(), id, start, end)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	a.auditor.Event(r.Context(), "crm.performance.recomputed", zap.String("restaurant_id", id))
	writeJSON(w, http.StatusOK, m)
}

// periodFromQuery parses period_start/period_end, defaulting to the
// current calendar month.
func periodFromQuery(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("period_start"), q.Get("period_end")
	if rawStart == "" && rawEnd == "" {
		now := time.Now().UTC()
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("period_start must be RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("period_end must be RFC 3339")
	}
	return start, end, nil
}
