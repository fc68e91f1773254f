package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"forkline.io/internal/audit"
	"forkline.io/internal/auth"
	"forkline.io/internal/config"
	"forkline.io/internal/crm"
	"forkline.io/internal/fault"
	"forkline.io/internal/store"
)

type stubUsers struct {
	byEmail map[string]*auth.User
}

func (s stubUsers) ByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, fault.NotFoundf("user %s not found", email)
	}
	return u, nil
}

type testEnv struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
	tokens  *auth.JWTStrategy
	users   stubUsers
}

func mustUser(t *testing.T, id, email string, role auth.Role, password string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{ID: id, Name: id, Email: email, Role: role, PasswordHash: hash}
}

func newTestEnv(t *testing.T, users ...*auth.User) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	byEmail := make(map[string]*auth.User)
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u
	}
	src := stubUsers{byEmail: byEmail}

	tokens, err := auth.NewJWTStrategy("handlers-test-secret", "forkline", 30*time.Minute)
	if err != nil {
		t.Fatalf("jwt strategy: %v", err)
	}
	ctrl, err := auth.NewController(auth.NewDatabaseAuthenticator(src), tokens, src, zap.NewNop())
	if err != nil {
		t.Fatalf("controller: %v", err)
	}

	st := store.New(db, zap.NewNop())
	svc := crm.NewService(st, nil, zap.NewNop())

	cfg := config.Defaults()
	cfg.Auth.Secret = "handlers-test-secret"

	api := New(svc, ctrl, audit.New(zap.NewNop()), ReadyProbe{DB: st}, cfg, "test", zap.NewNop())
	t.Cleanup(api.Close)
	return &testEnv{handler: api.Handler(), mock: mock, tokens: tokens, users: src}
}

func (e *testEnv) bearer(t *testing.T, u *auth.User) string {
	t.Helper()
	token, err := e.tokens.CreateToken(u)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rid := rec.Header().Get("X-Request-Id"); rid == "" {
		t.Fatal("expected request id header")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing security header, got %q", got)
	}
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRouteWithGarbageToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := env.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "correct horse")
	env := newTestEnv(t, staff)

	form := url.Values{"username": {"asha@example.com"}, "password": {"correct horse"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var token auth.Token
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if token.AccessToken == "" || token.TokenType != "bearer" {
		t.Fatalf("unexpected token payload: %+v", token)
	}

	// the issued token opens protected routes
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "phone", "email", "status", "created_at", "updated_at"}))
	env.mock.ExpectCommit()

	listReq := httptest.NewRequest(http.MethodGet, "/v1/restaurants", nil)
	listReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
	listRec := env.do(listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", listRec.Code, listRec.Body.String())
	}
}

func TestLoginRejectsBadPasswordWithGenericMessage(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "correct horse")
	env := newTestEnv(t, staff)

	for _, form := range []url.Values{
		{"username": {"asha@example.com"}, "password": {"wrong"}},
		{"username": {"nobody@example.com"}, "password": {"correct horse"}},
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := env.do(req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != "incorrect username or password" {
			t.Fatalf("message must not reveal which credential failed: %v", body["error"])
		}
	}
}

func TestStaffCannotDeleteRestaurant(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	req := httptest.NewRequest(http.MethodDelete, "/v1/restaurants/r1", nil)
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestManagerCanDeleteRestaurant(t *testing.T) {
	mgr := mustUser(t, "u2", "omar@example.com", auth.RoleManager, "pw")
	env := newTestEnv(t, mgr)

	env.mock.ExpectBegin()
	env.mock.ExpectExec("delete from restaurants").WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodDelete, "/v1/restaurants/r1", nil)
	req.Header.Set("Authorization", env.bearer(t, mgr))
	rec := env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOwnerCannotPlaceOrder(t *testing.T) {
	owner := mustUser(t, "u3", "owner@example.com", auth.RoleOwner, "pw")
	env := newTestEnv(t, owner)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"restaurant_id":"r1","amount":100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, owner))
	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestPlaceOrderWritesBothRowsAndReturns201(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "phone", "email", "status", "created_at", "updated_at"}).
			AddRow("r1", "Blue Karahi", "", "", "", "New", time.Now(), time.Now()))
	env.mock.ExpectQuery("insert into interactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "restaurant_id", "type", "occurred_at", "notes"}).
			AddRow("i1", "u1", "r1", "Order", time.Now(), ""))
	env.mock.ExpectQuery("insert into orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "user_id", "interaction_id", "status", "amount", "created_at", "updated_at"}).
			AddRow("o1", "r1", "u1", "i1", "New", 2500, time.Now(), time.Now()))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"restaurant_id":"r1","amount":2500}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var order crm.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.InteractionID != "i1" {
		t.Fatalf("order not linked to interaction: %+v", order)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDatabaseFailureRollsBackAndMasksError(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "phone", "email", "status", "created_at", "updated_at"}).
			AddRow("r1", "Blue Karahi", "", "", "", "New", time.Now(), time.Now()))
	env.mock.ExpectQuery("insert into interactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "restaurant_id", "type", "occurred_at", "notes"}).
			AddRow("i1", "u1", "r1", "Order", time.Now(), ""))
	env.mock.ExpectQuery("insert into orders").WillReturnError(context.DeadlineExceeded)
	env.mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"restaurant_id":"r1","amount":2500}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "deadline") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestValidationErrorReturns422(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"restaurant_id":"r1","amount":-5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPlaceOrderUnknownRestaurantReturns404(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, name").WillReturnError(sql.ErrNoRows)
	env.mock.ExpectRollback()

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"restaurant_id":"ghost","amount":2500}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestManagerCanUpdateContactRole(t *testing.T) {
	mgr := mustUser(t, "u2", "omar@example.com", auth.RoleManager, "pw")
	env := newTestEnv(t, mgr)

	now := time.Now()
	userCols := []string{"id", "name", "email", "phone", "role", "password_hash", "restaurant_id", "created_at", "updated_at"}
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, name, email").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "Asha", "asha@example.com", "", "Staff", "$2a$10$stub", nil, now, now))
	env.mock.ExpectQuery("update users").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "Asha", "asha@example.com", "", "Manager", "$2a$10$stub", nil, now, now))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPatch, "/v1/contacts/u1", strings.NewReader(`{"role":"Manager"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, mgr))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var u auth.User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Role != auth.RoleManager {
		t.Fatalf("expected Manager, got %q", u.Role)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStaffCannotUpdateContact(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	req := httptest.NewRequest(http.MethodPatch, "/v1/contacts/u1", strings.NewReader(`{"role":"Admin"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetInteractionByID(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, user_id, restaurant_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "restaurant_id", "type", "occurred_at", "notes"}).
			AddRow("i1", "u1", "r1", "Call", time.Now(), "spoke to the chef"))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/v1/interactions/i1", nil)
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var in crm.Interaction
	if err := json.Unmarshal(rec.Body.Bytes(), &in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.ID != "i1" || in.Type != crm.InteractionCall {
		t.Fatalf("unexpected interaction: %+v", in)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListContactInteractions(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, user_id, restaurant_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "restaurant_id", "type", "occurred_at", "notes"}).
			AddRow("i1", "u1", "r1", "Email", time.Now(), "").
			AddRow("i2", "u1", "r2", "Call", time.Now(), ""))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts/u1/interactions", nil)
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []crm.Interaction `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 interactions, got %d", len(body.Items))
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetCallPlanByID(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	now := time.Now()
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, restaurant_id, user_id, frequency_days").
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "user_id", "frequency_days", "last_call_date", "next_call_date", "notes", "created_at", "updated_at"}).
			AddRow("p1", "r1", "u1", 14, nil, now.AddDate(0, 0, 14), "", now, now))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/v1/call-plans/p1", nil)
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var plan crm.CallPlan
	if err := json.Unmarshal(rec.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plan.ID != "p1" || plan.FrequencyDays != 14 {
		t.Fatalf("unexpected call plan: %+v", plan)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPerformanceHistory(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	now := time.Now()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery("select id, restaurant_id, period_start").
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "period_start", "period_end", "total_orders", "total_amount", "average_order_value", "order_frequency", "created_at", "updated_at"}).
			AddRow("m2", "r1", start.AddDate(0, 1, 0), start.AddDate(0, 2, 0), 2, 5000, 2500.0, 15.5, now, now).
			AddRow("m1", "r1", start, start.AddDate(0, 1, 0), 4, 10000, 2500.0, 7.75, now, now))
	env.mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/v1/restaurants/r1/performance/history", nil)
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []crm.PerformanceMetric `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 || body.Items[0].ID != "m2" {
		t.Fatalf("unexpected history: %+v", body.Items)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenOfDeletedUserIsRejected(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)
	token := env.bearer(t, staff)

	delete(env.users.byEmail, "asha@example.com")

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", token)
	rec := env.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMeNeverReturnsPasswordHash(t *testing.T) {
	staff := mustUser(t, "u1", "asha@example.com", auth.RoleStaff, "pw")
	env := newTestEnv(t, staff)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", env.bearer(t, staff))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "password") || strings.Contains(body, "$2a$") {
		t.Fatalf("password material leaked: %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/restaurants", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := env.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
}
