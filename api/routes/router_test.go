package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/marketplace-backend/internal/webhooks/stripe"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/redis/redistest"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrders struct {
	creates int
}

func (s *stubOrders) Create(context.Context, orders.CreateOrderInput) (*orders.PaymentIntentHandle, error) {
	s.creates++
	return &orders.PaymentIntentHandle{OrderID: uuid.New(), PaymentIntentID: "pi_1", ClientSecret: "secret", Currency: "usd"}, nil
}

func (s *stubOrders) HandlePaymentConfirmed(context.Context, uuid.UUID) error {
	return nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, in orders.UpdateStatusInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: enums.OrderStatusShipped}, nil
}

func (s *stubOrders) List(context.Context, orders.ListOrdersInput) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.OrderSummary{}}, nil
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID) (*orders.OrderDetail, error) {
	return &orders.OrderDetail{OrderSummary: orders.OrderSummary{ID: id}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "marketplace", ExpirationMinutes: 10},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *stubOrders) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.NewOrderMetrics(reg).IncCreated()
	svc := &stubOrders{}
	store := redistest.NewMemory()
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: svc})
	if err != nil {
		t.Fatalf("webhook service: %v", err)
	}
	guard, err := stripewebhook.NewReplayGuard(store, time.Hour, "stripe-webhook")
	if err != nil {
		t.Fatalf("webhook guard: %v", err)
	}
	return NewRouter(testConfig(), nil, Dependencies{
		DB:                   stubPinger{},
		Redis:                stubPinger{},
		IdempotencyStore:     store,
		Gatherer:             reg,
		Orders:               svc,
		StripeWebhookService: webhookSvc,
		StripeWebhookGuard:   guard,
	}), svc
}

func token(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	signed, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + signed
}

func do(router http.Handler, method, path, auth string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		if rec := do(router, http.MethodGet, path, "", nil, nil); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}

	rec := do(router, http.MethodGet, "/metrics", "", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "orders_created_total") {
		t.Fatalf("expected order metrics exposed, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestOrderRoutesEnforceRoles(t *testing.T) {
	router, _ := newTestRouter(t)
	orderID := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		role   enums.ActorRole
		body   string
		want   int
	}{
		{"list unauthenticated", http.MethodGet, "/api/v1/orders", "", "", http.StatusUnauthorized},
		{"list as customer", http.MethodGet, "/api/v1/orders", enums.ActorRoleCustomer, "", http.StatusForbidden},
		{"list as delivery", http.MethodGet, "/api/v1/orders", enums.ActorRoleDelivery, "", http.StatusOK},
		{"detail as staff", http.MethodGet, "/api/v1/orders/" + orderID, enums.ActorRoleStaff, "", http.StatusOK},
		{"status as customer", http.MethodPatch, "/api/v1/orders/" + orderID + "/status", enums.ActorRoleCustomer, `{"status":"shipped"}`, http.StatusForbidden},
		{"my orders as delivery", http.MethodGet, "/api/v1/customers/me/orders", enums.ActorRoleDelivery, "", http.StatusForbidden},
		{"my orders as customer", http.MethodGet, "/api/v1/customers/me/orders", enums.ActorRoleCustomer, "", http.StatusOK},
		{"create as delivery", http.MethodPost, "/api/v1/orders", enums.ActorRoleDelivery, `{}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		auth := ""
		if tt.role != "" {
			auth = token(t, tt.role)
		}
		var body io.Reader
		if tt.body != "" {
			body = strings.NewReader(tt.body)
		}
		rec := do(router, tt.method, tt.path, auth, body, map[string]string{"Idempotency-Key": uuid.NewString()})
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d got %d (%s)", tt.name, tt.want, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateOrderRequiresAndReplaysIdempotencyKey(t *testing.T) {
	router, svc := newTestRouter(t)
	auth := token(t, enums.ActorRoleCustomer)
	body := `{"order_items":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"pickup_address_id":"` + uuid.NewString() + `"}`

	rec := do(router, http.MethodPost, "/api/v1/orders", auth, strings.NewReader(body), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", rec.Code)
	}

	headers := map[string]string{"Idempotency-Key": "checkout-1"}
	first := do(router, http.MethodPost, "/api/v1/orders", auth, strings.NewReader(body), headers)
	second := do(router, http.MethodPost, "/api/v1/orders", auth, strings.NewReader(body), headers)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body")
	}
	if svc.creates != 1 {
		t.Fatalf("expected a single create, got %d", svc.creates)
	}
}

func TestStripeWebhookWithoutSignatureIsAcknowledged(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(router, http.MethodPost, "/api/v1/webhooks/stripe", "", strings.NewReader(`{}`), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"received":false`) {
		t.Fatalf("expected unsigned delivery acknowledged, got %d %s", rec.Code, rec.Body.String())
	}
}
