package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/carzavenue/backend/internal/ledger"
	"github.com/carzavenue/backend/internal/paymentconfig"
	pkgAuth "github.com/carzavenue/backend/pkg/auth"
	"github.com/carzavenue/backend/pkg/config"
	"github.com/carzavenue/backend/pkg/db"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	"github.com/carzavenue/backend/pkg/metrics"
	"github.com/carzavenue/backend/pkg/migrate"
	"github.com/carzavenue/backend/pkg/outbox"
	"github.com/carzavenue/backend/pkg/redis"
)

type testServer struct {
	handler http.Handler
	conn    *gorm.DB
	cfg     *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := migrate.AutoMigrateModels(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	redisClient := redis.NewFromClient(raw)

	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "carzavenue"},
		Ledger: config.LedgerConfig{
			DefaultCurrency:      "USD",
			PackageUnitPrice:     decimal.NewFromInt(1),
			AllowNegativeBalance: true,
			LockRetries:          3,
			LockRetryBackoff:     time.Millisecond,
			LockTimeout:          time.Second,
		},
	}

	dbClient := db.NewFromGorm(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)
	reg := prometheus.NewRegistry()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		DB:      dbClient,
		Outbox:  outboxSvc,
		Config:  cfg.Ledger,
		Metrics: metrics.NewLedgerMetrics(reg),
	})
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	charger, err := ledger.NewPackageCharger(ledgerSvc, cfg.Ledger)
	if err != nil {
		t.Fatalf("package charger: %v", err)
	}
	paymentSvc, err := paymentconfig.NewService(paymentconfig.ServiceParams{
		Repo:     paymentconfig.NewRepository(conn),
		DB:       dbClient,
		Outbox:   outboxSvc,
		Cache:    redisClient,
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("payment config service: %v", err)
	}

	handler := NewRouter(cfg, nil, dbClient, redisClient, ledgerSvc, charger, paymentSvc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &testServer{handler: handler, conn: conn, cfg: cfg}
}

func (s *testServer) token(t *testing.T, userID int64, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, idemKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) countEntries(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := s.conn.Model(&models.LedgerEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return count
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	srv := newTestServer(t)

	if resp := srv.do(t, http.MethodGet, "/health/live", "", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodGet, "/health/ready", "", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	resp := srv.do(t, http.MethodGet, "/metrics", "", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestLedgerRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/accounts", "/api/v1/ledger", "/api/admin/v1/users/42/accounts", "/api/admin/v1/payment-config"} {
		if resp := srv.do(t, http.MethodGet, path, "", "", ""); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	srv := newTestServer(t)
	user := srv.token(t, 42, enums.UserRoleUser)

	if resp := srv.do(t, http.MethodGet, "/api/admin/v1/users/42/ledger", user, "", ""); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if resp := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/charges", user, "k", `{"amount":"1"}`); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if srv.countEntries(t) != 0 {
		t.Fatalf("expected no entries")
	}
}

func TestChargeFlowIsIdempotentEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, 7, enums.UserRoleAdmin)
	user := srv.token(t, 42, enums.UserRoleUser)
	body := `{"amount":"2.00","referenceType":"listing","referenceId":"100"}`

	first := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/charges", admin, "listing-100", body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", first.Code, first.Body.String())
	}
	replay := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/charges", admin, "listing-100", body)
	if replay.Code != http.StatusOK {
		t.Fatalf("expected replay 200 got %d", replay.Code)
	}
	if replay.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay body")
	}
	if srv.countEntries(t) != 1 {
		t.Fatalf("expected 1 entry got %d", srv.countEntries(t))
	}

	reused := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/charges", admin, "listing-100", `{"amount":"5.00"}`)
	if reused.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", reused.Code)
	}

	credit := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/credits", admin, "topup-1", `{"amount":"10","type":"TOPUP"}`)
	if credit.Code != http.StatusOK {
		t.Fatalf("expected credit 200 got %d: %s", credit.Code, credit.Body.String())
	}

	accounts := srv.do(t, http.MethodGet, "/api/v1/accounts", user, "", "")
	if accounts.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", accounts.Code)
	}
	var accountEnvelope struct {
		Data []ledger.AccountView `json:"data"`
	}
	if err := json.NewDecoder(accounts.Body).Decode(&accountEnvelope); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if len(accountEnvelope.Data) != 1 || !accountEnvelope.Data[0].AvailableBalance.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("unexpected accounts %+v", accountEnvelope.Data)
	}

	history := srv.do(t, http.MethodGet, "/api/v1/ledger?direction=DEBIT", user, "", "")
	if history.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", history.Code)
	}
	var ledgerEnvelope struct {
		Data ledger.LedgerPage `json:"data"`
	}
	if err := json.NewDecoder(history.Body).Decode(&ledgerEnvelope); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	if len(ledgerEnvelope.Data.Items) != 1 || ledgerEnvelope.Data.Items[0].IdempotencyKey != "listing-100" {
		t.Fatalf("unexpected history %+v", ledgerEnvelope.Data.Items)
	}
}

func TestPaymentConfigRoutes(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, 7, enums.UserRoleAdmin)
	administrator := srv.token(t, 1, enums.UserRoleAdministrator)

	read := srv.do(t, http.MethodGet, "/api/admin/v1/payment-config", admin, "", "")
	if read.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", read.Code)
	}

	body := `{"apiUrl":"https://pay.example.com","testKey":"t","liveKey":"l","mode":"LIVE"}`
	if resp := srv.do(t, http.MethodPut, "/api/admin/v1/payment-config", admin, "cfg-1", body); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for ADMIN got %d", resp.Code)
	}

	updated := srv.do(t, http.MethodPut, "/api/admin/v1/payment-config", administrator, "cfg-2", body)
	if updated.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", updated.Code, updated.Body.String())
	}
	var envelope struct {
		Data paymentconfig.View `json:"data"`
	}
	if err := json.NewDecoder(updated.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if envelope.Data.Mode != enums.PaymentModeLive || envelope.Data.ActiveKey() != "l" {
		t.Fatalf("unexpected config %+v", envelope.Data)
	}
}

func TestPackageChargeRouteChargesOncePerPackageSet(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, 7, enums.UserRoleAdmin)

	first := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/package-charges", admin, "", `{"listingId":100,"packages":["QUICK_FILTER","ECONOM"]}`)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", first.Code, first.Body.String())
	}
	second := srv.do(t, http.MethodPost, "/api/admin/v1/users/42/package-charges", admin, "", `{"listingId":100,"packages":["ECONOM","QUICK_FILTER"]}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", second.Code)
	}

	var a, b struct {
		Data ledger.LedgerEntryView `json:"data"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if a.Data.ID != b.Data.ID {
		t.Fatalf("expected the same entry, got %s and %s", a.Data.ID, b.Data.ID)
	}
	if a.Data.IdempotencyKey != "100:packages:2:403629155" {
		t.Fatalf("unexpected key %s", a.Data.IdempotencyKey)
	}
	if srv.countEntries(t) != 1 {
		t.Fatalf("expected 1 entry got %d", srv.countEntries(t))
	}
}
