package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/adapter/http/middleware"
	"delivery-wallet-engine/internal/adapter/provider/momo"
	"delivery-wallet-engine/internal/adapter/storage/memory"
	redisStorage "delivery-wallet-engine/internal/adapter/storage/redis"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the real router, middleware, services, the in-memory wallet
// store and miniredis-backed stores behind an httptest server. MoMo is a local
// stub that hands out payment URLs; callbacks are signed with the real client.

type testApp struct {
	server *httptest.Server
	momo   *momo.Client
	sig    ports.SignatureService
	tokens ports.TokenService
	redis  *miniredis.Miniredis
	nonce  atomic.Int64
}

var testInternal = config.InternalConfig{
	AccessKey: "order-service",
	SecretKey: "order-service-secret",
	MaxSkew:   time.Minute,
	NonceTTL:  5 * time.Minute,
}

var testMoMo = config.MoMoConfig{
	PartnerCode: "MOMOTEST",
	AccessKey:   "momo-access",
	SecretKey:   "momo-secret",
	RedirectURL: "https://app.example/wallet",
	IPNURL:      "https://wallet.example/api/v1/payments/momo/ipn",
	RequestType: "captureWallet",
	Lang:        "vi",
	Timeout:     2 * time.Second,
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderID   string `json:"orderId"`
			RequestID string `json:"requestId"`
			Amount    int64  `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"partnerCode": testMoMo.PartnerCode,
			"orderId":     req.OrderID,
			"requestId":   req.RequestID,
			"amount":      req.Amount,
			"resultCode":  0,
			"message":     "Successful.",
			"payUrl":      "https://test-payment.momo.vn/pay/" + req.OrderID,
		})
	}))
	t.Cleanup(stub.Close)

	log := zerolog.Nop()
	store := memory.NewStore()
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", "delivery-auth")

	momoCfg := testMoMo
	momoCfg.Endpoint = stub.URL
	provider := momo.NewClient(momoCfg, sigSvc, nil, log)

	ledgerCfg := config.LedgerConfig{
		MinDeposit:       10000,
		MaxDeposit:       50000000,
		MinWithdraw:      50000,
		MaxWithdraw:      50000000,
		CallbackCacheTTL: time.Hour,
	}

	wallets := service.NewWalletService(store.Wallets(), log)
	ledger := service.NewLedgerService(store.Transactions(), store.Wallets(), store, ledgerCfg, log)
	escrow := service.NewEscrowService(wallets, store.Wallets(), store.Transactions(), store, log)
	distribution := service.NewDistributionService(wallets, store.Wallets(), store.Transactions(), store, log)
	payments := service.NewPaymentService(wallets, ledger, provider, redisStorage.NewCallbackCache(rdb), time.Hour, log)

	router := SetupRouter(RouterDeps{
		Wallets:        wallets,
		Ledger:         ledger,
		Escrow:         escrow,
		Distribution:   distribution,
		Payments:       payments,
		SigSvc:         sigSvc,
		NonceStore:     redisStorage.NewNonceStore(rdb),
		TokenSvc:       tokenSvc,
		RateLimiter:    redisStorage.NewRateLimitStore(rdb),
		Internal:       testInternal,
		HealthCheckers: []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		MetricsPath:    "/metrics",
		Logger:         log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{server: server, momo: provider, sig: sigSvc, tokens: tokenSvc, redis: mr}
}

func (a *testApp) token(t *testing.T, actor domain.ActorRef) string {
	t.Helper()
	tok, _, err := a.tokens.Generate(actor, time.Hour)
	require.NoError(t, err)
	return tok
}

type apiResult struct {
	Status    int
	Data      json.RawMessage
	ErrorCode string
	Details   map[string]any
}

func (a *testApp) send(t *testing.T, req *http.Request) apiResult {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	res := apiResult{Status: resp.StatusCode}
	if len(raw) > 0 {
		var env struct {
			Data      json.RawMessage `json:"data"`
			ErrorCode string          `json:"error_code"`
			Details   map[string]any  `json:"details"`
		}
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
		res.Data, res.ErrorCode, res.Details = env.Data, env.ErrorCode, env.Details
	}
	return res
}

func (a *testApp) actorCall(t *testing.T, actor domain.ActorRef, method, path string, body any) apiResult {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token(t, actor))
	return a.send(t, req)
}

// signedRequest builds an order-subsystem request; nonce "" draws a fresh one.
func (a *testApp) signedRequest(t *testing.T, path string, body any, nonce string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	if nonce == "" {
		nonce = fmt.Sprintf("nonce-%d", a.nonce.Add(1))
	}
	ts := time.Now().Unix()
	canonical := a.sig.BuildCanonicalString(http.MethodPost, path, ts, nonce, string(payload))

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderAccessKey, testInternal.AccessKey)
	req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(middleware.HeaderNonce, nonce)
	req.Header.Set(middleware.HeaderSignature, a.sig.Sign(testInternal.SecretKey, canonical))
	return req
}

func (a *testApp) orderCall(t *testing.T, orderID uuid.UUID, op string, body any) apiResult {
	t.Helper()
	return a.send(t, a.signedRequest(t, "/internal/v1/orders/"+orderID.String()+"/"+op, body, ""))
}

func (a *testApp) balance(t *testing.T, actor domain.ActorRef) map[string]any {
	t.Helper()
	res := a.actorCall(t, actor, http.MethodGet, "/api/v1/wallet", nil)
	require.Equal(t, http.StatusOK, res.Status, "balance error %s", res.ErrorCode)
	var b map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &b))
	return b
}

// topUp runs a full deposit: create, then the provider's success IPN.
func (a *testApp) topUp(t *testing.T, actor domain.ActorRef, amount int64, transID int64) string {
	t.Helper()
	res := a.actorCall(t, actor, http.MethodPost, "/api/v1/wallet/deposits", map[string]any{"amount": amount})
	require.Equal(t, http.StatusCreated, res.Status, "deposit error %s", res.ErrorCode)

	var dep struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
		PayURL string `json:"pay_url"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &dep))
	require.Contains(t, dep.PayURL, dep.Transaction.ID)

	a.postIPN(t, a.callback(dep.Transaction.ID, amount, transID, 0))
	return dep.Transaction.ID
}

func (a *testApp) callback(depositID string, amount, transID int64, resultCode int) domain.ProviderCallback {
	cb := domain.ProviderCallback{
		PartnerCode:  testMoMo.PartnerCode,
		OrderID:      depositID,
		RequestID:    uuid.NewString(),
		Amount:       amount,
		OrderInfo:    "Wallet top-up",
		OrderType:    "momo_wallet",
		TransID:      transID,
		ResultCode:   resultCode,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: time.Now().UnixMilli(),
	}
	a.momo.SignCallback(&cb)
	return cb
}

func (a *testApp) postIPN(t *testing.T, cb domain.ProviderCallback) {
	t.Helper()
	payload, err := json.Marshal(cb)
	require.NoError(t, err)
	resp, err := http.Post(a.server.URL+"/api/v1/payments/momo/ipn", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// --- Tests ---

func TestRouter_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, err = http.Get(app.server.URL + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "wallet_http_requests_total")
}

func TestRouter_DepositLifecycle(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())

	depositID := app.topUp(t, customer, 200000, 4088878653)

	b := app.balance(t, customer)
	assert.Equal(t, float64(200000), b["balance"])
	assert.Equal(t, float64(0), b["pending_balance"])
	assert.Equal(t, float64(200000), b["total_deposits"])

	// Redelivered IPN is acknowledged but not applied again.
	app.postIPN(t, app.callback(depositID, 200000, 4088878653, 0))
	assert.Equal(t, float64(200000), app.balance(t, customer)["balance"])

	// A forged callback is acknowledged and ignored.
	forged := app.callback(depositID, 200000, 999, 0)
	forged.Amount = 900000
	app.postIPN(t, forged)
	assert.Equal(t, float64(200000), app.balance(t, customer)["balance"])

	res := app.actorCall(t, customer, http.MethodGet, "/api/v1/wallet/transactions?type=deposit", nil)
	require.Equal(t, http.StatusOK, res.Status)
	var list struct {
		Items []map[string]any `json:"items"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &list))
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, "completed", list.Items[0]["status"])
}

func TestRouter_DeclinedDepositReleasesPending(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())

	res := app.actorCall(t, customer, http.MethodPost, "/api/v1/wallet/deposits", map[string]any{"amount": 50000})
	require.Equal(t, http.StatusCreated, res.Status)
	var dep struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &dep))
	assert.Equal(t, float64(50000), app.balance(t, customer)["pending_balance"])

	app.postIPN(t, app.callback(dep.Transaction.ID, 50000, 7, 1006))

	b := app.balance(t, customer)
	assert.Equal(t, float64(0), b["pending_balance"])
	assert.Equal(t, float64(0), b["balance"])
}

func TestRouter_OrderLifecycle(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())
	restaurantID, driverID := uuid.New(), uuid.New()
	orderID := uuid.New()

	app.topUp(t, customer, 200000, 1001)

	actor := map[string]any{"owner_type": "customer", "actor_id": customer.OwnerID().String()}
	hold := map[string]any{"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 100000, "order_code": "ORD-1001"}

	res := app.orderCall(t, orderID, "hold", hold)
	require.Equal(t, http.StatusCreated, res.Status, "hold error %s", res.ErrorCode)

	b := app.balance(t, customer)
	assert.Equal(t, float64(100000), b["balance"])
	assert.Equal(t, float64(100000), b["escrow_balance"])

	res = app.orderCall(t, orderID, "hold", hold)
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.Equal(t, "PAY_008", res.ErrorCode)

	res = app.orderCall(t, orderID, "release", map[string]any{
		"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 100000,
	})
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `true`, string(mustField(t, res.Data, "applied")))

	// Released escrow cannot be refunded.
	res = app.orderCall(t, orderID, "refund", actor)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `false`, string(mustField(t, res.Data, "applied")))

	dist := map[string]any{
		"order_code":        "ORD-1001",
		"restaurant_id":     restaurantID.String(),
		"driver_id":         driverID.String(),
		"restaurant_amount": 80000,
		"driver_amount":     15000,
		"platform_amount":   5000,
	}
	res = app.orderCall(t, orderID, "distribute", dist)
	require.Equal(t, http.StatusOK, res.Status, "distribute error %s %v", res.ErrorCode, res.Details)
	var legs []map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &legs))
	require.Len(t, legs, 3)
	for _, leg := range legs {
		assert.Equal(t, false, leg["already_applied"])
	}

	res = app.orderCall(t, orderID, "distribute", dist)
	require.Equal(t, http.StatusOK, res.Status)
	require.NoError(t, json.Unmarshal(res.Data, &legs))
	for _, leg := range legs {
		assert.Equal(t, true, leg["already_applied"])
	}

	b = app.balance(t, customer)
	assert.Equal(t, float64(100000), b["balance"])
	assert.Equal(t, float64(0), b["escrow_balance"])
	assert.Equal(t, float64(80000), app.balance(t, domain.Restaurant(restaurantID))["balance"])
	assert.Equal(t, float64(15000), app.balance(t, domain.Driver(driverID))["balance"])
}

func TestRouter_RefundReturnsEscrow(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())
	orderID := uuid.New()
	app.topUp(t, customer, 100000, 2002)

	actor := map[string]any{"owner_type": "customer", "actor_id": customer.OwnerID().String()}
	res := app.orderCall(t, orderID, "hold", map[string]any{
		"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 60000,
	})
	require.Equal(t, http.StatusCreated, res.Status)

	res = app.orderCall(t, orderID, "refund", actor)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `true`, string(mustField(t, res.Data, "applied")))

	b := app.balance(t, customer)
	assert.Equal(t, float64(100000), b["balance"])
	assert.Equal(t, float64(0), b["escrow_balance"])

	// Refunding again is a no-op.
	res = app.orderCall(t, orderID, "refund", actor)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `false`, string(mustField(t, res.Data, "applied")))
	assert.Equal(t, float64(100000), app.balance(t, customer)["balance"])
}

func TestRouter_HoldShortfall(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())
	app.topUp(t, customer, 30000, 3003)

	res := app.orderCall(t, uuid.New(), "hold", map[string]any{
		"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 50000,
	})
	assert.Equal(t, http.StatusPaymentRequired, res.Status)
	assert.Equal(t, "PAY_001", res.ErrorCode)
	assert.Equal(t, float64(20000), res.Details["shortfall"])
}

func TestRouter_InternalAuth(t *testing.T) {
	app := newTestApp(t)
	path := "/internal/v1/orders/" + uuid.NewString() + "/refund"
	body := map[string]any{"owner_type": "system"}

	t.Run("unsigned", func(t *testing.T) {
		resp, err := http.Post(app.server.URL+path, "application/json", bytes.NewReader([]byte(`{}`)))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("replayed nonce", func(t *testing.T) {
		res := app.send(t, app.signedRequest(t, path, body, "replay-1"))
		assert.Equal(t, http.StatusOK, res.Status)

		res = app.send(t, app.signedRequest(t, path, body, "replay-1"))
		assert.Equal(t, http.StatusForbidden, res.Status)
		assert.Equal(t, "SEC_004", res.ErrorCode)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := app.signedRequest(t, path, body, "")
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"owner_type":"customer"}`)))
		req.ContentLength = -1
		res := app.send(t, req)
		assert.Equal(t, http.StatusUnauthorized, res.Status)
		assert.Equal(t, "SEC_002", res.ErrorCode)
	})

	t.Run("jwt is not accepted", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, app.server.URL+path, bytes.NewReader([]byte(`{"owner_type":"system"}`)))
		req.Header.Set("Authorization", "Bearer "+app.token(t, domain.Admin(uuid.New())))
		res := app.send(t, req)
		assert.Equal(t, http.StatusUnauthorized, res.Status)
	})
}

func TestRouter_ActorAuth(t *testing.T) {
	app := newTestApp(t)

	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallet", nil)
	res := app.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "AUTH_003", res.ErrorCode)

	res = app.actorCall(t, domain.Customer(uuid.New()), http.MethodGet, "/api/v1/admin/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "AUTH_005", res.ErrorCode)

	res = app.actorCall(t, domain.Admin(uuid.New()), http.MethodGet, "/api/v1/admin/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestRouter_AdminSettlesWithdrawal(t *testing.T) {
	app := newTestApp(t)
	driver := domain.Driver(uuid.New())
	admin := domain.Admin(uuid.New())
	app.topUp(t, driver, 300000, 4004)

	res := app.actorCall(t, driver, http.MethodPost, "/api/v1/wallet/withdrawals", map[string]any{"amount": 100000, "phone": "0912345678"})
	require.Equal(t, http.StatusAccepted, res.Status, "withdraw error %s", res.ErrorCode)
	var wd map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &wd))
	assert.Equal(t, float64(200000), app.balance(t, driver)["balance"])

	res = app.actorCall(t, admin, http.MethodPatch, "/api/v1/admin/transactions/"+wd["id"].(string)+"/status",
		map[string]any{"status": "failed", "reason": "payout rejected"})
	require.Equal(t, http.StatusOK, res.Status, "status error %s", res.ErrorCode)
	assert.Equal(t, float64(300000), app.balance(t, driver)["balance"])

	// Re-settling a terminal withdrawal changes nothing.
	res = app.actorCall(t, admin, http.MethodPatch, "/api/v1/admin/transactions/"+wd["id"].(string)+"/status",
		map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, res.Status, "status error %s", res.ErrorCode)
	var settled map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &settled))
	assert.Equal(t, "failed", settled["status"])
	assert.Equal(t, float64(300000), app.balance(t, driver)["balance"])
}

func TestRouter_DeactivatedWalletRefusesHolds(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())
	admin := domain.Admin(uuid.New())
	app.topUp(t, customer, 100000, 5005)

	walletID := app.balance(t, customer)["wallet_id"].(string)
	res := app.actorCall(t, admin, http.MethodPost, "/api/v1/admin/wallets/"+walletID+"/deactivate", nil)
	require.Equal(t, http.StatusNoContent, res.Status)

	res = app.orderCall(t, uuid.New(), "hold", map[string]any{
		"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 10000,
	})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "PAY_010", res.ErrorCode)

	res = app.actorCall(t, admin, http.MethodPost, "/api/v1/admin/wallets/"+walletID+"/activate", nil)
	require.Equal(t, http.StatusNoContent, res.Status)

	res = app.orderCall(t, uuid.New(), "hold", map[string]any{
		"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 10000,
	})
	assert.Equal(t, http.StatusCreated, res.Status)
}

// TestRouter_ConcurrentHolds fires many holds for distinct orders at one wallet;
// the wallet never goes negative and exactly the affordable number succeed.
func TestRouter_ConcurrentHolds(t *testing.T) {
	app := newTestApp(t)
	customer := domain.Customer(uuid.New())
	app.topUp(t, customer, 1000000, 6006)

	const (
		workers = 40
		amount  = 50000
	)
	var ok, short atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := app.orderCall(t, uuid.New(), "hold", map[string]any{
				"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": amount,
			})
			switch res.Status {
			case http.StatusCreated:
				ok.Add(1)
			case http.StatusPaymentRequired:
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), ok.Load())
	assert.Equal(t, int64(workers-20), short.Load())

	b := app.balance(t, customer)
	assert.Equal(t, float64(0), b["balance"])
	assert.Equal(t, float64(1000000), b["escrow_balance"])
}

func mustField(t *testing.T, data json.RawMessage, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	v, ok := m[key]
	require.True(t, ok, "missing %q in %s", key, data)
	return v
}
