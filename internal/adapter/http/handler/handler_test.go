package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"delivery-wallet-engine/internal/adapter/http/middleware"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/core/ports/mocks"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Details   map[string]any  `json:"details"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// asActor stands in for JWTAuth.
func asActor(actor domain.ActorRef) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxActor, actor)
		c.Next()
	}
}

func sampleTxn(txType domain.TransactionType, amount int64, status domain.TransactionStatus) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  uuid.New(),
		Type:      txType,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// ---- WalletHandler ----

func TestWalletHandler_GetBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	wallets := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(wallets, nil, nil)

	customer := domain.Customer(uuid.New())
	walletID := uuid.New()
	wallets.EXPECT().GetBalance(gomock.Any(), customer).Return(&domain.BalanceView{
		WalletID:       walletID,
		OwnerType:      domain.OwnerTypeCustomer,
		Balance:        150000,
		EscrowBalance:  50000,
		PendingBalance: 20000,
		IsActive:       true,
	}, nil)

	r := gin.New()
	r.GET("/wallet", asActor(customer), h.GetBalance)

	w, env := do(t, r, http.MethodGet, "/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, walletID.String(), got["wallet_id"])
	assert.Equal(t, float64(150000), got["balance"])
	assert.Equal(t, float64(50000), got["escrow_balance"])
	assert.Equal(t, "VND", got["currency"])
}

func TestWalletHandler_GetBalance_NoActor(t *testing.T) {
	h := NewWalletHandler(nil, nil, nil)
	r := gin.New()
	r.GET("/wallet", h.GetBalance)

	w, env := do(t, r, http.MethodGet, "/wallet", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_003", env.ErrorCode)
}

func TestWalletHandler_CreateDeposit(t *testing.T) {
	ctrl := gomock.NewController(t)
	payments := mocks.NewMockPaymentService(ctrl)
	h := NewWalletHandler(nil, nil, payments)

	customer := domain.Customer(uuid.New())
	txn := sampleTxn(domain.TransactionTypeDeposit, 100000, domain.TransactionStatusPending)
	payments.EXPECT().InitiateDeposit(gomock.Any(), ports.InitiateDepositRequest{
		Actor:       customer,
		Amount:      100000,
		Description: "top up",
	}).Return(&ports.DepositResult{
		Transaction: txn,
		Payment:     &domain.PaymentURL{PayURL: "https://pay.example/abc", RequestID: "req-1"},
	}, nil)

	r := gin.New()
	r.POST("/deposits", asActor(customer), h.CreateDeposit)

	w, env := do(t, r, http.MethodPost, "/deposits", map[string]any{"amount": 100000, "description": "  top up  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
		PayURL string `json:"pay_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, txn.ID.String(), got.Transaction.ID)
	assert.Equal(t, "pending", got.Transaction.Status)
	assert.Equal(t, "https://pay.example/abc", got.PayURL)
}

func TestWalletHandler_CreateDeposit_Errors(t *testing.T) {
	customer := domain.Customer(uuid.New())

	tests := []struct {
		name       string
		body       any
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"missing amount", map[string]any{}, nil, http.StatusBadRequest, apperror.CodeValidation},
		{"negative amount", map[string]any{"amount": -5}, nil, http.StatusBadRequest, apperror.CodeValidation},
		{"malformed json", "{", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"provider down", map[string]any{"amount": 100000}, apperror.ErrProviderUnavailable(errors.New("timeout")),
			http.StatusBadGateway, apperror.CodeProviderUnavailable},
		{"inactive wallet", map[string]any{"amount": 100000}, apperror.ErrWalletInactive(),
			http.StatusForbidden, apperror.CodeWalletInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			payments := mocks.NewMockPaymentService(ctrl)
			if tt.svcErr != nil {
				payments.EXPECT().InitiateDeposit(gomock.Any(), gomock.Any()).Return(nil, tt.svcErr)
			}
			h := NewWalletHandler(nil, nil, payments)
			r := gin.New()
			r.POST("/deposits", asActor(customer), h.CreateDeposit)

			w, env := do(t, r, http.MethodPost, "/deposits", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, env.ErrorCode)
		})
	}
}

func TestWalletHandler_CreateWithdrawal(t *testing.T) {
	ctrl := gomock.NewController(t)
	payments := mocks.NewMockPaymentService(ctrl)
	h := NewWalletHandler(nil, nil, payments)

	driver := domain.Driver(uuid.New())
	r := gin.New()
	r.POST("/withdrawals", asActor(driver), h.CreateWithdrawal)

	t.Run("accepted", func(t *testing.T) {
		txn := sampleTxn(domain.TransactionTypeWithdraw, -200000, domain.TransactionStatusPending)
		payments.EXPECT().RequestWithdrawal(gomock.Any(), ports.WithdrawalRequest{
			Actor:  driver,
			Amount: 200000,
			Phone:  "0912345678",
		}).Return(txn, nil)

		w, env := do(t, r, http.MethodPost, "/withdrawals", map[string]any{"amount": 200000, "phone": "0912345678"})
		require.Equal(t, http.StatusAccepted, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, float64(-200000), got["amount"])
		assert.Equal(t, "withdraw", got["type"])
	})

	t.Run("bad phone", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/withdrawals", map[string]any{"amount": 200000, "phone": "12345"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperror.CodeValidation, env.ErrorCode)
	})

	t.Run("insufficient funds carries shortfall", func(t *testing.T) {
		payments.EXPECT().RequestWithdrawal(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientFunds(50000))

		w, env := do(t, r, http.MethodPost, "/withdrawals", map[string]any{"amount": 200000, "phone": "+84912345678"})
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, apperror.CodeInsufficientFunds, env.ErrorCode)
		assert.Equal(t, float64(50000), env.Details["shortfall"])
	})
}

func TestWalletHandler_ListTransactions(t *testing.T) {
	ctrl := gomock.NewController(t)
	wallets := mocks.NewMockWalletService(ctrl)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(wallets, ledger, nil)

	restaurant := domain.Restaurant(uuid.New())
	walletID := uuid.New()
	wallets.EXPECT().GetBalance(gomock.Any(), restaurant).Return(&domain.BalanceView{WalletID: walletID}, nil)

	txns := []domain.Transaction{
		*sampleTxn(domain.TransactionTypeOrderRevenue, 80000, domain.TransactionStatusCompleted),
		*sampleTxn(domain.TransactionTypeOrderRevenue, 60000, domain.TransactionStatusCompleted),
	}
	ledger.EXPECT().History(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, p ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, walletID, p.WalletID)
			require.NotNil(t, p.Type)
			assert.Equal(t, domain.TransactionTypeOrderRevenue, *p.Type)
			assert.Nil(t, p.Status)
			assert.Equal(t, 2, p.Page)
			assert.Equal(t, 2, p.PageSize)
			require.NotNil(t, p.From)
			return txns, 5, nil
		})

	r := gin.New()
	r.GET("/transactions", asActor(restaurant), h.ListTransactions)

	w, env := do(t, r, http.MethodGet, "/transactions?type=order_revenue&page=2&page_size=2&from=2026-03-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Items      []map[string]any `json:"items"`
		Total      int64            `json:"total"`
		TotalPages int              `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Len(t, got.Items, 2)
	assert.Equal(t, int64(5), got.Total)
	assert.Equal(t, 3, got.TotalPages)
}

func TestWalletHandler_ListTransactions_BadQuery(t *testing.T) {
	h := NewWalletHandler(nil, nil, nil)
	r := gin.New()
	r.GET("/transactions", asActor(domain.Customer(uuid.New())), h.ListTransactions)

	w, env := do(t, r, http.MethodGet, "/transactions?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, env.ErrorCode)
}

// ---- OrderHandler ----

func orderRouter(h *OrderHandler) *gin.Engine {
	r := gin.New()
	r.POST("/orders/:orderId/hold", h.Hold)
	r.POST("/orders/:orderId/release", h.Release)
	r.POST("/orders/:orderId/refund", h.Refund)
	r.POST("/orders/:orderId/distribute", h.Distribute)
	return r
}

func TestOrderHandler_Hold(t *testing.T) {
	ctrl := gomock.NewController(t)
	escrow := mocks.NewMockEscrowService(ctrl)
	r := orderRouter(NewOrderHandler(escrow, nil))

	orderID := uuid.New()
	customerID := uuid.New()
	txn := sampleTxn(domain.TransactionTypeOrderPayment, -120000, domain.TransactionStatusEscrowed)
	txn.OrderID = &orderID

	escrow.EXPECT().Hold(gomock.Any(), ports.HoldRequest{
		Actor:     domain.Customer(customerID),
		Amount:    120000,
		OrderID:   orderID,
		OrderCode: "ORD-1001",
	}).Return(txn, nil)

	w, env := do(t, r, http.MethodPost, "/orders/"+orderID.String()+"/hold", map[string]any{
		"owner_type": "customer",
		"actor_id":   customerID.String(),
		"amount":     120000,
		"order_code": "ORD-1001",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "escrowed", got["status"])
	assert.Equal(t, orderID.String(), got["order_id"])
}

func TestOrderHandler_Hold_Errors(t *testing.T) {
	orderID := uuid.New().String()
	customerID := uuid.New().String()

	tests := []struct {
		name       string
		path       string
		body       any
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"bad order id", "/orders/not-a-uuid/hold",
			map[string]any{"owner_type": "customer", "actor_id": customerID, "amount": 1000},
			nil, http.StatusBadRequest, apperror.CodeValidation},
		{"unknown owner type", "/orders/" + orderID + "/hold",
			map[string]any{"owner_type": "merchant", "actor_id": customerID, "amount": 1000},
			nil, http.StatusBadRequest, apperror.CodeValidation},
		{"missing actor id", "/orders/" + orderID + "/hold",
			map[string]any{"owner_type": "customer", "amount": 1000},
			nil, http.StatusBadRequest, apperror.CodeValidation},
		{"unsafe order code", "/orders/" + orderID + "/hold",
			map[string]any{"owner_type": "customer", "actor_id": customerID, "amount": 1000, "order_code": "<script>"},
			nil, http.StatusBadRequest, apperror.CodeValidation},
		{"already paid", "/orders/" + orderID + "/hold",
			map[string]any{"owner_type": "customer", "actor_id": customerID, "amount": 1000},
			apperror.ErrDuplicateOrderPayment(), http.StatusConflict, apperror.CodeDuplicateOrderPayment},
		{"short of funds", "/orders/" + orderID + "/hold",
			map[string]any{"owner_type": "customer", "actor_id": customerID, "amount": 1000},
			apperror.ErrInsufficientFunds(400), http.StatusPaymentRequired, apperror.CodeInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			escrow := mocks.NewMockEscrowService(ctrl)
			if tt.svcErr != nil {
				escrow.EXPECT().Hold(gomock.Any(), gomock.Any()).Return(nil, tt.svcErr)
			}
			r := orderRouter(NewOrderHandler(escrow, nil))

			w, env := do(t, r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, env.ErrorCode)
		})
	}
}

func TestOrderHandler_ReleaseAndRefund(t *testing.T) {
	ctrl := gomock.NewController(t)
	escrow := mocks.NewMockEscrowService(ctrl)
	r := orderRouter(NewOrderHandler(escrow, nil))

	orderID := uuid.New()
	customer := domain.Customer(uuid.New())
	body := map[string]any{"owner_type": "customer", "actor_id": customer.OwnerID().String(), "amount": 120000}

	t.Run("release applied", func(t *testing.T) {
		txn := sampleTxn(domain.TransactionTypeOrderPayment, -120000, domain.TransactionStatusCompleted)
		escrow.EXPECT().Release(gomock.Any(), customer, orderID, int64(120000)).Return(txn, nil)

		w, env := do(t, r, http.MethodPost, "/orders/"+orderID.String()+"/release", body)
		require.Equal(t, http.StatusOK, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, true, got["applied"])
		assert.NotNil(t, got["transaction"])
	})

	t.Run("release with nothing escrowed", func(t *testing.T) {
		escrow.EXPECT().Release(gomock.Any(), customer, orderID, int64(120000)).Return(nil, nil)

		w, env := do(t, r, http.MethodPost, "/orders/"+orderID.String()+"/release", body)
		require.Equal(t, http.StatusOK, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, false, got["applied"])
		assert.NotContains(t, got, "transaction")
	})

	t.Run("refund", func(t *testing.T) {
		txn := sampleTxn(domain.TransactionTypeRefund, 120000, domain.TransactionStatusCompleted)
		escrow.EXPECT().Refund(gomock.Any(), customer, orderID).Return(txn, nil)

		w, env := do(t, r, http.MethodPost, "/orders/"+orderID.String()+"/refund", body)
		require.Equal(t, http.StatusOK, w.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, true, got["applied"])
	})

	t.Run("refund for system actor needs no id", func(t *testing.T) {
		escrow.EXPECT().Refund(gomock.Any(), domain.System(), orderID).Return(nil, nil)

		w, _ := do(t, r, http.MethodPost, "/orders/"+orderID.String()+"/refund", map[string]any{"owner_type": "system"})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestOrderHandler_Distribute(t *testing.T) {
	orderID := uuid.New()
	restaurantID := uuid.New()
	driverID := uuid.New()
	body := map[string]any{
		"order_code":        "ORD-1001",
		"restaurant_id":     restaurantID.String(),
		"driver_id":         driverID.String(),
		"restaurant_amount": 80000,
		"driver_amount":     15000,
		"platform_amount":   5000,
	}
	wantEarnings := domain.OrderEarnings{
		OrderID:          orderID,
		OrderCode:        "ORD-1001",
		RestaurantID:     restaurantID,
		DriverID:         &driverID,
		RestaurantAmount: 80000,
		DriverAmount:     15000,
		PlatformAmount:   5000,
	}
	path := "/orders/" + orderID.String() + "/distribute"

	t.Run("all legs applied", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dist := mocks.NewMockDistributionService(ctrl)
		r := orderRouter(NewOrderHandler(nil, dist))

		dist.EXPECT().DistributeOrderEarnings(gomock.Any(), wantEarnings).Return([]domain.DistributionLeg{
			{Type: domain.TransactionTypeOrderRevenue, Recipient: "restaurant:" + restaurantID.String(), Amount: 80000,
				Transaction: sampleTxn(domain.TransactionTypeOrderRevenue, 80000, domain.TransactionStatusCompleted)},
			{Type: domain.TransactionTypeCommission, Recipient: "driver:" + driverID.String(), Amount: 15000,
				Transaction: sampleTxn(domain.TransactionTypeCommission, 15000, domain.TransactionStatusCompleted)},
			{Type: domain.TransactionTypePlatformFee, Recipient: "system", Amount: 5000, AlreadyApplied: true,
				Transaction: sampleTxn(domain.TransactionTypePlatformFee, 5000, domain.TransactionStatusCompleted)},
		}, nil)

		w, env := do(t, r, http.MethodPost, path, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var legs []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &legs))
		require.Len(t, legs, 3)
		assert.Equal(t, "order_revenue", legs[0]["type"])
		assert.Equal(t, true, legs[2]["already_applied"])
	})

	t.Run("partial failure reports every leg", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dist := mocks.NewMockDistributionService(ctrl)
		r := orderRouter(NewOrderHandler(nil, dist))

		legErr := apperror.ErrWalletInactive()
		dist.EXPECT().DistributeOrderEarnings(gomock.Any(), gomock.Any()).Return([]domain.DistributionLeg{
			{Type: domain.TransactionTypeOrderRevenue, Amount: 80000,
				Transaction: sampleTxn(domain.TransactionTypeOrderRevenue, 80000, domain.TransactionStatusCompleted)},
			{Type: domain.TransactionTypeCommission, Amount: 15000, Err: legErr},
		}, legErr)

		w, env := do(t, r, http.MethodPost, path, body)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apperror.CodeInternal, env.ErrorCode)

		legs, ok := env.Details["legs"].([]any)
		require.True(t, ok)
		require.Len(t, legs, 2)
		assert.Equal(t, apperror.CodeWalletInactive, legs[1].(map[string]any)["error_code"])
	})

	t.Run("rejected earnings", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dist := mocks.NewMockDistributionService(ctrl)
		r := orderRouter(NewOrderHandler(nil, dist))

		dist.EXPECT().DistributeOrderEarnings(gomock.Any(), gomock.Any()).Return(nil, apperror.Validation("nothing to distribute"))

		w, env := do(t, r, http.MethodPost, path, map[string]any{"restaurant_id": restaurantID.String()})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperror.CodeValidation, env.ErrorCode)
	})

	t.Run("bad driver id", func(t *testing.T) {
		r := orderRouter(NewOrderHandler(nil, nil))
		w, _ := do(t, r, http.MethodPost, path, map[string]any{"restaurant_id": restaurantID.String(), "driver_id": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// ---- CallbackHandler ----

func TestCallbackHandler_AlwaysNoContent(t *testing.T) {
	cb := domain.ProviderCallback{PartnerCode: "MOMO", OrderID: uuid.NewString(), Amount: 100000, TransID: 42, Signature: "sig"}

	tests := []struct {
		name   string
		body   any
		svcErr error
		called bool
	}{
		{"applied", cb, nil, true},
		{"verification failed", cb, apperror.ErrProviderVerification(), true},
		{"internal error", cb, apperror.InternalError(errors.New("db down")), true},
		{"malformed body", "{not json", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			payments := mocks.NewMockPaymentService(ctrl)
			if tt.called {
				payments.EXPECT().HandleCallback(gomock.Any(), cb).Return(tt.svcErr)
			}
			h := NewCallbackHandler(payments, zerolog.Nop())
			r := gin.New()
			r.POST("/ipn", h.MoMoIPN)

			w, _ := do(t, r, http.MethodPost, "/ipn", tt.body)
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Empty(t, w.Body.String())
		})
	}
}

// ---- AdminHandler ----

func TestAdminHandler_UpdateTransactionStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewAdminHandler(nil, ledger)

	r := gin.New()
	r.PATCH("/transactions/:id/status", h.UpdateTransactionStatus)

	id := uuid.New()
	path := "/transactions/" + id.String() + "/status"

	t.Run("completes a withdrawal", func(t *testing.T) {
		txn := sampleTxn(domain.TransactionTypeWithdraw, -50000, domain.TransactionStatusCompleted)
		ledger.EXPECT().UpdateStatus(gomock.Any(), id, domain.TransactionStatusCompleted, "paid out").Return(txn, nil)

		w, _ := do(t, r, http.MethodPatch, path, map[string]any{"status": "completed", "reason": " paid out "})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("escrowed is not a manual target", func(t *testing.T) {
		w, env := do(t, r, http.MethodPatch, path, map[string]any{"status": "escrowed"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperror.CodeValidation, env.ErrorCode)
	})

	t.Run("illegal transition", func(t *testing.T) {
		ledger.EXPECT().UpdateStatus(gomock.Any(), id, domain.TransactionStatusFailed, "").
			Return(nil, apperror.ErrInvalidTransition("completed", "failed"))

		w, env := do(t, r, http.MethodPatch, path, map[string]any{"status": "failed"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperror.CodeInvalidTransition, env.ErrorCode)
	})
}

func TestAdminHandler_GetTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerService(ctrl)
	h := NewAdminHandler(nil, ledger)

	r := gin.New()
	r.GET("/transactions/:id", h.GetTransaction)

	id := uuid.New()
	ledger.EXPECT().GetTransaction(gomock.Any(), id).Return(nil, apperror.ErrNotFound("transaction"))

	w, env := do(t, r, http.MethodGet, "/transactions/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, env.ErrorCode)

	w, _ = do(t, r, http.MethodGet, "/transactions/42", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_SetActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	wallets := mocks.NewMockWalletService(ctrl)
	h := NewAdminHandler(wallets, nil)

	r := gin.New()
	r.POST("/wallets/:walletId/deactivate", h.DeactivateWallet)
	r.POST("/wallets/:walletId/activate", h.ActivateWallet)

	id := uuid.New()
	gomock.InOrder(
		wallets.EXPECT().SetActive(gomock.Any(), id, false).Return(nil),
		wallets.EXPECT().SetActive(gomock.Any(), id, true).Return(apperror.ErrNotFound("wallet")),
	)

	w, _ := do(t, r, http.MethodPost, "/wallets/"+id.String()+"/deactivate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env := do(t, r, http.MethodPost, "/wallets/"+id.String()+"/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, env.ErrorCode)
}

// ---- HealthCheck ----

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	rd := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()
	rd.EXPECT().Name().Return("redis").AnyTimes()

	r := gin.New()
	r.GET("/health", HealthCheck(pg, rd))

	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	rd.EXPECT().Ping(gomock.Any()).Return(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	rd.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), `"degraded"`)
}
