package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"
	"delivery-wallet-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MoMo result code for a payment the user declined.
const resultCodeUserDeclined = 1006

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	wallets  ports.WalletService
	ledger   ports.LedgerService
	provider ports.PaymentProvider
	cache    ports.CallbackCache
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	wallets ports.WalletService,
	ledger ports.LedgerService,
	provider ports.PaymentProvider,
	cache ports.CallbackCache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		wallets:  wallets,
		ledger:   ledger,
		provider: provider,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// InitiateDeposit records a pending deposit, then asks the provider for a checkout URL.
// The provider call happens after the ledger unit has committed; if it fails the
// deposit is marked failed so its pending balance is released.
func (s *PaymentServiceImpl) InitiateDeposit(ctx context.Context, req ports.InitiateDepositRequest) (*ports.DepositResult, error) {
	w, err := s.wallets.GetOrCreate(ctx, req.Actor)
	if err != nil {
		return nil, err
	}

	txn, err := s.ledger.RecordDeposit(ctx, ports.DepositRecord{
		WalletID:    w.ID,
		Amount:      req.Amount,
		Provider:    s.provider.Name(),
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = "Wallet top-up"
	}
	payment, err := s.provider.CreatePaymentURL(ctx, domain.PaymentURLRequest{
		OrderRef:    txn.ID.String(),
		RequestID:   uuid.NewString(),
		Amount:      req.Amount,
		Description: description,
	})
	if err != nil {
		s.log.Error().Err(err).Str("tx_id", txn.ID.String()).Msg("provider rejected payment url request")
		if _, failErr := s.ledger.FailOrCancelDeposit(context.WithoutCancel(ctx), txn.ID,
			domain.TransactionStatusFailed, "provider unavailable"); failErr != nil {
			s.log.Error().Err(failErr).Str("tx_id", txn.ID.String()).Msg("failed to release pending deposit")
		}
		return nil, apperror.ErrProviderUnavailable(err)
	}

	if err := s.ledger.AttachPaymentURL(ctx, txn.ID, payment.PayURL, payment.RequestID); err != nil {
		// The deposit still settles through the callback; only the stored link is missing.
		s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("failed to store payment url")
	} else {
		txn.ProviderPaymentURL = &payment.PayURL
		txn.ProviderRequestID = &payment.RequestID
	}

	return &ports.DepositResult{Transaction: txn, Payment: payment}, nil
}

// HandleCallback applies a provider IPN. Unverified callbacks are never applied.
// Redeliveries of an applied callback are absorbed by the cache or by the ledger's
// terminal-status guard.
func (s *PaymentServiceImpl) HandleCallback(ctx context.Context, cb domain.ProviderCallback) error {
	provider := s.provider.Name()
	if !s.provider.VerifyCallback(cb) {
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, "rejected").Inc()
		s.log.Warn().Str("order_ref", cb.OrderID).Msg("provider callback failed verification")
		return apperror.ErrProviderVerification()
	}

	depositID, err := cb.DepositID()
	if err != nil {
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, "invalid").Inc()
		return apperror.Validation("callback does not reference a deposit")
	}

	key := domain.BuildCallbackKey(provider, cb.ProviderTransactionID())
	if cb.Succeeded() {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("callback cache lookup failed, falling through to ledger")
		}
		// The transId may be replayed against a different deposit; only that deposit's
		// own redelivery is absorbed here, the rest reach the ledger's duplicate check.
		if cached != nil && string(cached) == depositID.String() {
			metrics.ProviderCallbacksTotal.WithLabelValues(provider, "duplicate").Inc()
			s.log.Info().Str("tx_id", depositID.String()).Msg("callback already processed")
			return nil
		}
	}

	txn, err := s.ledger.GetTransaction(ctx, depositID)
	if err != nil {
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, outcomeOf(err)).Inc()
		return err
	}
	if txn.Type != domain.TransactionTypeDeposit {
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, "invalid").Inc()
		return apperror.Validation("callback does not reference a deposit")
	}
	if cb.Amount != txn.AbsAmount() {
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, "amount_mismatch").Inc()
		s.log.Error().
			Str("tx_id", txn.ID.String()).
			Int64("expected", txn.AbsAmount()).
			Int64("received", cb.Amount).
			Msg("callback amount does not match deposit")
		return apperror.Validation("callback amount does not match deposit")
	}

	if !cb.Succeeded() {
		status := domain.TransactionStatusFailed
		if cb.ResultCode == resultCodeUserDeclined {
			status = domain.TransactionStatusCancelled
		}
		reason := fmt.Sprintf("provider result %d: %s", cb.ResultCode, cb.Message)
		if _, err := s.ledger.FailOrCancelDeposit(ctx, txn.ID, status, reason); err != nil {
			metrics.ProviderCallbacksTotal.WithLabelValues(provider, outcomeOf(err)).Inc()
			return err
		}
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, string(status)).Inc()
		return nil
	}

	payload, err := json.Marshal(cb)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("marshal callback: %w", err))
	}
	if _, err := s.ledger.ConfirmDeposit(ctx, txn.ID, cb.ProviderTransactionID(), payload); err != nil {
		metrics.ProviderCallbacksTotal.WithLabelValues(provider, outcomeOf(err)).Inc()
		return err
	}
	metrics.ProviderCallbacksTotal.WithLabelValues(provider, "confirmed").Inc()

	if err := s.cache.Set(ctx, key, []byte(txn.ID.String()), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache processed callback")
	}
	return nil
}

// RequestWithdrawal debits the actor's wallet for a payout to the given phone number.
func (s *PaymentServiceImpl) RequestWithdrawal(ctx context.Context, req ports.WithdrawalRequest) (*domain.Transaction, error) {
	w, err := s.wallets.GetOrCreate(ctx, req.Actor)
	if err != nil {
		return nil, err
	}
	return s.ledger.RecordWithdrawal(ctx, ports.WithdrawalRecord{
		WalletID:    w.ID,
		Amount:      req.Amount,
		Provider:    s.provider.Name(),
		Phone:       req.Phone,
		Description: "Withdrawal to " + s.provider.Name(),
	})
}
