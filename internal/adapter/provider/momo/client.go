// Package momo is the MoMo e-wallet adapter: it creates hosted payment pages and
// verifies the IPN callbacks MoMo posts back.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"delivery-wallet-engine/config"
	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const providerName = "momo"

// Caps how much of an error response ends up in logs.
const maxErrorBody = 4 << 10

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentProvider against MoMo's v2 gateway.
type Client struct {
	cfg     config.MoMoConfig
	sig     ports.SignatureService
	http    HTTPClient
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a MoMo client. A nil httpClient gets a plain http.Client
// bounded by cfg.Timeout.
func NewClient(cfg config.MoMoConfig, sig ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		sig:     sig,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("provider", providerName).Logger(),
	}
}

func (c *Client) Name() string { return providerName }

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// CreatePaymentURL asks MoMo for a payment page for one deposit.
func (c *Client) CreatePaymentURL(ctx context.Context, req domain.PaymentURLRequest) (*domain.PaymentURL, error) {
	body := createRequest{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   req.RequestID,
		Amount:      req.Amount,
		OrderID:     req.OrderRef,
		OrderInfo:   req.Description,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: c.cfg.RequestType,
		ExtraData:   req.ExtraData,
		Lang:        c.cfg.Lang,
	}
	body.Signature = c.sig.Sign(c.cfg.SecretKey, c.sig.BuildSortedQuery(map[string]string{
		"accessKey":   body.AccessKey,
		"amount":      strconv.FormatInt(body.Amount, 10),
		"extraData":   body.ExtraData,
		"ipnUrl":      body.IPNURL,
		"orderId":     body.OrderID,
		"orderInfo":   body.OrderInfo,
		"partnerCode": body.PartnerCode,
		"redirectUrl": body.RedirectURL,
		"requestId":   body.RequestID,
		"requestType": body.RequestType,
	}))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("momo rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.post(ctx, body)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ProviderRequestDuration.WithLabelValues(providerName, outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Error().Err(err).Str("order_ref", req.OrderRef).Msg("create payment url failed")
		return nil, err
	}

	c.log.Info().
		Str("order_ref", req.OrderRef).
		Str("request_id", resp.RequestID).
		Int64("amount", req.Amount).
		Msg("payment url created")

	return &domain.PaymentURL{
		PayURL:    resp.PayURL,
		Deeplink:  resp.Deeplink,
		QRCodeURL: resp.QRCodeURL,
		RequestID: req.RequestID,
	}, nil
}

func (c *Client) post(ctx context.Context, body createRequest) (*createResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal momo request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build momo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("momo request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, fmt.Errorf("momo returned %d: %s", httpResp.StatusCode, snippet)
	}

	var out createResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode momo response: %w", err)
	}
	if out.ResultCode != 0 {
		return nil, &ResultError{Code: out.ResultCode, Message: out.Message}
	}
	if out.PayURL == "" {
		return nil, errors.New("momo response has no payUrl")
	}
	return &out, nil
}

// VerifyCallback checks an IPN's signature and that it was meant for this partner.
func (c *Client) VerifyCallback(cb domain.ProviderCallback) bool {
	if cb.Signature == "" || cb.PartnerCode != c.cfg.PartnerCode {
		return false
	}
	return c.sig.Verify(c.cfg.SecretKey, c.callbackPayload(cb), cb.Signature)
}

func (c *Client) callbackPayload(cb domain.ProviderCallback) string {
	return c.sig.BuildSortedQuery(map[string]string{
		"accessKey":    c.cfg.AccessKey,
		"amount":       strconv.FormatInt(cb.Amount, 10),
		"extraData":    cb.ExtraData,
		"message":      cb.Message,
		"orderId":      cb.OrderID,
		"orderInfo":    cb.OrderInfo,
		"orderType":    cb.OrderType,
		"partnerCode":  cb.PartnerCode,
		"payType":      cb.PayType,
		"requestId":    cb.RequestID,
		"responseTime": strconv.FormatInt(cb.ResponseTime, 10),
		"resultCode":   strconv.Itoa(cb.ResultCode),
		"transId":      strconv.FormatInt(cb.TransID, 10),
	})
}

// SignCallback fills cb.Signature the way MoMo does. Used by sandbox tooling and tests.
func (c *Client) SignCallback(cb *domain.ProviderCallback) {
	cb.Signature = c.sig.Sign(c.cfg.SecretKey, c.callbackPayload(*cb))
}

// ResultError is a non-zero resultCode returned by the create API.
type ResultError struct {
	Code    int
	Message string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("momo result %d: %s", e.Code, e.Message)
}
