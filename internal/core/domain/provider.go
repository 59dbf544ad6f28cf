package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// PaymentURLRequest asks the provider for a hosted payment page.
type PaymentURLRequest struct {
	OrderRef    string // deposit transaction id
	RequestID   string
	Amount      int64
	Description string
	ExtraData   string
}

// PaymentURL is the provider's answer to a PaymentURLRequest.
type PaymentURL struct {
	PayURL    string `json:"pay_url"`
	Deeplink  string `json:"deeplink,omitempty"`
	QRCodeURL string `json:"qr_code_url,omitempty"`
	RequestID string `json:"request_id"`
}

// ProviderCallback is the provider's asynchronous payment notification (IPN).
type ProviderCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// Succeeded reports whether the provider settled the payment.
func (c ProviderCallback) Succeeded() bool {
	return c.ResultCode == 0
}

// ProviderTransactionID is the provider's id for the settled payment.
func (c ProviderCallback) ProviderTransactionID() string {
	return strconv.FormatInt(c.TransID, 10)
}

// DepositID parses the deposit transaction id the callback refers to.
func (c ProviderCallback) DepositID() (uuid.UUID, error) {
	return uuid.Parse(c.OrderID)
}
