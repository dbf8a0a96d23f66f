package model

// Payment status values reported by the payment endpoints.
const (
	PaymentStatusRequested  = "REQUESTED"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
)

type PaymentStatus struct {
	AuctionID   int64     `json:"auction_id,omitempty"`
	Status      string    `json:"status"`
	Method      string    `json:"method,omitempty"`
	SentEmailAt Timestamp `json:"sent_email_at"`
}

type PaymentRequest struct {
	Method  string  `json:"method"`
	Amount  float64 `json:"amount,omitempty"`
	Note    string  `json:"note,omitempty"`
	Address string  `json:"address,omitempty"`
}

type PaymentReceipt struct {
	OK            bool   `json:"ok"`
	TransactionID string `json:"transaction_id"`
}

// DepositRegistration is returned by /participation/register. The QR
// token identifies the pending deposit payment.
type DepositRegistration struct {
	AuctionID int64     `json:"auction_id"`
	PaymentID int64     `json:"payment_id,omitempty"`
	Amount    float64   `json:"amount"`
	QRToken   string    `json:"qr_token"`
	QRCode    string    `json:"qr_code,omitempty"`
	BankName  string    `json:"bank_name,omitempty"`
	BankCode  string    `json:"bank_code,omitempty"`
	ExpiresAt Timestamp `json:"expires_at"`
}

type PaymentTokenStatus struct {
	Valid     bool      `json:"valid"`
	Status    string    `json:"status,omitempty"`
	ExpiresAt Timestamp `json:"expires_at"`
	Error     string    `json:"error,omitempty"`
}

type StatusUpdate struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}
