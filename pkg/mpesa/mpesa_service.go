// Package mpesa integrates with the Safaricom Daraja API for Lipa Na M-Pesa
// Online (STK push) payments.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"parcel-dispatch/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// Gateway status strings returned by QueryStatus.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusTimeout   = "timeout"
	StatusUnknown   = "unknown"
)

// Config carries the Daraja credentials for one shortcode.
type Config struct {
	Environment    string // "sandbox" or "production"
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

// Service is the Daraja client. Access tokens are fetched and refreshed
// through an OAuth2 client-credentials token source.
type Service struct {
	httpClient *http.Client
	cfg        Config
	baseURL    string
	now        func() time.Time
}

// NewService builds a Daraja client. The returned client carries its own
// bounded timeout and reuses tokens until they expire.
func NewService(cfg Config) *Service {
	baseURL := sandboxBaseURL
	if cfg.Environment == "production" {
		baseURL = productionBaseURL
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ConsumerKey,
		ClientSecret: cfg.ConsumerSecret,
		TokenURL:     baseURL + "/oauth/v1/generate?grant_type=client_credentials",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 30 * time.Second})

	return &Service{
		httpClient: cc.Client(ctx),
		cfg:        cfg,
		baseURL:    baseURL,
		now:        time.Now,
	}
}

// password derives the Lipa Na M-Pesa request password for a timestamp.
func (s *Service) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(s.cfg.Shortcode + s.cfg.Passkey + ts))
}

// NormalizePhone rewrites a Kenyan phone number into the 254XXXXXXXXX form
// the gateway requires.
func NormalizePhone(phone string) string {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}
	if !strings.HasPrefix(p, "254") {
		p = "254" + p
	}
	return p
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// InitiatePush sends an STK push to the customer's phone and returns the
// gateway's checkout and merchant request identifiers.
func (s *Service) InitiatePush(ctx context.Context, amount float64, phone, reference string) (string, string, error) {
	ts := s.now().Format("20060102150405")
	payload := stkPushRequest{
		BusinessShortCode: s.cfg.Shortcode,
		Password:          s.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		// The gateway only accepts whole shillings.
		Amount:           int(amount),
		PartyA:           NormalizePhone(phone),
		PartyB:           s.cfg.Shortcode,
		PhoneNumber:      NormalizePhone(phone),
		CallBackURL:      s.cfg.CallbackURL,
		AccountReference: reference,
		TransactionDesc:  "Parcel delivery payment " + reference,
	}

	var resp stkPushResponse
	if err := s.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &resp); err != nil {
		return "", "", err
	}
	if resp.ResponseCode != "0" {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = resp.ResponseDescription
		}
		return "", "", fmt.Errorf("mpesa.InitiatePush: gateway rejected request: %s", msg)
	}
	return resp.CheckoutRequestID, resp.MerchantRequestID, nil
}

type stkQueryResponse struct {
	ResponseCode string      `json:"ResponseCode"`
	ResultCode   json.Number `json:"ResultCode"`
	ResultDesc   string      `json:"ResultDesc"`
}

// QueryStatus asks the gateway for the outcome of an STK push.
func (s *Service) QueryStatus(ctx context.Context, checkoutID string) (string, error) {
	ts := s.now().Format("20060102150405")
	payload := map[string]string{
		"BusinessShortCode": s.cfg.Shortcode,
		"Password":          s.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutID,
	}

	var resp stkQueryResponse
	if err := s.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &resp); err != nil {
		return "", err
	}

	switch resp.ResultCode.String() {
	case "0":
		return StatusCompleted, nil
	case "1", "2001":
		return StatusFailed, nil
	case "1032":
		return StatusCancelled, nil
	case "1037":
		return StatusTimeout, nil
	default:
		return StatusUnknown, nil
	}
}

func (s *Service) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mpesa.post: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mpesa.post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mpesa.post: %w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("mpesa.post: %w: status %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mpesa.post: %w: decode: %v", models.ErrGatewayUnavailable, err)
	}
	return nil
}

// callbackEnvelope mirrors the Daraja callback body.
type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback normalizes a raw Daraja callback payload. ResultCode 0 is
// success; the receipt number rides in the callback metadata items.
func ParseCallback(raw []byte) (*models.CallbackResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("mpesa.ParseCallback: %w", err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("mpesa.ParseCallback: missing CheckoutRequestID")
	}

	result := &models.CallbackResult{
		CheckoutID: cb.CheckoutRequestID,
		Success:    cb.ResultCode.String() == "0",
	}
	if result.Success {
		for _, item := range cb.CallbackMetadata.Item {
			if item.Name == "MpesaReceiptNumber" {
				if receipt, ok := item.Value.(string); ok {
					result.ReceiptID = receipt
				}
			}
		}
	} else {
		result.FailureReason = cb.ResultDesc
	}
	return result, nil
}
