package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"parcel-dispatch/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newTestService builds a client whose HTTP layer is the given transport,
// sidestepping the OAuth token source real construction goes through.
func newTestService(rt roundTripFunc) *Service {
	return &Service{
		httpClient: &http.Client{Transport: rt},
		cfg: Config{
			Environment: "sandbox",
			Shortcode:   "174379",
			Passkey:     "test-passkey",
			CallbackURL: "https://example.com/api/payments/callback",
		},
		baseURL: sandboxBaseURL,
		now:     func() time.Time { return time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC) },
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInitiatePushAccepted(t *testing.T) {
	svc := newTestService(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/mpesa/stkpush/v1/processrequest" {
			t.Errorf("path = %s", req.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["PartyA"] != "254712345678" {
			t.Errorf("PartyA = %v, want normalized 254712345678", payload["PartyA"])
		}
		if payload["AccountReference"] != "PD20250611120000042" {
			t.Errorf("AccountReference = %v", payload["AccountReference"])
		}
		return jsonResponse(http.StatusOK, `{
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResponseCode": "0",
			"ResponseDescription": "Success. Request accepted for processing"
		}`), nil
	})

	checkoutID, merchantID, err := svc.InitiatePush(context.Background(), 1092.50, "0712345678", "PD20250611120000042")
	if err != nil {
		t.Fatalf("InitiatePush: %v", err)
	}
	if checkoutID != "ws_CO_191220191020363925" {
		t.Errorf("checkout id = %q", checkoutID)
	}
	if merchantID != "29115-34620561-1" {
		t.Errorf("merchant id = %q", merchantID)
	}
}

func TestInitiatePushRejected(t *testing.T) {
	svc := newTestService(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"ResponseCode": "1",
			"ResponseDescription": "Invalid PhoneNumber"
		}`), nil
	})

	_, _, err := svc.InitiatePush(context.Background(), 500, "0712345678", "PD-REF")
	if err == nil {
		t.Fatal("expected error on non-zero ResponseCode")
	}
	if !strings.Contains(err.Error(), "Invalid PhoneNumber") {
		t.Errorf("err = %v, want the gateway's rejection text", err)
	}
}

func TestInitiatePushGatewayDown(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		svc := newTestService(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})
		_, _, err := svc.InitiatePush(context.Background(), 500, "0712345678", "PD-REF")
		if !errors.Is(err, models.ErrGatewayUnavailable) {
			t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		svc := newTestService(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
		})
		_, _, err := svc.InitiatePush(context.Background(), 500, "0712345678", "PD-REF")
		if !errors.Is(err, models.ErrGatewayUnavailable) {
			t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
		}
	})
}

func TestQueryStatusResultCodes(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"0", StatusCompleted},
		{"1", StatusFailed},
		{"2001", StatusFailed},
		{"1032", StatusCancelled},
		{"1037", StatusTimeout},
		{"9999", StatusUnknown},
	}

	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			svc := newTestService(func(req *http.Request) (*http.Response, error) {
				if req.URL.Path != "/mpesa/stkpushquery/v1/query" {
					t.Errorf("path = %s", req.URL.Path)
				}
				return jsonResponse(http.StatusOK, `{
					"ResponseCode": "0",
					"ResultCode": "`+c.code+`",
					"ResultDesc": "whatever the gateway says"
				}`), nil
			})

			got, err := svc.QueryStatus(context.Background(), "ws_CO_191220191020363925")
			if err != nil {
				t.Fatalf("QueryStatus: %v", err)
			}
			if got != c.want {
				t.Errorf("status for code %s = %q, want %q", c.code, got, c.want)
			}
		})
	}
}

func TestQueryStatusGatewayDown(t *testing.T) {
	svc := newTestService(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("timeout")
	})

	_, err := svc.QueryStatus(context.Background(), "ws_CO_191220191020363925")
	if !errors.Is(err, models.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}

func TestParseCallbackSuccess(t *testing.T) {
	raw := []byte(`{
		"Body": {"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CallbackMetadata": {"Item": [
				{"Name": "Amount", "Value": 1092.50},
				{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
				{"Name": "PhoneNumber", "Value": 254712345678}
			]}
		}}
	}`)

	res, err := ParseCallback(raw)
	if err != nil {
		t.Fatalf("ParseCallback returned error: %v", err)
	}
	if res.CheckoutID != "ws_CO_191220191020363925" {
		t.Errorf("checkout id = %q", res.CheckoutID)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if res.ReceiptID != "NLJ7RT61SV" {
		t.Errorf("receipt = %q, want NLJ7RT61SV", res.ReceiptID)
	}
}

func TestParseCallbackFailure(t *testing.T) {
	raw := []byte(`{
		"Body": {"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 1032,
			"ResultDesc": "Request cancelled by user."
		}}
	}`)

	res, err := ParseCallback(raw)
	if err != nil {
		t.Fatalf("ParseCallback returned error: %v", err)
	}
	if res.Success {
		t.Error("expected failure")
	}
	if res.FailureReason != "Request cancelled by user." {
		t.Errorf("failure reason = %q", res.FailureReason)
	}
	if res.ReceiptID != "" {
		t.Errorf("receipt should be empty on failure, got %q", res.ReceiptID)
	}
}

func TestParseCallbackRejectsGarbage(t *testing.T) {
	if _, err := ParseCallback([]byte(`not json`)); err == nil {
		t.Error("expected error for non-JSON payload")
	}
	if _, err := ParseCallback([]byte(`{"Body": {}}`)); err == nil {
		t.Error("expected error for missing CheckoutRequestID")
	}
}
