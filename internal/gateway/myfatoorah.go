package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
)

// MyFatoorah test and live API hosts.
const (
	MyFatoorahTestURL = "https://apitest.myfatoorah.com"
	MyFatoorahLiveURL = "https://api.myfatoorah.com"
)

const invoicePrefix = "invoice:"

// MyFatoorah creates invoices with SendPayment and verifies with
// GetPaymentStatus.
type MyFatoorah struct {
	doer    httpclient.Doer
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewMyFatoorah creates the gateway. An empty baseURL selects the test or
// live host by testMode.
func NewMyFatoorah(doer httpclient.Doer, baseURL, apiKey string, testMode bool, logger *slog.Logger) *MyFatoorah {
	if baseURL == "" {
		baseURL = MyFatoorahLiveURL
		if testMode {
			baseURL = MyFatoorahTestURL
		}
	}
	return &MyFatoorah{doer: doer, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, logger: logger}
}

// Name implements Gateway.
func (g *MyFatoorah) Name() domain.Gateway { return domain.GatewayMyFatoorah }

type mfEnvelope[T any] struct {
	IsSuccess bool   `json:"IsSuccess"`
	Message   string `json:"Message"`
	Data      T      `json:"Data"`
}

type mfSendPayment struct {
	InvoiceValue       float64 `json:"InvoiceValue"`
	CustomerName       string  `json:"CustomerName"`
	CustomerEmail      string  `json:"CustomerEmail,omitempty"`
	CustomerMobile     string  `json:"CustomerMobile,omitempty"`
	DisplayCurrencyIso string  `json:"DisplayCurrencyIso"`
	NotificationOption string  `json:"NotificationOption"`
	CallBackURL        string  `json:"CallBackUrl"`
	ErrorURL           string  `json:"ErrorUrl"`
	Language           string  `json:"Language"`
	CustomerReference  string  `json:"CustomerReference"`
}

type mfInvoice struct {
	InvoiceID  int    `json:"InvoiceId"`
	InvoiceURL string `json:"InvoiceURL"`
}

type mfStatus struct {
	InvoiceID           int     `json:"InvoiceId"`
	InvoiceStatus       string  `json:"InvoiceStatus"`
	InvoiceValue        float64 `json:"InvoiceValue"`
	CustomerReference   string  `json:"CustomerReference"`
	InvoiceTransactions []struct {
		TransactionID     string `json:"TransactionId"`
		TransactionStatus string `json:"TransactionStatus"`
		Error             string `json:"Error"`
	} `json:"InvoiceTransactions"`
}

func (g *MyFatoorah) call(ctx context.Context, path string, body, out any) error {
	return httpclient.DoJSON(ctx, g.doer, httpclient.JSONRequest{
		Method:  http.MethodPost,
		URL:     g.baseURL + path,
		Header:  http.Header{"Authorization": {"Bearer " + g.apiKey}},
		Body:    body,
		Service: "myfatoorah",
	}, out)
}

// Initiate implements Gateway.
func (g *MyFatoorah) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	lang := "EN"
	if req.Locale == "ar" {
		lang = "AR"
	}
	o := req.Order
	var resp mfEnvelope[mfInvoice]
	if err := g.call(ctx, "/v2/SendPayment", mfSendPayment{
		InvoiceValue:       o.Total,
		CustomerName:       customerName(o.Billing),
		CustomerEmail:      o.Billing.Email,
		CustomerMobile:     o.Billing.Phone,
		DisplayCurrencyIso: o.Currency,
		NotificationOption: "LNK",
		CallBackURL:        req.URLs.Success,
		ErrorURL:           req.URLs.Failure,
		Language:           lang,
		CustomerReference:  strconv.Itoa(o.ID),
	}, &resp); err != nil {
		return nil, fmt.Errorf("myfatoorah send payment: %w", err)
	}
	if !resp.IsSuccess || resp.Data.InvoiceURL == "" {
		return nil, apperrors.PaymentFailed("myfatoorah: " + resp.Message)
	}
	return &Initiation{ProviderRef: invoicePrefix + strconv.Itoa(resp.Data.InvoiceID), RedirectURL: resp.Data.InvoiceURL}, nil
}

// Verify implements Gateway. ref is the paymentId MyFatoorah appends to the
// callback URL, or the stored "invoice:<id>" reference.
func (g *MyFatoorah) Verify(ctx context.Context, ref string) (*Verification, error) {
	keyType := "PaymentId"
	if id, ok := strings.CutPrefix(ref, invoicePrefix); ok {
		keyType, ref = "InvoiceId", id
	}
	var resp mfEnvelope[mfStatus]
	if err := g.call(ctx, "/v2/GetPaymentStatus", map[string]string{"Key": ref, "KeyType": keyType}, &resp); err != nil {
		return nil, fmt.Errorf("myfatoorah payment status: %w", err)
	}
	if !resp.IsSuccess {
		g.logger.WarnContext(ctx, "myfatoorah status lookup rejected",
			slog.String("key_type", keyType),
			slog.String("message", resp.Message),
		)
		return &Verification{Status: "error", Reason: resp.Message}, nil
	}

	v := &Verification{
		Status:         strings.ToLower(resp.Data.InvoiceStatus),
		Paid:           strings.EqualFold(resp.Data.InvoiceStatus, "Paid"),
		OrderReference: resp.Data.CustomerReference,
		Amount:         resp.Data.InvoiceValue,
	}
	for _, tx := range resp.Data.InvoiceTransactions {
		if v.Paid && strings.HasPrefix(strings.ToLower(tx.TransactionStatus), "succ") {
			v.TransactionID = tx.TransactionID
		}
		if tx.Error != "" {
			v.Reason = tx.Error
		}
	}
	if v.Paid {
		v.Reason = ""
	}
	return v, nil
}
