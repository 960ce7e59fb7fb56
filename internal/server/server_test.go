package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditrepository "github.com/smallbiznis/nestbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/nestbill/internal/audit/service"
	"github.com/smallbiznis/nestbill/internal/authorization"
	catalogservice "github.com/smallbiznis/nestbill/internal/catalog/service"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/payment/adapters"
	"github.com/smallbiznis/nestbill/internal/payment/adapters/native"
	"github.com/smallbiznis/nestbill/internal/payment/adapters/stripe"
	"github.com/smallbiznis/nestbill/internal/payment/webhook"
	"github.com/smallbiznis/nestbill/internal/receipt"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"github.com/smallbiznis/nestbill/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type testServer struct {
	*stack.Stack
	srv *Server
}

func newTestServer(t *testing.T, apiToken string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := stack.New(t, time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC))

	enforcer, err := authorization.NewEnforcer(s.DB)
	require.NoError(t, err)

	cfg := config.Config{
		Auth: config.AuthConfig{APIToken: apiToken},
		Webhook: config.WebhookConfig{
			NativeSecret: webhookSecret,
			Tolerance:    5 * time.Minute,
		},
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:      engine,
		Cfg:      cfg,
		DB:       s.DB,
		Log:      s.Log,
		AuthzSvc: authorization.NewService(authorization.Params{Log: s.Log, Enforcer: enforcer}),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    s.DB,
			Log:   s.Log,
			GenID: s.Node,
			Repo:  auditrepository.Provide(),
		}),
		CatalogSvc:      catalogservice.NewService(catalogservice.Params{DB: s.DB, Log: s.Log, Repo: s.Plans}),
		Subs:            s.Subs,
		SubscriptionSvc: s.Subscriptions,
		TaxSvc:          s.Tax,
		WebhookSvc: webhook.NewService(webhook.Params{
			Log:      s.Log,
			Engine:   s.Engine,
			Adapters: adapters.NewRegistry(native.NewFactory(), stripe.NewFactory()),
			Cfg:      cfg,
		}),
		ReceiptSvc: receipt.NewService(receipt.Params{
			DB:      s.DB,
			Log:     s.Log,
			Records: s.InvoiceRepo,
			Subs:    s.Subs,
			Plans:   s.Plans,
			Tax:     s.Tax,
		}),
	})

	return &testServer{Stack: s, srv: srv}
}

type caller struct {
	role  string
	id    string
	token string
}

var (
	alice      = caller{role: "customer", id: "cust_alice"}
	bob        = caller{role: "customer", id: "cust_bob"}
	compliance = caller{role: "compliance", id: "auditor_1"}
	admin      = caller{role: "admin", id: "ops_1"}
)

func (ts *testServer) do(t *testing.T, who caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.role != "" {
		req.Header.Set(HeaderActorRole, who.role)
	}
	if who.id != "" {
		req.Header.Set(HeaderActorID, who.id)
	}
	if who.token != "" {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}

	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

type subscriptionBody struct {
	ID     snowflake.ID `json:"id"`
	Status string       `json:"status"`
	Access struct {
		Level string `json:"level"`
	} `json:"access"`
}

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) startTrial(t *testing.T, who caller) subscriptionBody {
	t.Helper()
	rec := ts.do(t, who, http.MethodPost, "/v1/subscriptions/trial", gin.H{
		"plan_code":    "premium-monthly",
		"jurisdiction": "CA-QC",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		Data subscriptionBody `json:"data"`
	}](t, rec).Data
}

func TestActorRequired(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, caller{}, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, caller{role: "root", id: "x"}, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, caller{role: "customer"}, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, alice, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActorRequiredChecksAPIToken(t *testing.T) {
	ts := newTestServer(t, "edge-token")

	rec := ts.do(t, alice, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrong := alice
	wrong.token = "guess"
	rec = ts.do(t, wrong, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ok := alice
	ok.token = "edge-token"
	rec = ts.do(t, ok, http.MethodGet, "/v1/plans", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, "")

	trial := ts.startTrial(t, alice)
	assert.Equal(t, "TRIALING", trial.Status)
	assert.Equal(t, "full", trial.Access.Level)

	rec := ts.do(t, alice, http.MethodPost, "/v1/subscriptions/trial", gin.H{
		"plan_code":    "premium-monthly",
		"jurisdiction": "CA-QC",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := fmt.Sprintf("/v1/subscriptions/%s", trial.ID)

	rec = ts.do(t, alice, http.MethodPost, path+"/convert", gin.H{"payment_method_ref": "pm_card_visa"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	converted := decode[struct {
		Data subscriptionBody `json:"data"`
	}](t, rec).Data
	assert.Equal(t, "ACTIVE", converted.Status)

	rec = ts.do(t, alice, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, alice, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[struct {
		Data struct {
			RefundEligible bool             `json:"refund_eligible"`
			Reason         string           `json:"reason"`
			Subscription   subscriptionBody `json:"subscription"`
		} `json:"data"`
	}](t, rec).Data
	assert.False(t, cancelled.RefundEligible)
	assert.Equal(t, "monthly_plan", cancelled.Reason)
	assert.Equal(t, "ACTIVE", cancelled.Subscription.Status)
}

func TestCustomerCannotReachAnotherCustomersSubscription(t *testing.T) {
	ts := newTestServer(t, "")
	trial := ts.startTrial(t, alice)
	path := fmt.Sprintf("/v1/subscriptions/%s", trial.ID)

	rec := ts.do(t, bob, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, bob, http.MethodPost, path+"/cancel", gin.H{"immediate": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, bob, http.MethodGet, path+"/billing-records", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, admin, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, bob, http.MethodPost, "/v1/subscriptions/trial", gin.H{
		"customer_ref": alice.id,
		"plan_code":    "premium-monthly",
		"jurisdiction": "CA",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubscriptionValidationErrors(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, alice, http.MethodGet, "/v1/subscriptions/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, alice, http.MethodPost, "/v1/subscriptions/trial", gin.H{
		"plan_code":    "premium-monthly",
		"jurisdiction": "XX-??",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "validation_error", body.Error.Type)
	require.Len(t, body.Error.Errors, 1)
	assert.Equal(t, "invalid_jurisdiction", body.Error.Errors[0].Code)

	rec = ts.do(t, alice, http.MethodPost, "/v1/subscriptions/trial", gin.H{
		"plan_code":    "enterprise",
		"jurisdiction": "CA",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, alice, http.MethodGet, "/v1/subscriptions/12345", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBillingRecordsAndReceipt(t *testing.T) {
	ts := newTestServer(t, "")
	trial := ts.startTrial(t, alice)
	path := fmt.Sprintf("/v1/subscriptions/%s", trial.ID)

	rec := ts.do(t, alice, http.MethodPost, path+"/convert", gin.H{"payment_method_ref": "pm_card_visa"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, alice, http.MethodGet, path+"/billing-records?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[struct {
		Data []struct {
			ID            snowflake.ID `json:"id"`
			InvoiceNumber string       `json:"invoice_number"`
			Total         int64        `json:"total"`
		} `json:"data"`
		PageInfo struct {
			Page    int  `json:"page"`
			HasMore bool `json:"has_more"`
		} `json:"page_info"`
	}](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, int64(1149), list.Data[0].Total)
	assert.Equal(t, 1, list.PageInfo.Page)
	assert.False(t, list.PageInfo.HasMore)

	receiptPath := fmt.Sprintf("/v1/billing-records/%s/receipt", list.Data[0].ID)
	rec = ts.do(t, alice, http.MethodGet, receiptPath, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), list.Data[0].InvoiceNumber+".pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	rec = ts.do(t, bob, http.MethodGet, receiptPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, compliance, http.MethodGet, receiptPath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, alice, http.MethodGet, path+"/billing-records?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPricingQuote(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, alice, http.MethodPost, "/v1/pricing/quote", gin.H{
		"plan_code":    "premium-monthly",
		"jurisdiction": "CA-QC",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[struct {
		Data struct {
			Subtotal int64  `json:"subtotal"`
			TaxTotal int64  `json:"tax_total"`
			Total    int64  `json:"total"`
			Currency string `json:"currency"`
		} `json:"data"`
	}](t, rec).Data
	assert.Equal(t, int64(999), quote.Subtotal)
	assert.Equal(t, int64(150), quote.TaxTotal)
	assert.Equal(t, int64(1149), quote.Total)
	assert.Equal(t, "CAD", quote.Currency)

	rec = ts.do(t, alice, http.MethodPost, "/v1/pricing/quote", gin.H{
		"amount":       999,
		"jurisdiction": "not a region",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, compliance, http.MethodPost, "/v1/pricing/quote", gin.H{
		"amount":       999,
		"jurisdiction": "CA",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditLogsRequireCompliance(t *testing.T) {
	ts := newTestServer(t, "")
	trial := ts.startTrial(t, alice)

	rec := ts.do(t, alice, http.MethodGet, "/v1/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, compliance, http.MethodGet, fmt.Sprintf("/v1/audit-logs?subscription_id=%s", trial.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decode[struct {
		Data []struct {
			Action string `json:"action"`
		} `json:"data"`
	}](t, rec)
	assert.NotEmpty(t, logs.Data)

	rec = ts.do(t, admin, http.MethodGet, "/v1/audit-logs?start_at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (ts *testServer) webhook(t *testing.T, payload string, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/native", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(native.SignatureHeader, native.SignatureHeaderValue(secret, time.Now().Unix(), []byte(payload)))
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestNativeWebhook(t *testing.T) {
	ts := newTestServer(t, "")
	trial := ts.startTrial(t, alice)

	payload := fmt.Sprintf(`{"external_event_id":"evt_http_1","kind":"payment_succeeded","subscription_ref":"%s","amount":1149,"currency":"CAD","payment_ref":"ch_http_1","occurred_at":"2025-10-03T12:00:00Z"}`, trial.ID)

	rec := ts.webhook(t, payload, "wrong-secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decode[errorBody](t, rec).Error.Type)

	rec = ts.webhook(t, payload, webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[struct {
		Data struct {
			Outcome   string `json:"outcome"`
			Duplicate bool   `json:"duplicate"`
			ToStatus  string `json:"to_status"`
		} `json:"data"`
	}](t, rec).Data
	assert.Equal(t, "APPLIED", first.Outcome)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "ACTIVE", first.ToStatus)

	rec = ts.webhook(t, payload, webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[struct {
		Data struct {
			Duplicate bool `json:"duplicate"`
		} `json:"data"`
	}](t, rec).Data
	assert.True(t, second.Duplicate)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	status, payload := mapError(fmt.Errorf("wrap: %w", ErrServiceUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "service_unavailable", payload.Type)

	status, _ = mapError(authorization.ErrForbidden)
	assert.Equal(t, http.StatusForbidden, status)

	status, payload = mapError(subscriptiondomain.ErrRefundNotIssued)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "refund_not_issued", payload.Message)

	status, _ = mapError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)

	errType, code := classifyErrorForLog(newValidationError("page", "invalid_page", "invalid page"))
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_page", code)
}
