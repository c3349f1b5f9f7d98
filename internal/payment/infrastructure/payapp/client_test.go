package payapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/config"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

// fakeGateway records the last form it received and replies with body.
type fakeGateway struct {
	mu    sync.Mutex
	form  url.Values
	ctype string
	body  string
	delay time.Duration
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.form = r.PostForm
	g.ctype = r.Header.Get("Content-Type")
	body, delay := g.body, g.delay
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	_, _ = io.WriteString(w, body)
}

func (g *fakeGateway) lastForm() url.Values {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.form
}

func newClient(t *testing.T, g *fakeGateway, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), config.Merchant{
		APIURL:      srv.URL,
		UserID:      "merchant",
		LinkKey:     "key",
		LinkVal:     "val",
		FeedbackURL: "https://shop.example/api/payapp/callback",
		Timeout:     timeout,
	})
}

func TestIssuePayment_Success(t *testing.T) {
	g := &fakeGateway{body: "state=1&mul_no=555&payurl=https%253A%252F%252Fpay.example%252F555&qrurl=https%3A%2F%2Fpay.example%2Fqr%2F555"}
	c := newClient(t, g, time.Second)

	got, err := c.IssuePayment(context.Background(), domain.PaymentRequest{
		Amount:      10000,
		Phone:       "01012345678",
		ProductName: "Widget",
		Var1:        "ORDER_1",
	})
	if err != nil {
		t.Fatalf("IssuePayment: %v", err)
	}
	if got.MulNo != "555" || got.PayURL != "https://pay.example/555" || got.QRURL != "https://pay.example/qr/555" {
		t.Fatalf("unexpected receipt %+v", got)
	}

	form := g.lastForm()
	want := map[string]string{
		"cmd":         "payrequest",
		"userid":      "merchant",
		"goodname":    "Widget",
		"price":       "10000",
		"recvphone":   "01012345678",
		"var1":        "ORDER_1",
		"feedbackurl": "https://shop.example/api/payapp/callback",
		"checkretry":  "y",
	}
	for k, v := range want {
		if form.Get(k) != v {
			t.Errorf("form[%s] = %q, want %q", k, form.Get(k), v)
		}
	}
	if form.Has("linkval") {
		t.Error("linkval must never be sent to the gateway")
	}
}

func TestIssuePayment_Rejected(t *testing.T) {
	g := &fakeGateway{body: "state=0&errorMessage=insufficient+info&errno=70010"}
	c := newClient(t, g, time.Second)

	_, err := c.IssuePayment(context.Background(), domain.PaymentRequest{Amount: 1, Phone: "p", ProductName: "n"})
	var rejected *apperr.GatewayRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected GatewayRejectedError, got %v", err)
	}
	if rejected.Message != "insufficient info" || rejected.Code != "70010" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
}

func TestIssuePayment_MissingStateIsRejection(t *testing.T) {
	c := newClient(t, &fakeGateway{body: "foo=bar"}, time.Second)

	_, err := c.IssuePayment(context.Background(), domain.PaymentRequest{Amount: 1, Phone: "p", ProductName: "n"})
	var rejected *apperr.GatewayRejectedError
	if !errors.As(err, &rejected) || rejected.Message == "" {
		t.Fatalf("expected rejection with default message, got %v", err)
	}
}

func TestCall_Timeout(t *testing.T) {
	g := &fakeGateway{body: "state=1", delay: 300 * time.Millisecond}
	c := newClient(t, g, 50*time.Millisecond)

	err := c.CancelPayment(context.Background(), "555", "memo")
	if !errors.Is(err, apperr.ErrGatewayUnreachable) {
		t.Fatalf("expected ErrGatewayUnreachable, got %v", err)
	}
}

func TestCall_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), config.Merchant{APIURL: addr, Timeout: time.Second})
	_, err := c.IssueRebill(context.Background(), domain.RebillRequest{CycleType: domain.CycleDay})
	if !errors.Is(err, apperr.ErrGatewayUnreachable) {
		t.Fatalf("expected ErrGatewayUnreachable, got %v", err)
	}
}

func TestCall_HTTPErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), config.Merchant{APIURL: srv.URL, Timeout: time.Second})
	if err := c.CancelPayment(context.Background(), "1", "m"); !errors.Is(err, apperr.ErrGatewayUnreachable) {
		t.Fatalf("expected ErrGatewayUnreachable, got %v", err)
	}
}

func TestCancelPayment_FullCancelOnly(t *testing.T) {
	g := &fakeGateway{body: "state=1"}
	c := newClient(t, g, time.Second)

	if err := c.CancelPayment(context.Background(), "555", "customer request"); err != nil {
		t.Fatalf("CancelPayment: %v", err)
	}
	form := g.lastForm()
	if form.Get("cmd") != "paycancel" || form.Get("mul_no") != "555" || form.Get("partcancel") != "0" || form.Get("linkkey") != "key" {
		t.Fatalf("unexpected form %v", form)
	}
}

func TestIssueRebill_CycleFields(t *testing.T) {
	g := &fakeGateway{body: "state=1&rebill_no=R100&payurl=https%3A%2F%2Fpay.example%2Fr%2FR100"}
	c := newClient(t, g, time.Second)

	got, err := c.IssueRebill(context.Background(), domain.RebillRequest{
		Amount:      9900,
		Phone:       "01012345678",
		ProductName: "Plan",
		CycleType:   domain.CycleWeek,
		CycleValue:  3,
		ExpireDate:  "2030-01-01",
		Var1:        "REBILL_1",
	})
	if err != nil {
		t.Fatalf("IssueRebill: %v", err)
	}
	if got.RebillNo != "R100" || got.PayURL != "https://pay.example/r/R100" {
		t.Fatalf("unexpected receipt %+v", got)
	}

	form := g.lastForm()
	if form.Get("cmd") != "rebillRegist" || form.Get("rebillCycleWeek") != "3" || form.Get("rebillCycleMonth") != "" ||
		form.Get("goodprice") != "9900" || form.Get("rebillExpire") != "2030-01-01" {
		t.Fatalf("unexpected form %v", form)
	}
}

func TestRebillControl_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action domain.RebillAction
		cmd    string
	}{
		{action: domain.RebillCancel, cmd: "rebillCancel"},
		{action: domain.RebillStop, cmd: "rebillStop"},
		{action: domain.RebillStart, cmd: "rebillStart"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.action), func(t *testing.T) {
			t.Parallel()

			g := &fakeGateway{body: "state=1"}
			c := newClient(t, g, time.Second)
			if err := c.RebillControl(context.Background(), "R100", tt.action); err != nil {
				t.Fatalf("RebillControl: %v", err)
			}
			form := g.lastForm()
			if form.Get("cmd") != tt.cmd || form.Get("rebill_no") != "R100" {
				t.Fatalf("unexpected form %v", form)
			}
		})
	}

	c := newClient(t, &fakeGateway{body: "state=1"}, time.Second)
	if err := c.RebillControl(context.Background(), "R1", "pause"); apperr.Kind(err) != "validation" {
		t.Fatalf("expected validation error, got %v", err)
	}
}
