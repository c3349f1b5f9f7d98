// Package payapp is the client for the PayApp form-encoded RPC endpoint.
package payapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/config"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

const (
	cmdPayRequest   = "payrequest"
	cmdPayCancel    = "paycancel"
	cmdRebillRegist = "rebillRegist"
	cmdRebillCancel = "rebillCancel"
	cmdRebillStop   = "rebillStop"
	cmdRebillStart  = "rebillStart"

	stateOK = "1"
)

var rebillCommands = map[domain.RebillAction]string{
	domain.RebillCancel: cmdRebillCancel,
	domain.RebillStop:   cmdRebillStop,
	domain.RebillStart:  cmdRebillStart,
}

type Client struct {
	log      *slog.Logger
	http     *resty.Client
	merchant config.Merchant
}

func NewClient(log *slog.Logger, merchant config.Merchant) *Client {
	httpClient := resty.New().
		SetTimeout(merchant.Timeout).
		SetHeader("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	return &Client{log: log, http: httpClient, merchant: merchant}
}

func (c *Client) IssuePayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentReceipt, error) {
	resp, err := c.call(ctx, cmdPayRequest, Fields{
		"goodname":     req.ProductName,
		"price":        strconv.FormatInt(req.Amount, 10),
		"recvphone":    req.Phone,
		"recvemail":    req.Email,
		"memo":         req.Memo,
		"feedbackurl":  c.merchant.FeedbackURL,
		"var1":         req.Var1,
		"var2":         req.Var2,
		"openpaytype":  req.OpenPayType,
		"smsuse":       "n",
		"skip_cstpage": "y",
		"checkretry":   "y",
	})
	if err != nil {
		return domain.PaymentReceipt{}, err
	}
	return domain.PaymentReceipt{
		MulNo:  resp.Get("mul_no"),
		PayURL: unescapeURL(resp.Get("payurl")),
		QRURL:  unescapeURL(resp.Get("qrurl")),
	}, nil
}

func (c *Client) IssueRebill(ctx context.Context, req domain.RebillRequest) (domain.RebillReceipt, error) {
	var month, week string
	switch req.CycleType {
	case domain.CycleMonth:
		month = strconv.Itoa(req.CycleValue)
	case domain.CycleWeek:
		week = strconv.Itoa(req.CycleValue)
	}

	resp, err := c.call(ctx, cmdRebillRegist, Fields{
		"goodname":         req.ProductName,
		"goodprice":        strconv.FormatInt(req.Amount, 10),
		"recvphone":        req.Phone,
		"recvemail":        req.Email,
		"memo":             req.Memo,
		"rebillCycleType":  string(req.CycleType),
		"rebillCycleMonth": month,
		"rebillCycleWeek":  week,
		"rebillExpire":     req.ExpireDate,
		"feedbackurl":      c.merchant.FeedbackURL,
		"var1":             req.Var1,
		"var2":             req.Var2,
		"openpaytype":      req.OpenPayType,
		"smsuse":           "n",
	})
	if err != nil {
		return domain.RebillReceipt{}, err
	}
	return domain.RebillReceipt{
		RebillNo: resp.Get("rebill_no"),
		PayURL:   unescapeURL(resp.Get("payurl")),
	}, nil
}

// CancelPayment always requests a full cancel.
func (c *Client) CancelPayment(ctx context.Context, mulNo, memo string) error {
	_, err := c.call(ctx, cmdPayCancel, Fields{
		"linkkey":     c.merchant.LinkKey,
		"mul_no":      mulNo,
		"cancelmemo":  memo,
		"partcancel":  "0",
		"cancelprice": "",
	})
	return err
}

func (c *Client) RebillControl(ctx context.Context, rebillNo string, action domain.RebillAction) error {
	cmd, ok := rebillCommands[action]
	if !ok {
		return apperr.Invalid("action", "unknown rebill action")
	}
	_, err := c.call(ctx, cmd, Fields{
		"linkkey":   c.merchant.LinkKey,
		"rebill_no": rebillNo,
	})
	return err
}

// call performs one round trip. Transport failures, timeouts and unreadable
// responses are ErrGatewayUnreachable; a readable state other than "1" is a
// GatewayRejectedError.
func (c *Client) call(ctx context.Context, cmd string, params Fields) (Fields, error) {
	params["cmd"] = cmd
	params["userid"] = c.merchant.UserID

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(Encode(params)).
		Post(c.merchant.APIURL)
	if err != nil {
		c.log.ErrorContext(ctx, "gateway call failed", "cmd", cmd, "err", err)
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrGatewayUnreachable, cmd, err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.log.ErrorContext(ctx, "gateway returned http error", "cmd", cmd, "status", resp.StatusCode())
		return nil, fmt.Errorf("%w: %s: http status %d", apperr.ErrGatewayUnreachable, cmd, resp.StatusCode())
	}

	fields, err := Decode(resp.Body())
	if err != nil {
		c.log.ErrorContext(ctx, "gateway response unreadable", "cmd", cmd, "err", err)
		return nil, fmt.Errorf("%w: %s: decode response: %v", apperr.ErrGatewayUnreachable, cmd, err)
	}

	if fields.Get("state") != stateOK {
		msg := fields.Get("errorMessage")
		if msg == "" {
			msg = "payment gateway rejected the request"
		}
		c.log.WarnContext(ctx, "gateway rejected", "cmd", cmd, "errno", fields.Get("errno"), "message", msg)
		return nil, &apperr.GatewayRejectedError{Code: fields.Get("errno"), Message: msg}
	}

	c.log.DebugContext(ctx, "gateway call ok", "cmd", cmd, "duration", resp.Time())
	return fields, nil
}
