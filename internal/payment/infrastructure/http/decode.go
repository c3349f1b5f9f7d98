package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/application"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

const maxBodyBytes = 1 << 20

// flexInt accepts a JSON number or a numeric string. The UI posts form
// values as strings.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
		if len(b) == 0 {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	*n = flexInt(v)
	return nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) && ute.Field != "" {
			return apperr.Invalid(ute.Field, "has the wrong type")
		}
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("", "request body is empty")
		}
		return apperr.Invalid("", "invalid JSON body: "+err.Error())
	}
	return nil
}

type paymentRequest struct {
	Amount      flexInt `json:"amount"`
	Phone       string  `json:"phone"`
	ProductName string  `json:"productName"`
	Email       string  `json:"email"`
	Memo        string  `json:"memo"`
	Var1        string  `json:"var1"`
	Var2        string  `json:"var2"`
	OpenPayType string  `json:"openpaytype"`
}

func (p paymentRequest) input() application.PaymentInput {
	return application.PaymentInput{
		Amount:      int64(p.Amount),
		Phone:       p.Phone,
		ProductName: p.ProductName,
		Email:       p.Email,
		Memo:        p.Memo,
		Var1:        p.Var1,
		Var2:        p.Var2,
		OpenPayType: p.OpenPayType,
	}
}

// rebillRequest carries both the current field names and the names the
// legacy checkout form posts.
type rebillRequest struct {
	Amount      flexInt `json:"amount"`
	Phone       string  `json:"phone"`
	ProductName string  `json:"productName"`
	Email       string  `json:"email"`
	Memo        string  `json:"memo"`
	CycleType   string  `json:"cycleType"`
	CycleValue  flexInt `json:"cycleValue"`
	ExpireDate  string  `json:"expireDate"`
	OrderID     string  `json:"orderId"`
	Var2        string  `json:"var2"`
	OpenPayType string  `json:"openpaytype"`

	GoodName    string  `json:"goodname"`
	GoodPrice   flexInt `json:"goodprice"`
	RecvPhone   string  `json:"recvphone"`
	RecvEmail   string  `json:"recvemail"`
	LegacyCycle string  `json:"rebillCycleType"`
	CycleMonth  flexInt `json:"rebillCycleMonth"`
	CycleWeek   flexInt `json:"rebillCycleWeek"`
	Expire      string  `json:"rebillExpire"`
	Var1        string  `json:"var1"`
}

func (p rebillRequest) input() application.RebillInput {
	in := application.RebillInput{
		Amount:      int64(p.Amount),
		Phone:       first(p.Phone, p.RecvPhone),
		ProductName: first(p.ProductName, p.GoodName),
		Email:       first(p.Email, p.RecvEmail),
		Memo:        p.Memo,
		CycleType:   first(p.CycleType, p.LegacyCycle),
		CycleValue:  int(p.CycleValue),
		ExpireDate:  first(p.ExpireDate, p.Expire),
		OrderID:     first(p.OrderID, p.Var1),
		Var2:        p.Var2,
		OpenPayType: p.OpenPayType,
	}
	if in.Amount == 0 {
		in.Amount = int64(p.GoodPrice)
	}
	if in.CycleValue == 0 {
		switch domain.CycleType(in.CycleType) {
		case domain.CycleMonth:
			in.CycleValue = int(p.CycleMonth)
		case domain.CycleWeek:
			in.CycleValue = int(p.CycleWeek)
		}
	}
	return in
}

type cancelRequest struct {
	MulNo string `json:"mul_no"`
	Memo  string `json:"cancelmemo"`
}

type rebillControlRequest struct {
	RebillNo string `json:"rebill_no"`
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// decodeCallback reads the gateway notification. The gateway posts a form;
// JSON is accepted for replays and tests.
func decodeCallback(w http.ResponseWriter, r *http.Request) (domain.Callback, error) {
	fields, err := callbackFields(w, r)
	if err != nil {
		return domain.Callback{}, err
	}
	get := func(k string) string { return strings.TrimSpace(fields[k]) }
	return domain.Callback{
		UserID:   get("userid"),
		LinkKey:  get("linkkey"),
		LinkVal:  get("linkval"),
		MulNo:    get("mul_no"),
		RebillNo: get("rebill_no"),
		PayState: get("pay_state"),
		Price:    get("price"),
		Var1:     get("var1"),
		Var2:     get("var2"),
		Details: domain.PaymentDetails{
			PayType:  get("pay_type"),
			PayDate:  get("pay_date"),
			CardName: get("card_name"),
			VBank:    get("vbank"),
			VBankNo:  get("vbankno"),
			PayMemo:  get("pay_memo"),
		},
	}, nil
}

func callbackFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				fields[k] = t
			case json.Number:
				// identifiers such as mul_no keep their exact digits
				fields[k] = t.String()
			case nil:
			default:
				fields[k] = fmt.Sprint(t)
			}
		}
		return fields, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}
