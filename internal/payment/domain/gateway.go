package domain

// PaymentRequest is what the gateway needs to open a one-time payment.
type PaymentRequest struct {
	Amount      int64
	Phone       string
	Email       string
	ProductName string
	Memo        string
	Var1        string
	Var2        string
	OpenPayType string
}

type PaymentReceipt struct {
	MulNo  string
	PayURL string
	QRURL  string
}

type RebillRequest struct {
	Amount      int64
	Phone       string
	Email       string
	ProductName string
	Memo        string
	CycleType   CycleType
	CycleValue  int
	ExpireDate  string
	Var1        string
	Var2        string
	OpenPayType string
}

type RebillReceipt struct {
	RebillNo string
	PayURL   string
}

// Callback is the decoded webhook payload.
type Callback struct {
	UserID   string
	LinkKey  string
	LinkVal  string
	MulNo    string
	RebillNo string
	PayState string
	Price    string
	Var1     string
	Var2     string
	Details  PaymentDetails
}
