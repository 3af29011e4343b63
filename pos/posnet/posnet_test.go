package posnet

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mstgnz/gopos/pos"
)

func testConfig(extra map[string]string) map[string]string {
	conf := map[string]string{
		"clientId":    "6706598320",
		"terminalId":  "67005551",
		"posnetId":    "27426",
		"storeKey":    "10,10,10,10,10,10,10,10",
		"model":       "regular",
		"environment": "test",
	}
	for k, v := range extra {
		conf[k] = v
	}
	return conf
}

func testCard() *pos.Card {
	return &pos.Card{
		Number:      "5555444433332222",
		ExpireYear:  "21",
		ExpireMonth: "12",
		CVV:         "122",
		HolderName:  "ahmet",
		Brand:       pos.BrandMasterCard,
	}
}

func testOrder() pos.Order {
	return pos.Order{
		ID:         "YKB_TST_190620093100_024",
		Amount:     1.75,
		Currency:   "TRY",
		SuccessURL: "https://domain.com/success",
		FailURL:    "https://domain.com/fail_url",
		IP:         "127.0.0.1",
	}
}

func newTestGateway(t *testing.T, extra map[string]string) *PosNet {
	t.Helper()
	g := NewGateway()
	if err := g.Initialize(testConfig(extra)); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return g.(*PosNet)
}

func TestFormatOrderID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"order123", "0000000000000000order123"},
		{"YKB_TST_190620093100_024", "YKB_TST_190620093100_024"},
		{"1", "000000000000000000000001"},
	}
	for _, tt := range tests {
		if got := FormatOrderID(tt.in); got != tt.want {
			t.Errorf("FormatOrderID(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := FormatOrderID(tt.in); len(got) != orderIDLength {
			t.Errorf("FormatOrderID(%q) has length %d", tt.in, len(got))
		}
	}
}

func TestCurrencyLetterCodes(t *testing.T) {
	p := newTestGateway(t, nil)
	order := testOrder()
	if err := p.Prepare(order, pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if got := p.currency(); got != "TL" {
		t.Errorf("currency() = %s, want TL", got)
	}

	order.Currency = "EUR"
	if err := p.Prepare(order, pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if got := p.currency(); got != "EU" {
		t.Errorf("currency() = %s, want EU", got)
	}
}

func TestPrepareRejectsUnmappedCurrency(t *testing.T) {
	p := newTestGateway(t, nil)
	order := testOrder()
	order.Currency = "JPY"
	if err := p.Prepare(order, pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error for JPY: %v", err)
	}

	order.Currency = "CHF"
	err := p.Prepare(order, pos.TxPay, testCard())
	if err == nil {
		t.Error("Prepare() should reject a currency without a letter code")
	}
}

func TestCreateRegularPaymentXML(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	req := p.createRegularPaymentXML()
	if req.Sale == nil {
		t.Fatal("sale element missing")
	}
	if req.Auth != nil {
		t.Error("auth element should be nil for a sale")
	}
	if req.Sale.Amount != "175" {
		t.Errorf("Amount = %s, want 175 (minor units)", req.Sale.Amount)
	}
	if req.Sale.CurrencyCode != "TL" {
		t.Errorf("CurrencyCode = %s, want TL", req.Sale.CurrencyCode)
	}
	if req.Sale.OrderID != "YKB_TST_190620093100_024" {
		t.Errorf("OrderID = %s", req.Sale.OrderID)
	}
	if req.Sale.Installment != "00" {
		t.Errorf("Installment = %s, want 00", req.Sale.Installment)
	}
	if req.Sale.ExpDate != "2112" {
		t.Errorf("ExpDate = %s, want 2112", req.Sale.ExpDate)
	}

	body, err := xml.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.HasPrefix(string(body), "<posnetRequest><mid>6706598320</mid><tid>67005551</tid>") {
		t.Errorf("unexpected envelope: %s", body)
	}
}

func TestCreateRegularPaymentXMLPreAuth(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPrePay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	req := p.createRegularPaymentXML()
	if req.Auth == nil {
		t.Fatal("auth element missing for pre-auth")
	}
	if req.Sale != nil {
		t.Error("sale element should be nil for pre-auth")
	}
}

func TestCreateCancelXML(t *testing.T) {
	p := newTestGateway(t, nil)

	order := pos.Order{ID: "order123", RefRetNum: "0000000002P0806031", AuthCode: "901477"}
	if err := p.Prepare(order, pos.TxCancel, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	req := p.createCancelXML()
	if req.Reverse == nil {
		t.Fatal("reverse element missing")
	}
	if req.Reverse.Transaction != "sale" {
		t.Errorf("Transaction = %s, want sale", req.Reverse.Transaction)
	}
	if req.Reverse.HostLogKey != "0000000002P0806031" || req.Reverse.AuthCode != "901477" {
		t.Errorf("reverse refs = %s/%s", req.Reverse.HostLogKey, req.Reverse.AuthCode)
	}
	if req.Reverse.OrderID != "" {
		t.Error("orderID should be omitted when host log key is present")
	}

	if err := p.Prepare(pos.Order{ID: "order123"}, pos.TxCancel, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	req = p.createCancelXML()
	if req.Reverse.OrderID != FormatOrderID("order123") {
		t.Errorf("OrderID = %s", req.Reverse.OrderID)
	}
}

func TestCreateRefundXML(t *testing.T) {
	p := newTestGateway(t, nil)
	order := pos.Order{ID: "order123", Amount: 1.75, Currency: "TRY"}
	if err := p.Prepare(order, pos.TxRefund, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	req := p.createRefundXML()
	if req.Return == nil {
		t.Fatal("return element missing")
	}
	if req.Return.Amount != "175" || req.Return.CurrencyCode != "TL" {
		t.Errorf("return = %s %s", req.Return.Amount, req.Return.CurrencyCode)
	}
	if req.Return.OrderID != FormatOrderID("order123") {
		t.Errorf("OrderID = %s", req.Return.OrderID)
	}
}

func TestRequestMAC(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	firstHash := hashSHA256("10,10,10,10,10,10,10,10" + ";" + "67005551")
	want := hashSHA256(FormatOrderID("YKB_TST_190620093100_024") + ";175;TL;6706598320;" + firstHash)
	if got := p.requestMAC(); got != want {
		t.Errorf("requestMAC() = %s, want %s", got, want)
	}
}

func TestVerifyResponseMAC(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	firstHash := hashSHA256("10,10,10,10,10,10,10,10" + ";" + "67005551")
	mac := hashSHA256("1;" + FormatOrderID("YKB_TST_190620093100_024") + ";175;TL;6706598320;" + firstHash)

	if !p.verifyResponseMAC("1", mac) {
		t.Error("verifyResponseMAC() = false for a valid MAC")
	}
	if p.verifyResponseMAC("0", mac) {
		t.Error("verifyResponseMAC() = true for a wrong mdStatus")
	}
	if p.verifyResponseMAC("1", "bogus") {
		t.Error("verifyResponseMAC() = true for a forged MAC")
	}
}

func TestPaymentFlowApproved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		xmldata := r.PostFormValue("xmldata")
		if !strings.Contains(xmldata, "<sale>") {
			t.Errorf("unexpected request payload: %s", xmldata)
		}
		w.Write([]byte(`<posnetResponse>
			<approved>1</approved>
			<respCode></respCode>
			<respText></respText>
			<hostlogkey>0000000002P0806031</hostlogkey>
			<authCode>901477</authCode>
			<tranDate>190703093340</tranDate>
		</posnetResponse>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"apiUrl": server.URL})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Payment(context.Background()); err != nil {
		t.Fatalf("Payment() error: %v", err)
	}

	if !p.IsSuccess() {
		t.Fatal("IsSuccess() = false, want true")
	}
	resp, err := p.Response()
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if resp.AuthCode != "901477" {
		t.Errorf("AuthCode = %s, want 901477", resp.AuthCode)
	}
	if resp.HostRefNum != "0000000002P0806031" {
		t.Errorf("HostRefNum = %s", resp.HostRefNum)
	}
}

func TestPaymentFlowDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<posnetResponse>
			<approved>0</approved>
			<respCode>0148</respCode>
			<respText>INVALID MID TID IP ERROR</respText>
		</posnetResponse>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"apiUrl": server.URL})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Payment(context.Background()); err != nil {
		t.Fatalf("Payment() error: %v", err)
	}

	if p.IsSuccess() {
		t.Fatal("IsSuccess() = true for declined transaction")
	}
	resp, _ := p.Response()
	if resp.ErrorCode != "0148" {
		t.Errorf("ErrorCode = %s, want 0148", resp.ErrorCode)
	}
	if resp.ErrorMessage != "INVALID MID TID IP ERROR" {
		t.Errorf("ErrorMessage = %s", resp.ErrorMessage)
	}
}

func TestOOSRequestFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		if !strings.Contains(r.PostFormValue("xmldata"), "<oosRequestData>") {
			t.Errorf("unexpected request payload: %s", r.PostFormValue("xmldata"))
		}
		w.Write([]byte(`<posnetResponse>
			<approved>1</approved>
			<respCode></respCode>
			<respText></respText>
			<oosRequestDataResponse>
				<data1>AEFE78BFC852867FF57078B723E284D1</data1>
				<data2>69D04861340091B7014B15B0017D14AF</data2>
				<sign>9998F61E1D0C0FB6EC5203A748124F30</sign>
			</oosRequestDataResponse>
		</posnetResponse>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"model": "3d", "apiUrl": server.URL})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Payment(context.Background()); err != nil {
		t.Fatalf("Payment() error: %v", err)
	}

	form, err := p.Get3DFormData()
	if err != nil {
		t.Fatalf("Get3DFormData() error: %v", err)
	}
	if form.GatewayURL != gatewayTestURL {
		t.Errorf("GatewayURL = %s", form.GatewayURL)
	}
	if form.Inputs["posnetData"] != "AEFE78BFC852867FF57078B723E284D1" {
		t.Errorf("posnetData = %s", form.Inputs["posnetData"])
	}
	if form.Inputs["digest"] != "9998F61E1D0C0FB6EC5203A748124F30" {
		t.Errorf("digest = %s", form.Inputs["digest"])
	}
	if form.Inputs["mid"] != "6706598320" || form.Inputs["posnetID"] != "27426" {
		t.Errorf("merchant inputs = %s/%s", form.Inputs["mid"], form.Inputs["posnetID"])
	}
}

func TestComplete3DPaymentRequiresPackets(t *testing.T) {
	p := newTestGateway(t, map[string]string{"model": "3d"})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	err := p.Complete3DPayment(context.Background(), map[string]string{})
	if _, ok := err.(*pos.ValidationError); !ok {
		t.Errorf("Complete3DPayment() error = %v, want *pos.ValidationError", err)
	}
}

func TestStatusUsesAgreement(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(pos.Order{ID: "order123"}, pos.TxStatus, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	req := p.createStatusXML()
	if req.Agreement == nil {
		t.Fatal("agreement element missing")
	}
	if req.Agreement.OrderID != FormatOrderID("order123") {
		t.Errorf("OrderID = %s", req.Agreement.OrderID)
	}
}

func TestPaymentFlowMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("upstream proxy error: not an xml document"))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"apiUrl": server.URL})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Payment(context.Background()); err != nil {
		t.Fatalf("Payment() error: %v, want nil for malformed body", err)
	}

	resp, err := p.Response()
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if resp.Success {
		t.Error("Success = true for malformed body")
	}
	if resp.Status != pos.StatusError {
		t.Errorf("Status = %s, want error", resp.Status)
	}
}

func TestPrepareUnknownTxType(t *testing.T) {
	p := newTestGateway(t, nil)

	err := p.Prepare(testOrder(), pos.TxType("teleport"), testCard())
	if _, ok := err.(*pos.ValidationError); !ok {
		t.Errorf("Prepare() error = %v, want *pos.ValidationError", err)
	}
	if p.State() != pos.StateUnprepared {
		t.Errorf("State = %s, want unprepared", p.State())
	}
}
