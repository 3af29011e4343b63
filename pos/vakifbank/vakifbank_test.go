package vakifbank

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-querystring/query"
	"github.com/mstgnz/gopos/pos"
)

func testConfig(extra map[string]string) map[string]string {
	conf := map[string]string{
		"clientId":    "000000000111111",
		"password":    "3XTgER89as",
		"terminalId":  "VP999999",
		"model":       "3d",
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
		ExpireYear:  "2021",
		ExpireMonth: "12",
		CVV:         "122",
		HolderName:  "John Doe",
		Brand:       pos.BrandMasterCard,
	}
}

func testOrder() pos.Order {
	return pos.Order{
		ID:         "order222",
		Name:       "siparis veren kullanici adi",
		Email:      "mail@customer.com",
		Amount:     100.00,
		Currency:   "TRY",
		SuccessURL: "https://domain.com/success",
		FailURL:    "https://domain.com/fail_url",
		IP:         "127.0.0.1",
		Rand:       "rand123",
	}
}

func newTestGateway(t *testing.T, extra map[string]string) *VakifBankPos {
	t.Helper()
	g := NewGateway()
	if err := g.Initialize(testConfig(extra)); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return g.(*VakifBankPos)
}

func TestNewGateway(t *testing.T) {
	g := NewGateway()
	if g == nil {
		t.Fatal("NewGateway() returned nil")
	}
	if _, ok := g.(*VakifBankPos); !ok {
		t.Fatal("NewGateway() did not return *VakifBankPos")
	}
}

func TestInitialize(t *testing.T) {
	p := newTestGateway(t, nil)

	if p.apiURL != apiTestURL {
		t.Errorf("apiURL = %s, want %s", p.apiURL, apiTestURL)
	}
	if p.enrollmentURL != enrollmentTestURL {
		t.Errorf("enrollmentURL = %s, want %s", p.enrollmentURL, enrollmentTestURL)
	}
	if p.Account().MerchantType != "0" {
		t.Errorf("MerchantType = %s, want 0", p.Account().MerchantType)
	}
}

func TestInitializeProduction(t *testing.T) {
	p := newTestGateway(t, map[string]string{"environment": "production"})

	if p.apiURL != apiProductionURL {
		t.Errorf("apiURL = %s, want %s", p.apiURL, apiProductionURL)
	}
	if p.enrollmentURL != enrollmentProductionURL {
		t.Errorf("enrollmentURL = %s, want %s", p.enrollmentURL, enrollmentProductionURL)
	}
}

func TestValidateConfigMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		drop    string
		wantErr bool
	}{
		{"valid config", "", false},
		{"missing clientId", "clientId", true},
		{"missing password", "password", true},
		{"missing terminalId", "terminalId", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConfig(nil)
			if tt.drop != "" {
				delete(conf, tt.drop)
			}
			err := NewGateway().ValidateConfig(conf)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateRegularPaymentXML(t *testing.T) {
	p := newTestGateway(t, map[string]string{"model": "regular"})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	got, err := xml.Marshal(p.createRegularPaymentXML())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := "<VposRequest>" +
		"<MerchantId>000000000111111</MerchantId>" +
		"<Password>3XTgER89as</Password>" +
		"<TerminalNo>VP999999</TerminalNo>" +
		"<TransactionType>Sale</TransactionType>" +
		"<OrderId>order222</OrderId>" +
		"<CurrencyAmount>100.00</CurrencyAmount>" +
		"<CurrencyCode>949</CurrencyCode>" +
		"<ClientIp>127.0.0.1</ClientIp>" +
		"<TransactionDeviceSource>0</TransactionDeviceSource>" +
		"<Pan>5555444433332222</Pan>" +
		"<Expiry>202112</Expiry>" +
		"<Cvv>122</Cvv>" +
		"</VposRequest>"
	if string(got) != want {
		t.Errorf("payment XML mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestCreate3DPaymentXML(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	callback := map[string]string{
		"Status":                    "Y",
		"Eci":                       "05",
		"Cavv":                      "cavv-value",
		"VerifyEnrollmentRequestId": "mpi-tx-id",
	}
	got, err := xml.Marshal(p.create3DPaymentXML(callback))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := "<VposRequest>" +
		"<MerchantId>000000000111111</MerchantId>" +
		"<Password>3XTgER89as</Password>" +
		"<TerminalNo>VP999999</TerminalNo>" +
		"<TransactionType>Sale</TransactionType>" +
		"<OrderId>order222</OrderId>" +
		"<ClientIp>127.0.0.1</ClientIp>" +
		"<OrderDescription></OrderDescription>" +
		"<TransactionId>rand123</TransactionId>" +
		"<Cvv>122</Cvv>" +
		"<CardHoldersName>John Doe</CardHoldersName>" +
		"<ECI>05</ECI>" +
		"<CAVV>cavv-value</CAVV>" +
		"<MpiTransactionId>mpi-tx-id</MpiTransactionId>" +
		"<TransactionDeviceSource>0</TransactionDeviceSource>" +
		"</VposRequest>"
	if string(got) != want {
		t.Errorf("3D payment XML mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestCreateCancelXML(t *testing.T) {
	p := newTestGateway(t, nil)
	order := pos.Order{ID: "ref-tx-id", IP: "127.0.0.1"}
	if err := p.Prepare(order, pos.TxCancel, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	got, err := xml.Marshal(p.createCancelXML())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := "<VposRequest>" +
		"<MerchantId>000000000111111</MerchantId>" +
		"<Password>3XTgER89as</Password>" +
		"<TransactionType>Cancel</TransactionType>" +
		"<ReferenceTransactionId>ref-tx-id</ReferenceTransactionId>" +
		"<ClientIp>127.0.0.1</ClientIp>" +
		"</VposRequest>"
	if string(got) != want {
		t.Errorf("cancel XML mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestCreateRefundXML(t *testing.T) {
	p := newTestGateway(t, nil)
	order := pos.Order{ID: "ref-tx-id", IP: "127.0.0.1", Amount: 118.15, Currency: "TRY"}
	if err := p.Prepare(order, pos.TxRefund, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	got, err := xml.Marshal(p.createRefundXML())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	want := "<VposRequest>" +
		"<MerchantId>000000000111111</MerchantId>" +
		"<Password>3XTgER89as</Password>" +
		"<TransactionType>Refund</TransactionType>" +
		"<ReferenceTransactionId>ref-tx-id</ReferenceTransactionId>" +
		"<ClientIp>127.0.0.1</ClientIp>" +
		"<CurrencyAmount>118.15</CurrencyAmount>" +
		"</VposRequest>"
	if string(got) != want {
		t.Errorf("refund XML mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestCreate3DEnrollmentCheckData(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	values, err := query.Values(p.create3DEnrollmentCheckData())
	if err != nil {
		t.Fatalf("query.Values() error: %v", err)
	}

	want := map[string]string{
		"MerchantId":                "000000000111111",
		"MerchantPassword":          "3XTgER89as",
		"MerchantType":              "0",
		"PurchaseAmount":            "100.00",
		"VerifyEnrollmentRequestId": "rand123",
		"Currency":                  "949",
		"SuccessUrl":                "https://domain.com/success",
		"FailureUrl":                "https://domain.com/fail_url",
		"Pan":                       "5555444433332222",
		"ExpiryDate":                "202112",
		"BrandName":                 "200",
		"IsRecurring":               "false",
	}
	for key, wantVal := range want {
		if got := values.Get(key); got != wantVal {
			t.Errorf("enrollment field %s = %q, want %q", key, got, wantVal)
		}
	}
	if values.Has("InstallmentCount") {
		t.Error("InstallmentCount should be omitted for single payments")
	}
	if values.Has("RecurringFrequency") {
		t.Error("RecurringFrequency should be omitted for non-recurring orders")
	}
}

func TestCreate3DEnrollmentCheckDataRecurring(t *testing.T) {
	p := newTestGateway(t, nil)
	order := testOrder()
	order.Installment = 2
	order.RecurringFrequency = 3
	order.RecurringFrequencyType = "MONTH"
	order.RecurringInstallmentCount = 2
	if err := p.Prepare(order, pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	values, err := query.Values(p.create3DEnrollmentCheckData())
	if err != nil {
		t.Fatalf("query.Values() error: %v", err)
	}

	checks := map[string]string{
		"IsRecurring":               "true",
		"InstallmentCount":          "2",
		"RecurringFrequency":        "3",
		"RecurringFrequencyType":    "Month",
		"RecurringInstallmentCount": "2",
	}
	for key, wantVal := range checks {
		if got := values.Get(key); got != wantVal {
			t.Errorf("enrollment field %s = %q, want %q", key, got, wantVal)
		}
	}
}

func TestMapRecurringFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MONTH", "Month"},
		{"day", "Day"},
		{"Year", "Year"},
		{"Week", "Week"},
	}
	for _, tt := range tests {
		if got := mapRecurringFrequency(tt.in); got != tt.want {
			t.Errorf("mapRecurringFrequency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPaymentFlowApproved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		prmstr := r.PostFormValue("prmstr")
		if !strings.Contains(prmstr, "<TransactionType>Sale</TransactionType>") {
			t.Errorf("unexpected request payload: %s", prmstr)
		}
		w.Write([]byte(`<VposResponse>
			<ResultCode>0000</ResultCode>
			<ResultDetail>İŞLEM BAŞARILI</ResultDetail>
			<OrderId>order222</OrderId>
			<TransactionId>tx-12345</TransactionId>
			<AuthCode>822641</AuthCode>
			<Rrn>922810016639</Rrn>
		</VposResponse>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"model": "regular", "apiUrl": server.URL})
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
	if resp.Status != pos.StatusApproved {
		t.Errorf("Status = %s, want approved", resp.Status)
	}
	if resp.AuthCode != "822641" {
		t.Errorf("AuthCode = %s, want 822641", resp.AuthCode)
	}
	if resp.HostRefNum != "922810016639" {
		t.Errorf("HostRefNum = %s, want 922810016639", resp.HostRefNum)
	}
	if resp.TransactionID != "tx-12345" {
		t.Errorf("TransactionID = %s, want tx-12345", resp.TransactionID)
	}
}

func TestPaymentFlowDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<VposResponse>
			<ResultCode>0312</ResultCode>
			<ResultDetail>RED-GECERSIZ KART</ResultDetail>
		</VposResponse>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"model": "regular", "apiUrl": server.URL})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Payment(context.Background()); err != nil {
		t.Fatalf("Payment() error: %v", err)
	}

	if p.IsSuccess() {
		t.Fatal("IsSuccess() = true for declined transaction")
	}
	resp, err := p.Response()
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if resp.Status != pos.StatusDeclined {
		t.Errorf("Status = %s, want declined", resp.Status)
	}
	if resp.ErrorCode != "0312" {
		t.Errorf("ErrorCode = %s, want 0312", resp.ErrorCode)
	}
	if resp.ErrorMessage != "RED-GECERSIZ KART" {
		t.Errorf("ErrorMessage = %s, want RED-GECERSIZ KART", resp.ErrorMessage)
	}
}

func TestEnrollmentFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<IPaySecure>
			<Message>
				<VERes>
					<Status>Y</Status>
					<PaReq>pa-req-data</PaReq>
					<TermUrl>https://domain.com/success</TermUrl>
					<MD>md-data</MD>
					<ACSUrl>https://acs.bank.com/challenge</ACSUrl>
				</VERes>
			</Message>
		</IPaySecure>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"enrollmentUrl": server.URL})
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
	if form.GatewayURL != "https://acs.bank.com/challenge" {
		t.Errorf("GatewayURL = %s", form.GatewayURL)
	}
	if form.Inputs["PaReq"] != "pa-req-data" || form.Inputs["MD"] != "md-data" {
		t.Errorf("unexpected form inputs: %v", form.Inputs)
	}
}

func TestEnrollmentNotEnrolled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<IPaySecure>
			<MessageErrorCode>2005</MessageErrorCode>
			<ErrorMessage>Merchant cannot be found for this bank</ErrorMessage>
			<Message><VERes><Status>E</Status></VERes></Message>
		</IPaySecure>`))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"enrollmentUrl": server.URL})
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Payment(context.Background()); err != nil {
		t.Fatalf("Payment() error: %v", err)
	}

	if p.IsSuccess() {
		t.Fatal("IsSuccess() = true for failed enrollment")
	}
	resp, err := p.Response()
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if resp.ErrorCode != "2005" {
		t.Errorf("ErrorCode = %s, want 2005", resp.ErrorCode)
	}
}

func TestComplete3DPaymentFailedAuth(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Complete3DPayment(context.Background(), map[string]string{"Status": "N"}); err != nil {
		t.Fatalf("Complete3DPayment() error: %v", err)
	}

	resp, err := p.Response()
	if err != nil {
		t.Fatalf("Response() error: %v", err)
	}
	if resp.Status != pos.StatusDeclined {
		t.Errorf("Status = %s, want declined", resp.Status)
	}
}

func TestStatusAndHistoryNotSupported(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(pos.Order{ID: "order222"}, pos.TxStatus, nil); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Status(context.Background()); err != pos.ErrNotSupported {
		t.Errorf("Status() error = %v, want ErrNotSupported", err)
	}
	if err := p.History(context.Background()); err != pos.ErrNotSupported {
		t.Errorf("History() error = %v, want ErrNotSupported", err)
	}
}

func TestTriggerMismatch(t *testing.T) {
	p := newTestGateway(t, nil)
	if err := p.Prepare(testOrder(), pos.TxPay, testCard()); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	err := p.Cancel(context.Background())
	if _, ok := err.(*pos.StateError); !ok {
		t.Errorf("Cancel() after pay prepare = %v, want *pos.StateError", err)
	}
}

func TestResponseBeforeCompletion(t *testing.T) {
	p := newTestGateway(t, nil)
	if _, err := p.Response(); err == nil {
		t.Error("Response() before completion should fail")
	}
}

func TestServicePayNotEnrolled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<IPaySecure>
			<MessageErrorCode>2005</MessageErrorCode>
			<ErrorMessage>Merchant cannot be found for this bank</ErrorMessage>
			<Message><VERes><Status>N</Status></VERes></Message>
		</IPaySecure>`))
	}))
	defer server.Close()

	service := pos.NewPaymentService(nil)
	conf := testConfig(map[string]string{"enrollmentUrl": server.URL})

	result, err := service.Pay(context.Background(), "vakifbank", conf, testOrder(), testCard())
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}
	if result.Form != nil {
		t.Fatal("Pay() returned a redirect form for a not-enrolled card")
	}
	if result.Response == nil {
		t.Fatal("Pay() returned no response for a not-enrolled card")
	}
	if result.Response.Status != pos.StatusDeclined {
		t.Errorf("Status = %s, want declined", result.Response.Status)
	}
	if result.Response.ErrorCode != "2005" {
		t.Errorf("ErrorCode = %s, want 2005", result.Response.ErrorCode)
	}
}

func TestServiceComplete3D(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		prmstr := r.PostFormValue("prmstr")
		if !strings.Contains(prmstr, "<Cvv>122</Cvv>") {
			t.Errorf("completion request is missing the card CVV: %s", prmstr)
		}
		if !strings.Contains(prmstr, "<CardHoldersName>John Doe</CardHoldersName>") {
			t.Errorf("completion request is missing the holder name: %s", prmstr)
		}
		w.Write([]byte(`<VposResponse>
			<ResultCode>0000</ResultCode>
			<ResultDetail>İŞLEM BAŞARILI</ResultDetail>
			<OrderId>order222</OrderId>
			<TransactionId>tx-12345</TransactionId>
			<AuthCode>822641</AuthCode>
		</VposResponse>`))
	}))
	defer server.Close()

	service := pos.NewPaymentService(nil)
	conf := testConfig(map[string]string{"apiUrl": server.URL})
	callback := map[string]string{
		"Status":                    "Y",
		"Eci":                       "05",
		"Cavv":                      "cavv-value",
		"VerifyEnrollmentRequestId": "mpi-tx-id",
	}

	resp, err := service.Complete3D(context.Background(), "vakifbank", conf, testOrder(), testCard(), callback)
	if err != nil {
		t.Fatalf("Complete3D() error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Complete3D() Status = %s, want approved: %s %s", resp.Status, resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.AuthCode != "822641" {
		t.Errorf("AuthCode = %s, want 822641", resp.AuthCode)
	}
}

func TestPaymentFlowMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("upstream proxy error: not an xml document"))
	}))
	defer server.Close()

	p := newTestGateway(t, map[string]string{"model": "regular", "apiUrl": server.URL})
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
