package vakifbank

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
	"github.com/mstgnz/gopos/pos"
)

const (
	apiTestURL       = "https://onlineodemetest.vakifbank.com.tr:4443/VposService/v3/Vposreq.aspx"
	apiProductionURL = "https://onlineodeme.vakifbank.com.tr:4443/VposService/v3/Vposreq.aspx"

	enrollmentTestURL       = "https://3dsecuretest.vakifbank.com.tr:4443/MPIAPI/MPI_Enrollment.aspx"
	enrollmentProductionURL = "https://3dsecure.vakifbank.com.tr:4443/MPIAPI/MPI_Enrollment.aspx"
)

// txTypes maps transaction kinds to PayFlex TransactionType values.
var txTypes = map[pos.TxType]string{
	pos.TxPay:     "Sale",
	pos.TxPrePay:  "Auth",
	pos.TxPostPay: "Capture",
	pos.TxCancel:  "Cancel",
	pos.TxRefund:  "Refund",
}

// cardBrands maps card schemes to PayFlex BrandName codes.
var cardBrands = map[pos.Brand]string{
	pos.BrandVisa:       "100",
	pos.BrandMasterCard: "200",
	pos.BrandTroy:       "300",
}

// recurringFrequencies maps caller frequency types to PayFlex wording.
var recurringFrequencies = map[string]string{
	"day":   "Day",
	"month": "Month",
	"year":  "Year",
}

// VakifBankPos drives VakıfBank's PayFlex VPOS 7/24 gateway. Requests are
// XML documents posted as the prmstr form field; 3D Secure runs through the
// MPI enrollment endpoint. Amounts use the two-decimal string convention
// ("1000.00") with numeric currency codes.
type VakifBankPos struct {
	pos.Flow

	account       pos.Account
	apiURL        string
	enrollmentURL string
	httpClient    *pos.HTTPClient

	order    pos.PreparedOrder
	card     *pos.Card
	formData *pos.ThreeDFormData
}

// NewGateway creates a new VakıfBank PayFlex gateway.
func NewGateway() pos.Gateway {
	return &VakifBankPos{}
}

// GetRequiredConfig returns the account fields required by PayFlex.
func (p *VakifBankPos) GetRequiredConfig(environment string) []pos.ConfigField {
	return []pos.ConfigField{
		{
			Key:         "clientId",
			Required:    true,
			Type:        "string",
			Description: "VakıfBank merchant id (MerchantId)",
			Example:     "000000000111111",
			MinLength:   5,
			MaxLength:   20,
		},
		{
			Key:         "password",
			Required:    true,
			Type:        "string",
			Description: "VakıfBank merchant password",
			Example:     "3XTgER89as",
			MinLength:   5,
			MaxLength:   50,
		},
		{
			Key:         "terminalId",
			Required:    true,
			Type:        "string",
			Description: "VakıfBank terminal number (TerminalNo)",
			Example:     "VP999999",
			MinLength:   5,
			MaxLength:   20,
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment setting (test or production)",
			Example:     "test",
			Pattern:     "^(test|production)$",
		},
	}
}

// ValidateConfig validates the provided configuration against PayFlex
// requirements.
func (p *VakifBankPos) ValidateConfig(conf map[string]string) error {
	return pos.ValidateConfigFields("vakifbank", conf, p.GetRequiredConfig(conf["environment"]))
}

// Initialize sets up the gateway with account credentials.
func (p *VakifBankPos) Initialize(conf map[string]string) error {
	account, err := pos.AccountFromConfig("vakifbank", conf)
	if err != nil {
		return err
	}
	if account.ClientID == "" || account.Password == "" || account.TerminalID == "" {
		return fmt.Errorf("vakifbank: clientId, password and terminalId are required")
	}
	if account.MerchantType == "" {
		account.MerchantType = "0"
	}
	p.account = account

	p.apiURL = apiTestURL
	p.enrollmentURL = enrollmentTestURL
	if account.IsProduction() {
		p.apiURL = apiProductionURL
		p.enrollmentURL = enrollmentProductionURL
	}
	// Both endpoints can be overridden for proxies and bank-side moves.
	if v := conf["apiUrl"]; v != "" {
		p.apiURL = v
	}
	if v := conf["enrollmentUrl"]; v != "" {
		p.enrollmentURL = v
	}

	p.httpClient = pos.NewHTTPClient("vakifbank", pos.NewHTTPClientConfig(account.Environment))
	return nil
}

// Account returns the account the gateway was initialized with.
func (p *VakifBankPos) Account() pos.Account {
	return p.account
}

// Prepare normalizes the order and stores the transaction context.
func (p *VakifBankPos) Prepare(order pos.Order, tx pos.TxType, card *pos.Card) error {
	if _, ok := txTypes[tx]; !ok && tx != pos.TxStatus && tx != pos.TxHistory {
		return &pos.ValidationError{Bank: "vakifbank", Field: "txType", Reason: fmt.Sprintf("unknown transaction type %q", tx)}
	}

	prepared, err := pos.PrepareOrder(order, tx)
	if err != nil {
		return err
	}

	p.order = prepared
	p.card = card
	p.formData = nil
	p.SetPrepared(tx)
	return nil
}

// Payment fires the prepared pay/pre-pay/post-pay transaction. On 3D model
// accounts the MPI enrollment check runs first and the challenge redirect
// form becomes available via Get3DFormData.
func (p *VakifBankPos) Payment(ctx context.Context) error {
	if err := p.Require("Payment", pos.StatePrepared); err != nil {
		return err
	}

	switch p.TxType() {
	case pos.TxPay, pos.TxPrePay:
		if p.account.Is3D() {
			return p.enrollmentCheck(ctx)
		}
		if p.card == nil {
			return &pos.ValidationError{Bank: "vakifbank", Field: "card", Reason: "required for payment"}
		}
		return p.send(ctx, p.createRegularPaymentXML())
	case pos.TxPostPay:
		return p.send(ctx, p.createRegularPostXML())
	}
	return &pos.StateError{Op: "Payment(" + string(p.TxType()) + ")", State: p.State()}
}

// Cancel voids the prepared transaction.
func (p *VakifBankPos) Cancel(ctx context.Context) error {
	if err := p.requireTrigger("Cancel", pos.TxCancel); err != nil {
		return err
	}
	return p.send(ctx, p.createCancelXML())
}

// Refund returns funds for the prepared transaction.
func (p *VakifBankPos) Refund(ctx context.Context) error {
	if err := p.requireTrigger("Refund", pos.TxRefund); err != nil {
		return err
	}
	return p.send(ctx, p.createRefundXML())
}

// Status is not exposed by the PayFlex API; order state is only available
// through the bank's reporting channel.
func (p *VakifBankPos) Status(ctx context.Context) error {
	return pos.ErrNotSupported
}

// History is not exposed by the PayFlex API.
func (p *VakifBankPos) History(ctx context.Context) error {
	return pos.ErrNotSupported
}

// Get3DFormData returns the ACS redirect form produced by the enrollment
// check.
func (p *VakifBankPos) Get3DFormData() (*pos.ThreeDFormData, error) {
	if err := p.Require("Get3DFormData", pos.StateRequested); err != nil {
		return nil, err
	}
	if p.formData == nil {
		return nil, &pos.StateError{Op: "Get3DFormData", State: p.State()}
	}
	return p.formData, nil
}

// Complete3DPayment fires the final sale with the ECI/CAVV values from the
// bank's MPI callback.
func (p *VakifBankPos) Complete3DPayment(ctx context.Context, callback map[string]string) error {
	if err := p.Require("Complete3DPayment", pos.StatePrepared); err != nil {
		return err
	}

	if callback["Status"] != "Y" {
		p.SetRequested()
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusDeclined,
			OrderID:      p.order.ID,
			ErrorCode:    callback["Status"],
			ErrorMessage: "3D Secure authentication failed",
			Raw:          rawFromStrings(callback),
		})
		return nil
	}
	if p.card == nil {
		return &pos.ValidationError{Bank: "vakifbank", Field: "card", Reason: "required for 3D payment"}
	}

	return p.send(ctx, p.create3DPaymentXML(callback))
}

func (p *VakifBankPos) requireTrigger(op string, tx pos.TxType) error {
	if err := p.Require(op, pos.StatePrepared); err != nil {
		return err
	}
	if p.TxType() != tx {
		return &pos.StateError{Op: op + "(" + string(p.TxType()) + ")", State: p.State()}
	}
	return nil
}

// enrollmentCheck asks the MPI whether the card supports 3D Secure and, if
// enrolled, stores the ACS challenge form.
func (p *VakifBankPos) enrollmentCheck(ctx context.Context) error {
	if p.card == nil {
		return &pos.ValidationError{Bank: "vakifbank", Field: "card", Reason: "required for enrollment check"}
	}
	if p.order.SuccessURL == "" || p.order.FailURL == "" {
		return &pos.ValidationError{Bank: "vakifbank", Field: "order urls", Reason: "success and fail urls are required for 3D payments"}
	}

	values, err := query.Values(p.create3DEnrollmentCheckData())
	if err != nil {
		return fmt.Errorf("vakifbank: failed to encode enrollment form: %w", err)
	}

	p.SetRequested()
	resp, err := p.httpClient.PostForm(ctx, p.enrollmentURL, values)
	if err != nil {
		return err
	}

	var enrollment enrollmentResponse
	if err := xml.Unmarshal(resp.Body, &enrollment); err != nil {
		p.Complete(errorResponse(p.order.ID, &pos.ParseError{Bank: "vakifbank", Err: err}))
		return nil
	}

	if enrollment.Message.VERes.Status != "Y" {
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusDeclined,
			OrderID:      p.order.ID,
			ErrorCode:    enrollment.MessageErrorCode,
			ErrorMessage: enrollment.ErrorMessage,
			Raw: map[string]any{
				"Status":           enrollment.Message.VERes.Status,
				"MessageErrorCode": enrollment.MessageErrorCode,
				"ErrorMessage":     enrollment.ErrorMessage,
			},
		})
		return nil
	}

	p.formData = &pos.ThreeDFormData{
		GatewayURL: enrollment.Message.VERes.ACSUrl,
		Inputs: map[string]string{
			"PaReq":   enrollment.Message.VERes.PaReq,
			"TermUrl": enrollment.Message.VERes.TermURL,
			"MD":      enrollment.Message.VERes.MD,
		},
	}
	return nil
}

// enrollmentRequest is the MPI enrollment form. Field names follow the
// bank's MPI API document exactly.
type enrollmentRequest struct {
	MerchantID                string `url:"MerchantId"`
	MerchantPassword          string `url:"MerchantPassword"`
	MerchantType              string `url:"MerchantType"`
	PurchaseAmount            string `url:"PurchaseAmount"`
	VerifyEnrollmentRequestID string `url:"VerifyEnrollmentRequestId"`
	Currency                  string `url:"Currency"`
	SuccessURL                string `url:"SuccessUrl"`
	FailureURL                string `url:"FailureUrl"`
	Pan                       string `url:"Pan"`
	ExpiryDate                string `url:"ExpiryDate"`
	BrandName                 string `url:"BrandName"`
	IsRecurring               string `url:"IsRecurring"`
	InstallmentCount          string `url:"InstallmentCount,omitempty"`
	RecurringFrequency        string `url:"RecurringFrequency,omitempty"`
	RecurringFrequencyType    string `url:"RecurringFrequencyType,omitempty"`
	RecurringInstallmentCount string `url:"RecurringInstallmentCount,omitempty"`
}

// create3DEnrollmentCheckData builds the enrollment-check form.
// IsRecurring flips to "true" only when the order carries a complete
// recurring block; the installment field is omitted for single payments.
func (p *VakifBankPos) create3DEnrollmentCheckData() enrollmentRequest {
	req := enrollmentRequest{
		MerchantID:                p.account.ClientID,
		MerchantPassword:          p.account.Password,
		MerchantType:              p.account.MerchantType,
		PurchaseAmount:            p.order.Amount2DP(),
		VerifyEnrollmentRequestID: p.order.Rand,
		Currency:                  strconv.Itoa(p.order.CurrencyCode),
		SuccessURL:                p.order.SuccessURL,
		FailureURL:                p.order.FailURL,
		Pan:                       p.card.Number,
		ExpiryDate:                p.card.ExpiryYYYYMM(),
		BrandName:                 cardBrands[p.card.Brand],
		IsRecurring:               "false",
	}

	if p.order.Installment > 1 {
		req.InstallmentCount = strconv.Itoa(p.order.Installment)
	}

	if rec := p.order.Recurring; rec != nil {
		req.IsRecurring = "true"
		req.RecurringFrequency = strconv.Itoa(rec.Frequency)
		req.RecurringFrequencyType = mapRecurringFrequency(rec.FrequencyType)
		req.RecurringInstallmentCount = strconv.Itoa(rec.InstallmentCount)
	}

	return req
}

// saleRequest is the non-3D sale/pre-auth payload. Amount policy:
// two-decimal string, numeric currency code.
type saleRequest struct {
	XMLName                 xml.Name `xml:"VposRequest"`
	MerchantID              string   `xml:"MerchantId"`
	Password                string   `xml:"Password"`
	TerminalNo              string   `xml:"TerminalNo"`
	TransactionType         string   `xml:"TransactionType"`
	OrderID                 string   `xml:"OrderId"`
	CurrencyAmount          string   `xml:"CurrencyAmount"`
	CurrencyCode            int      `xml:"CurrencyCode"`
	ClientIP                string   `xml:"ClientIp"`
	TransactionDeviceSource int      `xml:"TransactionDeviceSource"`
	Pan                     string   `xml:"Pan"`
	Expiry                  string   `xml:"Expiry"`
	CVV                     string   `xml:"Cvv"`
	NumberOfInstallments    string   `xml:"NumberOfInstallments,omitempty"`
}

func (p *VakifBankPos) createRegularPaymentXML() any {
	req := saleRequest{
		MerchantID:      p.account.ClientID,
		Password:        p.account.Password,
		TerminalNo:      p.account.TerminalID,
		TransactionType: txTypes[p.TxType()],
		OrderID:         p.order.ID,
		CurrencyAmount:  p.order.Amount2DP(),
		CurrencyCode:    p.order.CurrencyCode,
		ClientIP:        p.order.IP,
	}
	if p.card != nil {
		req.Pan = p.card.Number
		req.Expiry = p.card.ExpiryYYYYMM()
		req.CVV = p.card.CVV
	}
	if p.order.Installment > 1 {
		req.NumberOfInstallments = strconv.Itoa(p.order.Installment)
	}
	return req
}

// threeDPaymentRequest is the final sale fired after a successful ACS
// challenge. OrderDescription is always present (may be empty) per the
// bank's schema.
type threeDPaymentRequest struct {
	XMLName                 xml.Name `xml:"VposRequest"`
	MerchantID              string   `xml:"MerchantId"`
	Password                string   `xml:"Password"`
	TerminalNo              string   `xml:"TerminalNo"`
	TransactionType         string   `xml:"TransactionType"`
	OrderID                 string   `xml:"OrderId"`
	ClientIP                string   `xml:"ClientIp"`
	OrderDescription        string   `xml:"OrderDescription"`
	TransactionID           string   `xml:"TransactionId"`
	CVV                     string   `xml:"Cvv"`
	CardHoldersName         string   `xml:"CardHoldersName"`
	ECI                     string   `xml:"ECI"`
	CAVV                    string   `xml:"CAVV"`
	MpiTransactionID        string   `xml:"MpiTransactionId"`
	TransactionDeviceSource int      `xml:"TransactionDeviceSource"`
	NumberOfInstallments    string   `xml:"NumberOfInstallments,omitempty"`
}

func (p *VakifBankPos) create3DPaymentXML(callback map[string]string) any {
	req := threeDPaymentRequest{
		MerchantID:       p.account.ClientID,
		Password:         p.account.Password,
		TerminalNo:       p.account.TerminalID,
		TransactionType:  txTypes[p.TxType()],
		OrderID:          p.order.ID,
		ClientIP:         p.order.IP,
		TransactionID:    p.order.Rand,
		CVV:              p.card.CVV,
		CardHoldersName:  p.card.HolderName,
		ECI:              callback["Eci"],
		CAVV:             callback["Cavv"],
		MpiTransactionID: callback["VerifyEnrollmentRequestId"],
	}
	if p.order.Installment > 1 {
		req.NumberOfInstallments = strconv.Itoa(p.order.Installment)
	}
	return req
}

// postRequest is the capture (post-auth) payload.
type postRequest struct {
	XMLName                xml.Name `xml:"VposRequest"`
	MerchantID             string   `xml:"MerchantId"`
	Password               string   `xml:"Password"`
	TerminalNo             string   `xml:"TerminalNo"`
	TransactionType        string   `xml:"TransactionType"`
	ReferenceTransactionID string   `xml:"ReferenceTransactionId"`
	CurrencyAmount         string   `xml:"CurrencyAmount"`
	CurrencyCode           int      `xml:"CurrencyCode"`
	ClientIP               string   `xml:"ClientIp"`
}

func (p *VakifBankPos) createRegularPostXML() any {
	return postRequest{
		MerchantID:             p.account.ClientID,
		Password:               p.account.Password,
		TerminalNo:             p.account.TerminalID,
		TransactionType:        txTypes[pos.TxPostPay],
		ReferenceTransactionID: p.order.ID,
		CurrencyAmount:         p.order.Amount2DP(),
		CurrencyCode:           p.order.CurrencyCode,
		ClientIP:               p.order.IP,
	}
}

// cancelRequest carries no terminal or amount fields per the bank's schema.
type cancelRequest struct {
	XMLName                xml.Name `xml:"VposRequest"`
	MerchantID             string   `xml:"MerchantId"`
	Password               string   `xml:"Password"`
	TransactionType        string   `xml:"TransactionType"`
	ReferenceTransactionID string   `xml:"ReferenceTransactionId"`
	ClientIP               string   `xml:"ClientIp"`
}

func (p *VakifBankPos) createCancelXML() any {
	return cancelRequest{
		MerchantID:             p.account.ClientID,
		Password:               p.account.Password,
		TransactionType:        txTypes[pos.TxCancel],
		ReferenceTransactionID: p.order.ID,
		ClientIP:               p.order.IP,
	}
}

// refundRequest carries the amount but no terminal or currency code.
type refundRequest struct {
	XMLName                xml.Name `xml:"VposRequest"`
	MerchantID             string   `xml:"MerchantId"`
	Password               string   `xml:"Password"`
	TransactionType        string   `xml:"TransactionType"`
	ReferenceTransactionID string   `xml:"ReferenceTransactionId"`
	ClientIP               string   `xml:"ClientIp"`
	CurrencyAmount         string   `xml:"CurrencyAmount"`
}

func (p *VakifBankPos) createRefundXML() any {
	return refundRequest{
		MerchantID:             p.account.ClientID,
		Password:               p.account.Password,
		TransactionType:        txTypes[pos.TxRefund],
		ReferenceTransactionID: p.order.ID,
		ClientIP:               p.order.IP,
		CurrencyAmount:         p.order.Amount2DP(),
	}
}

// vposResponse is the common PayFlex response document.
type vposResponse struct {
	XMLName         xml.Name `xml:"VposResponse"`
	ResultCode      string   `xml:"ResultCode"`
	ResultDetail    string   `xml:"ResultDetail"`
	OrderID         string   `xml:"OrderId"`
	TransactionID   string   `xml:"TransactionId"`
	AuthCode        string   `xml:"AuthCode"`
	Rrn             string   `xml:"Rrn"`
	TransactionType string   `xml:"TransactionType"`
	HostDate        string   `xml:"HostDate"`
	ECI             string   `xml:"ECI"`
}

// send posts the XML document as the prmstr form field and normalizes the
// bank response.
func (p *VakifBankPos) send(ctx context.Context, payload any) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("vakifbank: failed to marshal request: %w", err)
	}

	p.SetRequested()
	resp, err := p.httpClient.PostForm(ctx, p.apiURL, url.Values{"prmstr": {xml.Header + string(body)}})
	if err != nil {
		return err
	}

	p.Complete(p.parseResponse(resp.Body))
	return nil
}

// parseResponse maps the PayFlex result codes to the normalized statuses.
// ResultCode "0000" means approved; everything else is a decline with the
// bank's code and detail. Malformed bodies degrade to an error result.
func (p *VakifBankPos) parseResponse(body []byte) *pos.Response {
	var vpos vposResponse
	if err := xml.Unmarshal(body, &vpos); err != nil || strings.TrimSpace(string(body)) == "" {
		return errorResponse(p.order.ID, &pos.ParseError{Bank: "vakifbank", Err: err})
	}

	resp := &pos.Response{
		OrderID:        p.order.ID,
		TransactionID:  vpos.TransactionID,
		AuthCode:       vpos.AuthCode,
		HostRefNum:     vpos.Rrn,
		ProcReturnCode: vpos.ResultCode,
		Raw: map[string]any{
			"ResultCode":      vpos.ResultCode,
			"ResultDetail":    vpos.ResultDetail,
			"OrderId":         vpos.OrderID,
			"TransactionId":   vpos.TransactionID,
			"AuthCode":        vpos.AuthCode,
			"Rrn":             vpos.Rrn,
			"TransactionType": vpos.TransactionType,
			"HostDate":        vpos.HostDate,
		},
	}

	if vpos.OrderID != "" {
		resp.OrderID = vpos.OrderID
	}

	if vpos.ResultCode == "0000" {
		resp.Success = true
		resp.Status = pos.StatusApproved
	} else {
		resp.Status = pos.StatusDeclined
		resp.ErrorCode = vpos.ResultCode
		resp.ErrorMessage = vpos.ResultDetail
	}
	return resp
}

type enrollmentResponse struct {
	XMLName                   xml.Name `xml:"IPaySecure"`
	MessageErrorCode          string   `xml:"MessageErrorCode"`
	ErrorMessage              string   `xml:"ErrorMessage"`
	VerifyEnrollmentRequestID string   `xml:"VerifyEnrollmentRequestId"`
	Message                   struct {
		VERes struct {
			Status  string `xml:"Status"`
			PaReq   string `xml:"PaReq"`
			TermURL string `xml:"TermUrl"`
			MD      string `xml:"MD"`
			ACSUrl  string `xml:"ACSUrl"`
		} `xml:"VERes"`
	} `xml:"Message"`
}

// mapRecurringFrequency normalizes caller frequency types ("MONTH",
// "month") to PayFlex wording ("Month").
func mapRecurringFrequency(frequencyType string) string {
	if mapped, ok := recurringFrequencies[strings.ToLower(frequencyType)]; ok {
		return mapped
	}
	return frequencyType
}

func errorResponse(orderID string, err error) *pos.Response {
	resp := &pos.Response{
		Success: false,
		Status:  pos.StatusError,
		OrderID: orderID,
	}
	if err != nil {
		resp.ErrorMessage = err.Error()
	}
	return resp
}

func rawFromStrings(data map[string]string) map[string]any {
	raw := make(map[string]any, len(data))
	for k, v := range data {
		raw[k] = v
	}
	return raw
}
