package garanti

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/mstgnz/gopos/pos"
)

const (
	apiTestURL     = "https://sanalposprovtest.garanti.com.tr/VPServlet"
	apiProdURL     = "https://sanalposprov.garanti.com.tr/VPServlet"
	gatewayTestURL = "https://sanalposprovtest.garanti.com.tr/servlet/gt3dengine"
	gatewayProdURL = "https://sanalposprov.garanti.com.tr/servlet/gt3dengine"

	apiVersion = "v0.01"

	// Provision users are fixed by the bank: PROVAUT authorizes, PROVRFN
	// voids and refunds.
	provUserAuth   = "PROVAUT"
	provUserRefund = "PROVRFN"
)

// txTypes maps transaction kinds to GVP Transaction/Type values.
var txTypes = map[pos.TxType]string{
	pos.TxPay:     "sales",
	pos.TxPrePay:  "preauth",
	pos.TxPostPay: "postauth",
	pos.TxCancel:  "void",
	pos.TxRefund:  "refund",
	pos.TxStatus:  "orderinq",
	pos.TxHistory: "orderhistoryinq",
}

// GarantiPos drives Garanti's GVP (Garanti Virtual POS) gateway. Requests
// are GVPSRequest XML documents signed with nested SHA-1 hashes; amounts go
// over the wire in minor units (kuruş).
type GarantiPos struct {
	pos.Flow

	account    pos.Account
	apiURL     string
	gatewayURL string
	httpClient *pos.HTTPClient

	order    pos.PreparedOrder
	card     *pos.Card
	formData *pos.ThreeDFormData
}

// NewGateway creates a new Garanti GVP gateway.
func NewGateway() pos.Gateway {
	return &GarantiPos{}
}

// GetRequiredConfig returns the account fields required by GVP.
func (p *GarantiPos) GetRequiredConfig(environment string) []pos.ConfigField {
	return []pos.ConfigField{
		{
			Key:         "clientId",
			Required:    true,
			Type:        "string",
			Description: "Garanti merchant number (MerchantID)",
			Example:     "7000679",
			MinLength:   5,
			MaxLength:   15,
		},
		{
			Key:         "terminalId",
			Required:    true,
			Type:        "string",
			Description: "Garanti terminal id (Terminal/ID)",
			Example:     "30691298",
			MinLength:   5,
			MaxLength:   9,
		},
		{
			Key:         "username",
			Required:    true,
			Type:        "string",
			Description: "Provision user id (PROVAUT)",
			Example:     "PROVAUT",
			MinLength:   2,
			MaxLength:   20,
		},
		{
			Key:         "password",
			Required:    true,
			Type:        "string",
			Description: "Provision user password",
			Example:     "123qweASD/",
			MinLength:   5,
			MaxLength:   50,
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

// ValidateConfig validates the provided configuration against GVP
// requirements.
func (p *GarantiPos) ValidateConfig(conf map[string]string) error {
	return pos.ValidateConfigFields("garanti", conf, p.GetRequiredConfig(conf["environment"]))
}

// Initialize sets up the gateway with account credentials.
func (p *GarantiPos) Initialize(conf map[string]string) error {
	account, err := pos.AccountFromConfig("garanti", conf)
	if err != nil {
		return err
	}
	if account.ClientID == "" || account.TerminalID == "" || account.Password == "" {
		return fmt.Errorf("garanti: clientId, terminalId and password are required")
	}
	if account.Is3D() && account.StoreKey == "" {
		return fmt.Errorf("garanti: storeKey is required for 3D models")
	}
	p.account = account

	p.apiURL = apiTestURL
	p.gatewayURL = gatewayTestURL
	if account.IsProduction() {
		p.apiURL = apiProdURL
		p.gatewayURL = gatewayProdURL
	}
	if v := conf["apiUrl"]; v != "" {
		p.apiURL = v
	}
	if v := conf["gatewayUrl"]; v != "" {
		p.gatewayURL = v
	}

	p.httpClient = pos.NewHTTPClient("garanti", pos.NewHTTPClientConfig(account.Environment))
	return nil
}

// Account returns the account the gateway was initialized with.
func (p *GarantiPos) Account() pos.Account {
	return p.account
}

// Prepare normalizes the order and stores the transaction context.
func (p *GarantiPos) Prepare(order pos.Order, tx pos.TxType, card *pos.Card) error {
	if _, ok := txTypes[tx]; !ok {
		return &pos.ValidationError{Bank: "garanti", Field: "txType", Reason: fmt.Sprintf("unknown transaction type %q", tx)}
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

// Payment fires the prepared pay/pre-pay/post-pay transaction. For 3D model
// accounts the signed redirect form is computed locally and exposed via
// Get3DFormData.
func (p *GarantiPos) Payment(ctx context.Context) error {
	if err := p.Require("Payment", pos.StatePrepared); err != nil {
		return err
	}

	switch p.TxType() {
	case pos.TxPay, pos.TxPrePay:
		if p.account.Is3D() {
			form, err := p.create3DFormData()
			if err != nil {
				return err
			}
			p.formData = form
			p.SetRequested()
			return nil
		}
		if p.card == nil {
			return &pos.ValidationError{Bank: "garanti", Field: "card", Reason: "required for payment"}
		}
		return p.send(ctx, p.createRegularPaymentXML())
	case pos.TxPostPay:
		return p.send(ctx, p.createRegularPostXML())
	}
	return &pos.StateError{Op: "Payment(" + string(p.TxType()) + ")", State: p.State()}
}

// Cancel voids the prepared transaction. GVP requires the RetrefNum of the
// original authorization on the order.
func (p *GarantiPos) Cancel(ctx context.Context) error {
	if err := p.requireTrigger("Cancel", pos.TxCancel); err != nil {
		return err
	}
	if p.order.RefRetNum == "" {
		return &pos.ValidationError{Bank: "garanti", Field: "refRetNum", Reason: "required for cancel"}
	}
	return p.send(ctx, p.createCancelXML())
}

// Refund returns funds for the prepared transaction.
func (p *GarantiPos) Refund(ctx context.Context) error {
	if err := p.requireTrigger("Refund", pos.TxRefund); err != nil {
		return err
	}
	return p.send(ctx, p.createRefundXML())
}

// Status queries the current state of the prepared order.
func (p *GarantiPos) Status(ctx context.Context) error {
	if err := p.requireTrigger("Status", pos.TxStatus); err != nil {
		return err
	}
	return p.send(ctx, p.createStatusXML())
}

// History queries the transaction history of the prepared order.
func (p *GarantiPos) History(ctx context.Context) error {
	if err := p.requireTrigger("History", pos.TxHistory); err != nil {
		return err
	}
	return p.send(ctx, p.createHistoryXML())
}

// Get3DFormData returns the signed redirect form computed by Payment.
func (p *GarantiPos) Get3DFormData() (*pos.ThreeDFormData, error) {
	if err := p.Require("Get3DFormData", pos.StateRequested); err != nil {
		return nil, err
	}
	if p.formData == nil {
		return nil, &pos.StateError{Op: "Get3DFormData", State: p.State()}
	}
	return p.formData, nil
}

// Complete3DPayment re-enters the flow with the 3D engine's callback and
// fires the final authorization carrying the Secure3D block.
func (p *GarantiPos) Complete3DPayment(ctx context.Context, callback map[string]string) error {
	if err := p.Require("Complete3DPayment", pos.StatePrepared); err != nil {
		return err
	}

	if !mdStatusOK(callback["mdstatus"]) {
		p.SetRequested()
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusDeclined,
			OrderID:      p.order.ID,
			ErrorCode:    callback["mdstatus"],
			ErrorMessage: callback["mderrormessage"],
			Raw:          rawFromStrings(callback),
		})
		return nil
	}

	return p.send(ctx, p.create3DPaymentXML(callback))
}

func (p *GarantiPos) requireTrigger(op string, tx pos.TxType) error {
	if err := p.Require(op, pos.StatePrepared); err != nil {
		return err
	}
	if p.TxType() != tx {
		return &pos.StateError{Op: op + "(" + string(p.TxType()) + ")", State: p.State()}
	}
	return nil
}

// GVPSRequest document. Element order follows the bank schema.

type gvpsRequest struct {
	XMLName     xml.Name        `xml:"GVPSRequest"`
	Mode        string          `xml:"Mode"`
	Version     string          `xml:"Version"`
	Terminal    gvpsTerminal    `xml:"Terminal"`
	Customer    gvpsCustomer    `xml:"Customer"`
	Card        *gvpsCard       `xml:"Card,omitempty"`
	Order       gvpsOrder       `xml:"Order"`
	Transaction gvpsTransaction `xml:"Transaction"`
}

type gvpsTerminal struct {
	ProvUserID string `xml:"ProvUserID"`
	UserID     string `xml:"UserID"`
	HashData   string `xml:"HashData"`
	ID         string `xml:"ID"`
	MerchantID string `xml:"MerchantID"`
}

type gvpsCustomer struct {
	IPAddress    string `xml:"IPAddress"`
	EmailAddress string `xml:"EmailAddress"`
}

type gvpsCard struct {
	Number     string `xml:"Number"`
	ExpireDate string `xml:"ExpireDate"` // mmyy
	CVV2       string `xml:"CVV2"`
}

type gvpsOrder struct {
	OrderID string `xml:"OrderID"`
	GroupID string `xml:"GroupID"`
}

type gvpsTransaction struct {
	Type                  string        `xml:"Type"`
	InstallmentCnt        string        `xml:"InstallmentCnt"`
	Amount                string        `xml:"Amount,omitempty"`
	CurrencyCode          string        `xml:"CurrencyCode,omitempty"`
	CardholderPresentCode string        `xml:"CardholderPresentCode,omitempty"`
	MotoInd               string        `xml:"MotoInd,omitempty"`
	OriginalRetrefNum     string        `xml:"OriginalRetrefNum,omitempty"`
	Secure3D              *gvpsSecure3D `xml:"Secure3D,omitempty"`
}

type gvpsSecure3D struct {
	AuthenticationCode string `xml:"AuthenticationCode"`
	SecurityLevel      string `xml:"SecurityLevel"`
	TxnID              string `xml:"TxnID"`
	Md                 string `xml:"Md"`
}

func (p *GarantiPos) mode() string {
	if p.account.IsProduction() {
		return "PROD"
	}
	return "TEST"
}

func (p *GarantiPos) installment() string {
	if p.order.Installment > 1 {
		return strconv.Itoa(p.order.Installment)
	}
	return ""
}

func (p *GarantiPos) baseRequest(provUser, pan, amount string) gvpsRequest {
	return gvpsRequest{
		Mode:    p.mode(),
		Version: apiVersion,
		Terminal: gvpsTerminal{
			ProvUserID: provUser,
			UserID:     p.account.Username,
			HashData:   p.createHashData(pan, amount),
			ID:         p.account.TerminalID,
			MerchantID: p.account.ClientID,
		},
		Customer: gvpsCustomer{
			IPAddress:    p.order.IP,
			EmailAddress: p.order.Email,
		},
		Order: gvpsOrder{
			OrderID: p.order.ID,
		},
	}
}

func (p *GarantiPos) createRegularPaymentXML() gvpsRequest {
	amount := p.order.AmountMinor()
	req := p.baseRequest(provUserAuth, p.card.Number, amount)
	req.Card = &gvpsCard{
		Number:     p.card.Number,
		ExpireDate: p.card.ExpiryMMYYCompact(),
		CVV2:       p.card.CVV,
	}
	req.Transaction = gvpsTransaction{
		Type:                  txTypes[p.TxType()],
		InstallmentCnt:        p.installment(),
		Amount:                amount,
		CurrencyCode:          strconv.Itoa(p.order.CurrencyCode),
		CardholderPresentCode: "0",
		MotoInd:               "N",
	}
	return req
}

func (p *GarantiPos) createRegularPostXML() gvpsRequest {
	amount := p.order.AmountMinor()
	req := p.baseRequest(provUserAuth, "", amount)
	req.Transaction = gvpsTransaction{
		Type:           txTypes[pos.TxPostPay],
		InstallmentCnt: p.installment(),
		Amount:         amount,
		CurrencyCode:   strconv.Itoa(p.order.CurrencyCode),
	}
	return req
}

func (p *GarantiPos) create3DPaymentXML(callback map[string]string) gvpsRequest {
	amount := p.order.AmountMinor()
	req := p.baseRequest(provUserAuth, "", amount)
	req.Transaction = gvpsTransaction{
		Type:                  txTypes[p.TxType()],
		InstallmentCnt:        p.installment(),
		Amount:                amount,
		CurrencyCode:          strconv.Itoa(p.order.CurrencyCode),
		CardholderPresentCode: "13",
		MotoInd:               "N",
		Secure3D: &gvpsSecure3D{
			AuthenticationCode: callback["cavv"],
			SecurityLevel:      callback["eci"],
			TxnID:              callback["xid"],
			Md:                 callback["md"],
		},
	}
	return req
}

func (p *GarantiPos) createCancelXML() gvpsRequest {
	req := p.baseRequest(provUserRefund, "", "")
	req.Transaction = gvpsTransaction{
		Type:                  txTypes[pos.TxCancel],
		InstallmentCnt:        p.installment(),
		CurrencyCode:          "949",
		CardholderPresentCode: "0",
		MotoInd:               "N",
		OriginalRetrefNum:     p.order.RefRetNum,
	}
	return req
}

func (p *GarantiPos) createRefundXML() gvpsRequest {
	amount := p.order.AmountMinor()
	req := p.baseRequest(provUserRefund, "", amount)
	req.Transaction = gvpsTransaction{
		Type:              txTypes[pos.TxRefund],
		InstallmentCnt:    p.installment(),
		Amount:            amount,
		CurrencyCode:      strconv.Itoa(p.order.CurrencyCode),
		OriginalRetrefNum: p.order.RefRetNum,
	}
	return req
}

func (p *GarantiPos) createStatusXML() gvpsRequest {
	req := p.baseRequest(provUserAuth, "", "")
	req.Transaction = gvpsTransaction{
		Type:           txTypes[pos.TxStatus],
		InstallmentCnt: p.installment(),
	}
	return req
}

func (p *GarantiPos) createHistoryXML() gvpsRequest {
	req := p.baseRequest(provUserAuth, "", "")
	req.Transaction = gvpsTransaction{
		Type:           txTypes[pos.TxHistory],
		InstallmentCnt: p.installment(),
	}
	return req
}

// create3DFormData builds the redirect form for Garanti's 3D engine.
func (p *GarantiPos) create3DFormData() (*pos.ThreeDFormData, error) {
	if p.order.SuccessURL == "" || p.order.FailURL == "" {
		return nil, &pos.ValidationError{Bank: "garanti", Field: "order urls", Reason: "success and fail urls are required for 3D payments"}
	}

	txType := txTypes[p.TxType()]
	amount := p.order.AmountMinor()
	installment := p.installment()

	inputs := map[string]string{
		"secure3dsecuritylevel": p.secure3DLevel(),
		"mode":                  p.mode(),
		"apiversion":            apiVersion,
		"terminalprovuserid":    provUserAuth,
		"terminaluserid":        p.account.Username,
		"terminalmerchantid":    p.account.ClientID,
		"terminalid":            p.account.TerminalID,
		"txntype":               txType,
		"txnamount":             amount,
		"txncurrencycode":       strconv.Itoa(p.order.CurrencyCode),
		"txninstallmentcount":   installment,
		"orderid":               p.order.ID,
		"successurl":            p.order.SuccessURL,
		"errorurl":              p.order.FailURL,
		"customeremailaddress":  p.order.Email,
		"customeripaddress":     p.order.IP,
		"lang":                  p.order.Lang,
		"secure3dhash":          p.create3DHash(txType, amount, installment),
	}

	if p.card != nil {
		inputs["cardnumber"] = p.card.Number
		inputs["cardexpiredatemonth"] = p.card.ExpireMonth
		inputs["cardexpiredateyear"] = p.card.ExpireYearShort()
		inputs["cardcvv2"] = p.card.CVV
	}

	return &pos.ThreeDFormData{
		GatewayURL: p.gatewayURL,
		Inputs:     inputs,
	}, nil
}

func (p *GarantiPos) secure3DLevel() string {
	if p.account.Model == pos.Model3DPay {
		return "3D_PAY"
	}
	return "3D"
}

// securityData is the inner hash: upper(hex(sha1(password + terminal id
// zero-padded to 9 digits))).
func (p *GarantiPos) securityData() string {
	padded := p.account.TerminalID
	for len(padded) < 9 {
		padded = "0" + padded
	}
	return hashSHA1Hex(p.account.Password + padded)
}

// createHashData is the outer request hash: upper(hex(sha1(order id +
// terminal id + pan + amount + security data))). PAN and amount are empty
// for the kinds that do not carry them.
func (p *GarantiPos) createHashData(pan, amount string) string {
	return hashSHA1Hex(p.order.ID + p.account.TerminalID + pan + amount + p.securityData())
}

// create3DHash signs the 3D engine redirect form.
func (p *GarantiPos) create3DHash(txType, amount, installment string) string {
	return hashSHA1Hex(p.account.TerminalID + p.order.ID + amount +
		p.order.SuccessURL + p.order.FailURL + txType + installment +
		p.account.StoreKey + p.securityData())
}

// gvpsResponse is the GVP response document.
type gvpsResponse struct {
	XMLName xml.Name `xml:"GVPSResponse"`
	Order   struct {
		OrderID string `xml:"OrderID"`
		GroupID string `xml:"GroupID"`
	} `xml:"Order"`
	Transaction struct {
		Response struct {
			Source     string `xml:"Source"`
			Code       string `xml:"Code"`
			ReasonCode string `xml:"ReasonCode"`
			Message    string `xml:"Message"`
			ErrorMsg   string `xml:"ErrorMsg"`
			SysErrMsg  string `xml:"SysErrMsg"`
		} `xml:"Response"`
		RetrefNum        string `xml:"RetrefNum"`
		AuthCode         string `xml:"AuthCode"`
		BatchNum         string `xml:"BatchNum"`
		SequenceNum      string `xml:"SequenceNum"`
		ProvDate         string `xml:"ProvDate"`
		CardNumberMasked string `xml:"CardNumberMasked"`
	} `xml:"Transaction"`
}

// send posts the GVPSRequest document and normalizes the bank response.
func (p *GarantiPos) send(ctx context.Context, payload gvpsRequest) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("garanti: failed to marshal request: %w", err)
	}

	p.SetRequested()
	resp, err := p.httpClient.PostXML(ctx, p.apiURL, []byte(xml.Header+string(body)))
	if err != nil {
		return err
	}

	p.Complete(p.parseResponse(resp.Body))
	return nil
}

// parseResponse maps the GVPSResponse to the normalized statuses.
// Response code "00" means approved.
func (p *GarantiPos) parseResponse(body []byte) *pos.Response {
	var gvps gvpsResponse
	if err := xml.Unmarshal(body, &gvps); err != nil {
		return &pos.Response{
			Success:      false,
			Status:       pos.StatusError,
			OrderID:      p.order.ID,
			ErrorMessage: (&pos.ParseError{Bank: "garanti", Err: err}).Error(),
		}
	}

	tr := gvps.Transaction
	resp := &pos.Response{
		OrderID:        p.order.ID,
		GroupID:        gvps.Order.GroupID,
		AuthCode:       tr.AuthCode,
		HostRefNum:     tr.RetrefNum,
		ProcReturnCode: tr.Response.Code,
		Raw: map[string]any{
			"Code":             tr.Response.Code,
			"ReasonCode":       tr.Response.ReasonCode,
			"Message":          tr.Response.Message,
			"ErrorMsg":         tr.Response.ErrorMsg,
			"SysErrMsg":        tr.Response.SysErrMsg,
			"RetrefNum":        tr.RetrefNum,
			"AuthCode":         tr.AuthCode,
			"BatchNum":         tr.BatchNum,
			"SequenceNum":      tr.SequenceNum,
			"ProvDate":         tr.ProvDate,
			"CardNumberMasked": tr.CardNumberMasked,
			"OrderID":          gvps.Order.OrderID,
			"GroupID":          gvps.Order.GroupID,
		},
	}
	if gvps.Order.OrderID != "" {
		resp.OrderID = gvps.Order.OrderID
	}

	if tr.Response.Code == "00" {
		resp.Success = true
		resp.Status = pos.StatusApproved
	} else {
		resp.Status = pos.StatusDeclined
		resp.ErrorCode = tr.Response.ReasonCode
		resp.ErrorMessage = strings.TrimSpace(tr.Response.ErrorMsg + " " + tr.Response.SysErrMsg)
	}
	return resp
}

// mdstatus 1-4 are the authentication outcomes the scheme accepts.
func mdStatusOK(mdStatus string) bool {
	switch mdStatus {
	case "1", "2", "3", "4":
		return true
	}
	return false
}

func hashSHA1Hex(plain string) string {
	sum := sha1.Sum([]byte(plain))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func rawFromStrings(data map[string]string) map[string]any {
	raw := make(map[string]any, len(data))
	for k, v := range data {
		raw[k] = v
	}
	return raw
}
