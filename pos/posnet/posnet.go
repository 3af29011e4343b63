package posnet

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/mstgnz/gopos/pos"
)

const (
	apiTestURL     = "https://setmpos.ykb.com/PosnetWebService/XML"
	apiProdURL     = "https://posnet.yapikredi.com.tr/PosnetWebService/XML"
	gatewayTestURL = "https://setmpos.ykb.com/3DSWebService/YKBPaymentService"
	gatewayProdURL = "https://posnet.yapikredi.com.tr/3DSWebService/YKBPaymentService"

	// Width of the zero-padded order reference on the PosNet wire.
	orderIDLength = 24
)

// currencyCodes maps ISO alpha currencies to PosNet letter codes.
var currencyCodes = map[string]string{
	"TRY": "TL",
	"USD": "US",
	"EUR": "EU",
	"GBP": "GB",
	"JPY": "JP",
	"RUB": "RU",
}

// PosNet drives YapıKredi's PosNet gateway. The XML document travels as the
// xmldata form field; amounts are minor-unit integers, currencies use the
// bank's letter codes and 3D Secure runs through the hosted OOS service
// with SHA-256 MAC signatures.
type PosNet struct {
	pos.Flow

	account    pos.Account
	posnetID   string
	apiURL     string
	gatewayURL string
	httpClient *pos.HTTPClient

	order    pos.PreparedOrder
	card     *pos.Card
	formData *pos.ThreeDFormData
}

// NewGateway creates a new PosNet gateway.
func NewGateway() pos.Gateway {
	return &PosNet{}
}

// GetRequiredConfig returns the account fields required by PosNet.
func (p *PosNet) GetRequiredConfig(environment string) []pos.ConfigField {
	return []pos.ConfigField{
		{
			Key:         "clientId",
			Required:    true,
			Type:        "string",
			Description: "PosNet merchant number (mid)",
			Example:     "6706598320",
			MinLength:   5,
			MaxLength:   15,
		},
		{
			Key:         "terminalId",
			Required:    true,
			Type:        "string",
			Description: "PosNet terminal number (tid)",
			Example:     "67005551",
			MinLength:   5,
			MaxLength:   10,
		},
		{
			Key:         "posnetId",
			Required:    true,
			Type:        "string",
			Description: "PosNet id assigned to the merchant",
			Example:     "27426",
			MinLength:   3,
			MaxLength:   15,
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

// ValidateConfig validates the provided configuration against PosNet
// requirements.
func (p *PosNet) ValidateConfig(conf map[string]string) error {
	return pos.ValidateConfigFields("posnet", conf, p.GetRequiredConfig(conf["environment"]))
}

// Initialize sets up the gateway with account credentials.
func (p *PosNet) Initialize(conf map[string]string) error {
	account, err := pos.AccountFromConfig("posnet", conf)
	if err != nil {
		return err
	}
	if account.ClientID == "" || account.TerminalID == "" {
		return fmt.Errorf("posnet: clientId and terminalId are required")
	}
	if account.Is3D() && account.StoreKey == "" {
		return fmt.Errorf("posnet: storeKey (encKey) is required for 3D models")
	}
	p.account = account
	p.posnetID = conf["posnetId"]

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

	p.httpClient = pos.NewHTTPClient("posnet", pos.NewHTTPClientConfig(account.Environment))
	return nil
}

// Account returns the account the gateway was initialized with.
func (p *PosNet) Account() pos.Account {
	return p.account
}

// Prepare normalizes the order and stores the transaction context.
func (p *PosNet) Prepare(order pos.Order, tx pos.TxType, card *pos.Card) error {
	switch tx {
	case pos.TxPay, pos.TxPrePay, pos.TxPostPay, pos.TxCancel, pos.TxRefund, pos.TxStatus, pos.TxHistory:
	default:
		return &pos.ValidationError{Bank: "posnet", Field: "txType", Reason: fmt.Sprintf("unknown transaction type %q", tx)}
	}

	prepared, err := pos.PrepareOrder(order, tx)
	if err != nil {
		return err
	}
	if prepared.CurrencyAlpha != "" {
		if _, ok := currencyCodes[prepared.CurrencyAlpha]; !ok {
			return &pos.ValidationError{Bank: "posnet", Field: "currency", Reason: fmt.Sprintf("no letter code for %q", prepared.CurrencyAlpha)}
		}
	}

	p.order = prepared
	p.card = card
	p.formData = nil
	p.SetPrepared(tx)
	return nil
}

// Payment fires the prepared pay/pre-pay/post-pay transaction. For 3D model
// accounts the OOS request runs first and the hosted-page redirect form
// becomes available via Get3DFormData.
func (p *PosNet) Payment(ctx context.Context) error {
	if err := p.Require("Payment", pos.StatePrepared); err != nil {
		return err
	}

	switch p.TxType() {
	case pos.TxPay, pos.TxPrePay:
		if p.account.Is3D() {
			return p.oosRequest(ctx)
		}
		if p.card == nil {
			return &pos.ValidationError{Bank: "posnet", Field: "card", Reason: "required for payment"}
		}
		return p.send(ctx, p.createRegularPaymentXML())
	case pos.TxPostPay:
		return p.send(ctx, p.createRegularPostXML())
	}
	return &pos.StateError{Op: "Payment(" + string(p.TxType()) + ")", State: p.State()}
}

// Cancel reverses the prepared transaction. The original host log key and
// auth code identify the transaction when present; otherwise the order
// reference is used.
func (p *PosNet) Cancel(ctx context.Context) error {
	if err := p.requireTrigger("Cancel", pos.TxCancel); err != nil {
		return err
	}
	return p.send(ctx, p.createCancelXML())
}

// Refund returns funds for the prepared transaction.
func (p *PosNet) Refund(ctx context.Context) error {
	if err := p.requireTrigger("Refund", pos.TxRefund); err != nil {
		return err
	}
	return p.send(ctx, p.createRefundXML())
}

// Status queries the agreement record of the prepared order.
func (p *PosNet) Status(ctx context.Context) error {
	if err := p.requireTrigger("Status", pos.TxStatus); err != nil {
		return err
	}
	return p.send(ctx, p.createStatusXML())
}

// History queries the transaction list of the prepared order. PosNet serves
// status and history from the same agreement inquiry.
func (p *PosNet) History(ctx context.Context) error {
	if err := p.requireTrigger("History", pos.TxHistory); err != nil {
		return err
	}
	return p.send(ctx, p.createStatusXML())
}

// Get3DFormData returns the hosted-page redirect form produced by the OOS
// request.
func (p *PosNet) Get3DFormData() (*pos.ThreeDFormData, error) {
	if err := p.Require("Get3DFormData", pos.StateRequested); err != nil {
		return nil, err
	}
	if p.formData == nil {
		return nil, &pos.StateError{Op: "Get3DFormData", State: p.State()}
	}
	return p.formData, nil
}

// Complete3DPayment resolves the merchant data returned by the hosted page,
// verifies the response MAC and fires the final oosTranData authorization.
func (p *PosNet) Complete3DPayment(ctx context.Context, callback map[string]string) error {
	if err := p.Require("Complete3DPayment", pos.StatePrepared); err != nil {
		return err
	}
	bankData := callback["BankPacket"]
	merchantData := callback["MerchantPacket"]
	sign := callback["Sign"]
	if bankData == "" || merchantData == "" {
		return &pos.ValidationError{Bank: "posnet", Field: "callback", Reason: "BankPacket and MerchantPacket are required"}
	}

	p.SetRequested()

	resolve, err := p.roundTrip(ctx, p.createResolveMerchantDataXML(bankData, merchantData, sign))
	if err != nil {
		return err
	}
	if resolve == nil {
		return nil // flow already completed with an error response
	}

	merchant := resolve.OOSResolveMerchantDataResponse
	if merchant == nil || resolve.Approved != "1" {
		p.Complete(p.declinedResponse(resolve))
		return nil
	}
	if merchant.MdStatus != "1" {
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusDeclined,
			OrderID:      p.order.ID,
			ErrorCode:    merchant.MdStatus,
			ErrorMessage: merchant.MdErrorMessage,
			Raw:          map[string]any{"mdStatus": merchant.MdStatus, "mdErrorMessage": merchant.MdErrorMessage},
		})
		return nil
	}
	if !p.verifyResponseMAC(merchant.MdStatus, merchant.Mac) {
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusError,
			OrderID:      p.order.ID,
			ErrorMessage: "response MAC verification failed",
		})
		return nil
	}

	final, err := p.roundTrip(ctx, p.createTranDataXML(bankData))
	if err != nil {
		return err
	}
	if final == nil {
		return nil
	}
	p.Complete(p.normalize(final))
	return nil
}

func (p *PosNet) requireTrigger(op string, tx pos.TxType) error {
	if err := p.Require(op, pos.StatePrepared); err != nil {
		return err
	}
	if p.TxType() != tx {
		return &pos.StateError{Op: op + "(" + string(p.TxType()) + ")", State: p.State()}
	}
	return nil
}

// FormatOrderID left-pads the order reference with zeros to the PosNet
// fixed width.
func FormatOrderID(id string) string {
	if len(id) >= orderIDLength {
		return id
	}
	return strings.Repeat("0", orderIDLength-len(id)) + id
}

func (p *PosNet) currency() string {
	return currencyCodes[p.order.CurrencyAlpha]
}

func (p *PosNet) installment() string {
	if p.order.Installment > 1 {
		return fmt.Sprintf("%02d", p.order.Installment)
	}
	return "00"
}

// posnetRequest is the request envelope. Exactly one transaction element is
// set per document.
type posnetRequest struct {
	XMLName                xml.Name                `xml:"posnetRequest"`
	MID                    string                  `xml:"mid"`
	TID                    string                  `xml:"tid"`
	TranDateRequired       string                  `xml:"tranDateRequired,omitempty"`
	Sale                   *cardTx                 `xml:"sale,omitempty"`
	Auth                   *cardTx                 `xml:"auth,omitempty"`
	Capt                   *captTx                 `xml:"capt,omitempty"`
	Reverse                *reverseTx              `xml:"reverse,omitempty"`
	Return                 *returnTx               `xml:"return,omitempty"`
	Agreement              *agreementTx            `xml:"agreement,omitempty"`
	OOSRequestData         *oosRequestData         `xml:"oosRequestData,omitempty"`
	OOSResolveMerchantData *oosResolveMerchantData `xml:"oosResolveMerchantData,omitempty"`
	OOSTranData            *oosTranData            `xml:"oosTranData,omitempty"`
}

type cardTx struct {
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	OrderID      string `xml:"orderID"`
	Installment  string `xml:"installment"`
	CcNo         string `xml:"ccno"`
	ExpDate      string `xml:"expDate"`
	Cvc          string `xml:"cvc"`
}

type captTx struct {
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	HostLogKey   string `xml:"hostLogKey"`
	AuthCode     string `xml:"authCode"`
	Installment  string `xml:"installment"`
}

type reverseTx struct {
	Transaction string `xml:"transaction"`
	HostLogKey  string `xml:"hostLogKey,omitempty"`
	AuthCode    string `xml:"authCode,omitempty"`
	OrderID     string `xml:"orderID,omitempty"`
}

type returnTx struct {
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	HostLogKey   string `xml:"hostLogKey,omitempty"`
	AuthCode     string `xml:"authCode,omitempty"`
	OrderID      string `xml:"orderID,omitempty"`
}

type agreementTx struct {
	OrderID string `xml:"orderID"`
}

type oosRequestData struct {
	PosnetID       string `xml:"posnetid"`
	XID            string `xml:"XID"`
	Amount         string `xml:"amount"`
	CurrencyCode   string `xml:"currencyCode"`
	Installment    string `xml:"installment"`
	TranType       string `xml:"tranType"`
	CardHolderName string `xml:"cardHolderName"`
	CcNo           string `xml:"ccno"`
	ExpDate        string `xml:"expDate"`
	Cvc            string `xml:"cvc"`
}

type oosResolveMerchantData struct {
	BankData     string `xml:"bankData"`
	MerchantData string `xml:"merchantData"`
	Sign         string `xml:"sign"`
	Mac          string `xml:"mac"`
}

type oosTranData struct {
	BankData string `xml:"bankData"`
	WpAmount string `xml:"wpAmount"`
	Mac      string `xml:"mac"`
}

func (p *PosNet) envelope() posnetRequest {
	return posnetRequest{
		MID: p.account.ClientID,
		TID: p.account.TerminalID,
	}
}

func (p *PosNet) cardTransaction() *cardTx {
	return &cardTx{
		Amount:       p.order.AmountMinor(),
		CurrencyCode: p.currency(),
		OrderID:      FormatOrderID(p.order.ID),
		Installment:  p.installment(),
		CcNo:         p.card.Number,
		ExpDate:      p.card.ExpiryYYMM(),
		Cvc:          p.card.CVV,
	}
}

func (p *PosNet) createRegularPaymentXML() posnetRequest {
	req := p.envelope()
	req.TranDateRequired = "1"
	if p.TxType() == pos.TxPrePay {
		req.Auth = p.cardTransaction()
	} else {
		req.Sale = p.cardTransaction()
	}
	return req
}

func (p *PosNet) createRegularPostXML() posnetRequest {
	req := p.envelope()
	req.TranDateRequired = "1"
	req.Capt = &captTx{
		Amount:       p.order.AmountMinor(),
		CurrencyCode: p.currency(),
		HostLogKey:   p.order.RefRetNum,
		AuthCode:     p.order.AuthCode,
		Installment:  p.installment(),
	}
	return req
}

func (p *PosNet) createCancelXML() posnetRequest {
	req := p.envelope()
	req.TranDateRequired = "1"
	reverse := &reverseTx{Transaction: "sale"}
	if p.order.RefRetNum != "" {
		reverse.HostLogKey = p.order.RefRetNum
		reverse.AuthCode = p.order.AuthCode
	} else {
		reverse.OrderID = FormatOrderID(p.order.ID)
	}
	req.Reverse = reverse
	return req
}

func (p *PosNet) createRefundXML() posnetRequest {
	req := p.envelope()
	req.TranDateRequired = "1"
	ret := &returnTx{
		Amount:       p.order.AmountMinor(),
		CurrencyCode: p.currency(),
	}
	if p.order.RefRetNum != "" {
		ret.HostLogKey = p.order.RefRetNum
		ret.AuthCode = p.order.AuthCode
	} else {
		ret.OrderID = FormatOrderID(p.order.ID)
	}
	req.Return = ret
	return req
}

func (p *PosNet) createStatusXML() posnetRequest {
	req := p.envelope()
	req.Agreement = &agreementTx{OrderID: FormatOrderID(p.order.ID)}
	return req
}

func (p *PosNet) create3DEnrollmentXML() posnetRequest {
	tranType := "Sale"
	if p.TxType() == pos.TxPrePay {
		tranType = "Auth"
	}

	req := p.envelope()
	req.OOSRequestData = &oosRequestData{
		PosnetID:       p.posnetID,
		XID:            FormatOrderID(p.order.ID),
		Amount:         p.order.AmountMinor(),
		CurrencyCode:   p.currency(),
		Installment:    p.installment(),
		TranType:       tranType,
		CardHolderName: p.card.HolderName,
		CcNo:           p.card.Number,
		ExpDate:        p.card.ExpiryYYMM(),
		Cvc:            p.card.CVV,
	}
	return req
}

func (p *PosNet) createResolveMerchantDataXML(bankData, merchantData, sign string) posnetRequest {
	req := p.envelope()
	req.OOSResolveMerchantData = &oosResolveMerchantData{
		BankData:     bankData,
		MerchantData: merchantData,
		Sign:         sign,
		Mac:          p.requestMAC(),
	}
	return req
}

func (p *PosNet) createTranDataXML(bankData string) posnetRequest {
	req := p.envelope()
	req.TranDateRequired = "1"
	req.OOSTranData = &oosTranData{
		BankData: bankData,
		WpAmount: "0",
		Mac:      p.requestMAC(),
	}
	return req
}

// terminalMAC is the inner signature: base64(sha256(encKey;tid)).
func (p *PosNet) terminalMAC() string {
	return hashSHA256(p.account.StoreKey + ";" + p.account.TerminalID)
}

// requestMAC signs an OOS request:
// base64(sha256(xid;amount;currency;mid;terminalMAC)).
func (p *PosNet) requestMAC() string {
	return hashSHA256(FormatOrderID(p.order.ID) + ";" + p.order.AmountMinor() + ";" +
		p.currency() + ";" + p.account.ClientID + ";" + p.terminalMAC())
}

// verifyResponseMAC checks the bank's resolve-response signature, which
// prepends the mdStatus to the signed fields.
func (p *PosNet) verifyResponseMAC(mdStatus, mac string) bool {
	expected := hashSHA256(mdStatus + ";" + FormatOrderID(p.order.ID) + ";" +
		p.order.AmountMinor() + ";" + p.currency() + ";" + p.account.ClientID + ";" +
		p.terminalMAC())
	return expected == mac
}

// oosRequest starts the hosted 3D flow and stores the redirect form.
func (p *PosNet) oosRequest(ctx context.Context) error {
	if p.card == nil {
		return &pos.ValidationError{Bank: "posnet", Field: "card", Reason: "required for 3D payment"}
	}
	if p.order.SuccessURL == "" {
		return &pos.ValidationError{Bank: "posnet", Field: "order urls", Reason: "success url is required for 3D payments"}
	}

	p.SetRequested()
	resp, err := p.roundTrip(ctx, p.create3DEnrollmentXML())
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}

	oos := resp.OOSRequestDataResponse
	if resp.Approved != "1" || oos == nil {
		p.Complete(p.declinedResponse(resp))
		return nil
	}

	p.formData = &pos.ThreeDFormData{
		GatewayURL: p.gatewayURL,
		Inputs: map[string]string{
			"mid":               p.account.ClientID,
			"posnetID":          p.posnetID,
			"posnetData":        oos.Data1,
			"posnetData2":       oos.Data2,
			"digest":            oos.Sign,
			"merchantReturnURL": p.order.SuccessURL,
			"lang":              p.order.Lang,
			"url":               "",
			"openANewWindow":    "0",
		},
	}
	return nil
}

// posnetResponse is the response envelope.
type posnetResponse struct {
	XMLName                xml.Name `xml:"posnetResponse"`
	Approved               string   `xml:"approved"`
	RespCode               string   `xml:"respCode"`
	RespText               string   `xml:"respText"`
	HostLogKey             string   `xml:"hostlogkey"`
	AuthCode               string   `xml:"authCode"`
	TranDate               string   `xml:"tranDate"`
	OOSRequestDataResponse *struct {
		Data1 string `xml:"data1"`
		Data2 string `xml:"data2"`
		Sign  string `xml:"sign"`
	} `xml:"oosRequestDataResponse"`
	OOSResolveMerchantDataResponse *struct {
		XID            string `xml:"xid"`
		Amount         string `xml:"amount"`
		Currency       string `xml:"currency"`
		MdStatus       string `xml:"mdStatus"`
		MdErrorMessage string `xml:"mdErrorMessage"`
		Mac            string `xml:"mac"`
	} `xml:"oosResolveMerchantDataResponse"`
}

// send posts a document and completes the flow with the normalized result.
func (p *PosNet) send(ctx context.Context, payload posnetRequest) error {
	p.SetRequested()
	resp, err := p.roundTrip(ctx, payload)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	p.Complete(p.normalize(resp))
	return nil
}

// roundTrip posts the document as the xmldata form field. A nil response
// with nil error means the flow was already completed with a parse-error
// result.
func (p *PosNet) roundTrip(ctx context.Context, payload posnetRequest) (*posnetResponse, error) {
	body, err := xml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("posnet: failed to marshal request: %w", err)
	}

	httpResp, err := p.httpClient.PostForm(ctx, p.apiURL, url.Values{"xmldata": {xml.Header + string(body)}})
	if err != nil {
		return nil, err
	}

	var resp posnetResponse
	if err := xml.Unmarshal(httpResp.Body, &resp); err != nil {
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusError,
			OrderID:      p.order.ID,
			ErrorMessage: (&pos.ParseError{Bank: "posnet", Err: err}).Error(),
		})
		return nil, nil
	}
	return &resp, nil
}

// normalize maps a PosNet response to the common statuses. Approved "1"
// means success.
func (p *PosNet) normalize(resp *posnetResponse) *pos.Response {
	out := &pos.Response{
		OrderID:        p.order.ID,
		AuthCode:       resp.AuthCode,
		HostRefNum:     resp.HostLogKey,
		ProcReturnCode: resp.RespCode,
		Raw: map[string]any{
			"approved":   resp.Approved,
			"respCode":   resp.RespCode,
			"respText":   resp.RespText,
			"hostlogkey": resp.HostLogKey,
			"authCode":   resp.AuthCode,
			"tranDate":   resp.TranDate,
		},
	}

	if resp.Approved == "1" {
		out.Success = true
		out.Status = pos.StatusApproved
	} else {
		out.Status = pos.StatusDeclined
		out.ErrorCode = resp.RespCode
		out.ErrorMessage = resp.RespText
	}
	return out
}

func (p *PosNet) declinedResponse(resp *posnetResponse) *pos.Response {
	return &pos.Response{
		Success:      false,
		Status:       pos.StatusDeclined,
		OrderID:      p.order.ID,
		ErrorCode:    resp.RespCode,
		ErrorMessage: resp.RespText,
		Raw: map[string]any{
			"approved": resp.Approved,
			"respCode": resp.RespCode,
			"respText": resp.RespText,
		},
	}
}

func hashSHA256(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.StdEncoding.EncodeToString(sum[:])
}
