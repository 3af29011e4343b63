package estpos

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/mstgnz/gopos/pos"
)

// EST is a white-label product: every issuing bank runs the same protocol
// on its own host. The shared integration environment serves all test
// accounts; production endpoints are bank-specific and must be configured.
const (
	apiTestURL     = "https://entegrasyon.asseco-see.com.tr/fim/api"
	gatewayTestURL = "https://entegrasyon.asseco-see.com.tr/fim/est3Dgate"
)

// txTypes maps transaction kinds to CC5Request Type values.
var txTypes = map[pos.TxType]string{
	pos.TxPay:     "Auth",
	pos.TxPrePay:  "PreAuth",
	pos.TxPostPay: "PostAuth",
	pos.TxCancel:  "Void",
	pos.TxRefund:  "Credit",
}

// cardTypes maps card schemes to the gateway form's cardType codes.
var cardTypes = map[pos.Brand]string{
	pos.BrandVisa:       "1",
	pos.BrandMasterCard: "2",
}

// EstPos drives the EST (Asseco/Payten) gateway family: CC5Request XML over
// HTTPS for the API side and a hash-signed redirect form for the hosted 3D
// Secure page. Amounts use the two-decimal string convention.
type EstPos struct {
	pos.Flow

	account    pos.Account
	apiURL     string
	gatewayURL string
	httpClient *pos.HTTPClient

	order    pos.PreparedOrder
	card     *pos.Card
	formData *pos.ThreeDFormData
}

// NewGateway creates a new EST gateway.
func NewGateway() pos.Gateway {
	return &EstPos{}
}

// GetRequiredConfig returns the account fields required by EST.
func (p *EstPos) GetRequiredConfig(environment string) []pos.ConfigField {
	fields := []pos.ConfigField{
		{
			Key:         "clientId",
			Required:    true,
			Type:        "string",
			Description: "EST merchant number (ClientId)",
			Example:     "700655000200",
			MinLength:   5,
			MaxLength:   20,
		},
		{
			Key:         "username",
			Required:    true,
			Type:        "string",
			Description: "EST API user (Name)",
			Example:     "ISBANKAPI",
			MinLength:   2,
			MaxLength:   50,
		},
		{
			Key:         "password",
			Required:    true,
			Type:        "string",
			Description: "EST API password",
			Example:     "ISBANK07",
			MinLength:   2,
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
	if environment == string(pos.EnvProduction) {
		fields = append(fields, pos.ConfigField{
			Key:         "apiUrl",
			Required:    true,
			Type:        "url",
			Description: "Bank-specific production API endpoint",
			Example:     "https://sanalpos.bank.com.tr/fim/api",
		})
	}
	return fields
}

// ValidateConfig validates the provided configuration against EST
// requirements.
func (p *EstPos) ValidateConfig(conf map[string]string) error {
	return pos.ValidateConfigFields("estpos", conf, p.GetRequiredConfig(conf["environment"]))
}

// Initialize sets up the gateway with account credentials.
func (p *EstPos) Initialize(conf map[string]string) error {
	account, err := pos.AccountFromConfig("estpos", conf)
	if err != nil {
		return err
	}
	if account.ClientID == "" || account.Username == "" || account.Password == "" {
		return fmt.Errorf("estpos: clientId, username and password are required")
	}
	if account.Is3D() && account.StoreKey == "" {
		return fmt.Errorf("estpos: storeKey is required for 3D models")
	}
	p.account = account

	p.apiURL = conf["apiUrl"]
	p.gatewayURL = conf["gatewayUrl"]
	if !account.IsProduction() {
		if p.apiURL == "" {
			p.apiURL = apiTestURL
		}
		if p.gatewayURL == "" {
			p.gatewayURL = gatewayTestURL
		}
	}
	if p.apiURL == "" {
		return fmt.Errorf("estpos: apiUrl is required for production accounts")
	}
	if account.Is3D() && p.gatewayURL == "" {
		return fmt.Errorf("estpos: gatewayUrl is required for production 3D accounts")
	}

	p.httpClient = pos.NewHTTPClient("estpos", pos.NewHTTPClientConfig(account.Environment))
	return nil
}

// Account returns the account the gateway was initialized with.
func (p *EstPos) Account() pos.Account {
	return p.account
}

// Prepare normalizes the order and stores the transaction context.
func (p *EstPos) Prepare(order pos.Order, tx pos.TxType, card *pos.Card) error {
	if _, ok := txTypes[tx]; !ok && tx != pos.TxStatus && tx != pos.TxHistory {
		return &pos.ValidationError{Bank: "estpos", Field: "txType", Reason: fmt.Sprintf("unknown transaction type %q", tx)}
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
// accounts no network call happens here: the signed redirect form is
// computed and exposed via Get3DFormData, and the flow resumes in
// Complete3DPayment with the gateway callback.
func (p *EstPos) Payment(ctx context.Context) error {
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
			return &pos.ValidationError{Bank: "estpos", Field: "card", Reason: "required for payment"}
		}
		return p.send(ctx, p.createRegularPaymentXML())
	case pos.TxPostPay:
		return p.send(ctx, p.createRegularPostXML())
	}
	return &pos.StateError{Op: "Payment(" + string(p.TxType()) + ")", State: p.State()}
}

// Cancel voids the prepared transaction.
func (p *EstPos) Cancel(ctx context.Context) error {
	if err := p.requireTrigger("Cancel", pos.TxCancel); err != nil {
		return err
	}
	return p.send(ctx, p.createCancelXML())
}

// Refund returns funds for the prepared transaction.
func (p *EstPos) Refund(ctx context.Context) error {
	if err := p.requireTrigger("Refund", pos.TxRefund); err != nil {
		return err
	}
	return p.send(ctx, p.createRefundXML())
}

// Status queries the current state of the prepared order.
func (p *EstPos) Status(ctx context.Context) error {
	if err := p.requireTrigger("Status", pos.TxStatus); err != nil {
		return err
	}
	return p.send(ctx, p.createStatusXML())
}

// History queries the transaction history of the prepared order.
func (p *EstPos) History(ctx context.Context) error {
	if err := p.requireTrigger("History", pos.TxHistory); err != nil {
		return err
	}
	return p.send(ctx, p.createHistoryXML())
}

// Get3DFormData returns the signed redirect form computed by Payment.
func (p *EstPos) Get3DFormData() (*pos.ThreeDFormData, error) {
	if err := p.Require("Get3DFormData", pos.StateRequested); err != nil {
		return nil, err
	}
	if p.formData == nil {
		return nil, &pos.StateError{Op: "Get3DFormData", State: p.State()}
	}
	return p.formData, nil
}

// Complete3DPayment re-enters the flow with the gateway's callback payload.
// The callback hash is verified first; for the 3d model a final CC5Request
// carries the authentication values to the API, while 3d_pay and 3d_host
// results are read from the callback itself.
func (p *EstPos) Complete3DPayment(ctx context.Context, callback map[string]string) error {
	if err := p.Require("Complete3DPayment", pos.StatePrepared); err != nil {
		return err
	}

	if !p.check3DHash(callback) {
		p.SetRequested()
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusError,
			OrderID:      p.order.ID,
			ErrorMessage: "3D callback hash verification failed",
			Raw:          rawFromStrings(callback),
		})
		return nil
	}

	if !mdStatusOK(callback["mdStatus"]) {
		p.SetRequested()
		p.Complete(&pos.Response{
			Success:      false,
			Status:       pos.StatusDeclined,
			OrderID:      p.order.ID,
			ErrorCode:    callback["mdStatus"],
			ErrorMessage: callback["mdErrorMsg"],
			Raw:          rawFromStrings(callback),
		})
		return nil
	}

	if p.account.Model == pos.Model3D {
		return p.send(ctx, p.create3DPaymentXML(callback))
	}

	// 3d_pay and 3d_host: the gateway already ran the authorization and the
	// callback carries the outcome.
	p.SetRequested()
	p.Complete(p.parseCallbackResponse(callback))
	return nil
}

func (p *EstPos) requireTrigger(op string, tx pos.TxType) error {
	if err := p.Require(op, pos.StatePrepared); err != nil {
		return err
	}
	if p.TxType() != tx {
		return &pos.StateError{Op: op + "(" + string(p.TxType()) + ")", State: p.State()}
	}
	return nil
}

// cc5Request is the EST API document. Field order follows the bank schema.
type cc5Request struct {
	XMLName                 xml.Name      `xml:"CC5Request"`
	Name                    string        `xml:"Name"`
	Password                string        `xml:"Password"`
	ClientID                string        `xml:"ClientId"`
	Type                    string        `xml:"Type,omitempty"`
	IPAddress               string        `xml:"IPAddress,omitempty"`
	Email                   string        `xml:"Email,omitempty"`
	OrderID                 string        `xml:"OrderId,omitempty"`
	GroupID                 string        `xml:"GroupId,omitempty"`
	Total                   string        `xml:"Total,omitempty"`
	Currency                string        `xml:"Currency,omitempty"`
	Taksit                  string        `xml:"Taksit,omitempty"`
	Number                  string        `xml:"Number,omitempty"`
	Expires                 string        `xml:"Expires,omitempty"`
	Cvv2Val                 string        `xml:"Cvv2Val,omitempty"`
	PayerTxnID              string        `xml:"PayerTxnId,omitempty"`
	PayerSecurityLevel      string        `xml:"PayerSecurityLevel,omitempty"`
	PayerAuthenticationCode string        `xml:"PayerAuthenticationCode,omitempty"`
	CardholderPresentCode   string        `xml:"CardholderPresentCode,omitempty"`
	Mode                    string        `xml:"Mode,omitempty"`
	Extra                   *requestExtra `xml:"Extra,omitempty"`
}

type requestExtra struct {
	OrderStatus  string `xml:"ORDERSTATUS,omitempty"`
	OrderHistory string `xml:"ORDERHISTORY,omitempty"`
}

func (p *EstPos) baseRequest() cc5Request {
	return cc5Request{
		Name:     p.account.Username,
		Password: p.account.Password,
		ClientID: p.account.ClientID,
	}
}

func (p *EstPos) createRegularPaymentXML() cc5Request {
	req := p.baseRequest()
	req.Type = txTypes[p.TxType()]
	req.IPAddress = p.order.IP
	req.Email = p.order.Email
	req.OrderID = p.order.ID
	req.Total = p.order.Amount2DP()
	req.Currency = strconv.Itoa(p.order.CurrencyCode)
	req.Number = p.card.Number
	req.Expires = p.card.ExpiryMMYY()
	req.Cvv2Val = p.card.CVV
	req.Mode = "P"
	if p.order.Installment > 1 {
		req.Taksit = strconv.Itoa(p.order.Installment)
	}
	return req
}

func (p *EstPos) createRegularPostXML() cc5Request {
	req := p.baseRequest()
	req.Type = txTypes[pos.TxPostPay]
	req.OrderID = p.order.ID
	return req
}

// create3DPaymentXML carries the ACS authentication outcome into the final
// authorization. Number holds the md token from the callback.
func (p *EstPos) create3DPaymentXML(callback map[string]string) cc5Request {
	req := p.baseRequest()
	req.Type = txTypes[p.TxType()]
	req.IPAddress = p.order.IP
	req.Email = p.order.Email
	req.OrderID = p.order.ID
	req.Total = p.order.Amount2DP()
	req.Currency = strconv.Itoa(p.order.CurrencyCode)
	req.Number = callback["md"]
	req.PayerTxnID = callback["xid"]
	req.PayerSecurityLevel = callback["eci"]
	req.PayerAuthenticationCode = callback["cavv"]
	req.CardholderPresentCode = "13"
	req.Mode = "P"
	if p.order.Installment > 1 {
		req.Taksit = strconv.Itoa(p.order.Installment)
	}
	return req
}

func (p *EstPos) createCancelXML() cc5Request {
	req := p.baseRequest()
	req.Type = txTypes[pos.TxCancel]
	req.OrderID = p.order.ID
	return req
}

func (p *EstPos) createRefundXML() cc5Request {
	req := p.baseRequest()
	req.Type = txTypes[pos.TxRefund]
	req.OrderID = p.order.ID
	req.Total = p.order.Amount2DP()
	req.Currency = strconv.Itoa(p.order.CurrencyCode)
	return req
}

func (p *EstPos) createStatusXML() cc5Request {
	req := p.baseRequest()
	req.OrderID = p.order.ID
	req.Extra = &requestExtra{OrderStatus: "QUERY"}
	return req
}

func (p *EstPos) createHistoryXML() cc5Request {
	req := p.baseRequest()
	req.OrderID = p.order.ID
	req.Extra = &requestExtra{OrderHistory: "QUERY"}
	return req
}

// create3DFormData builds the hash-signed auto-submit form for the hosted
// 3D gateway page. 3d_pay and 3d_host sign the transaction type and
// installment count into the hash as well.
func (p *EstPos) create3DFormData() (*pos.ThreeDFormData, error) {
	if p.order.SuccessURL == "" || p.order.FailURL == "" {
		return nil, &pos.ValidationError{Bank: "estpos", Field: "order urls", Reason: "success and fail urls are required for 3D payments"}
	}

	txType := txTypes[p.TxType()]
	taksit := ""
	if p.order.Installment > 1 {
		taksit = strconv.Itoa(p.order.Installment)
	}

	inputs := map[string]string{
		"clientid":  p.account.ClientID,
		"storetype": string(p.account.Model),
		"firmaadi":  p.order.Name,
		"Email":     p.order.Email,
		"amount":    p.order.Amount2DP(),
		"oid":       p.order.ID,
		"okUrl":     p.order.SuccessURL,
		"failUrl":   p.order.FailURL,
		"rnd":       p.order.Rand,
		"lang":      p.order.Lang,
		"currency":  strconv.Itoa(p.order.CurrencyCode),
		"islemtipi": txType,
		"taksit":    taksit,
		"hash":      p.create3DHash(txType, taksit),
	}

	if p.card != nil {
		inputs["pan"] = p.card.Number
		inputs["Ecom_Payment_Card_ExpDate_Month"] = p.card.ExpireMonth
		inputs["Ecom_Payment_Card_ExpDate_Year"] = p.card.ExpireYearShort()
		inputs["cv2"] = p.card.CVV
		if code, ok := cardTypes[p.card.Brand]; ok {
			inputs["cardType"] = code
		}
	}

	return &pos.ThreeDFormData{
		GatewayURL: p.gatewayURL,
		Inputs:     inputs,
	}, nil
}

// create3DHash signs the redirect form: base64(sha1(plain)).
func (p *EstPos) create3DHash(txType, taksit string) string {
	plain := p.account.ClientID + p.order.ID + p.order.Amount2DP() +
		p.order.SuccessURL + p.order.FailURL
	if p.account.Model == pos.Model3DPay || p.account.Model == pos.Model3DHost {
		plain += txType + taksit
	}
	plain += p.order.Rand + p.account.StoreKey

	return hashSHA1(plain)
}

// check3DHash verifies the gateway callback signature. The callback names
// its own signed parameters in HASHPARAMS and ships their concatenation in
// HASHPARAMSVAL; both the concatenation and the hash must match.
func (p *EstPos) check3DHash(callback map[string]string) bool {
	params := callback["HASHPARAMS"]
	paramsVal := callback["HASHPARAMSVAL"]
	hash := callback["HASH"]
	if params == "" || hash == "" {
		return false
	}

	var plain strings.Builder
	for _, name := range strings.Split(params, ":") {
		if name == "" {
			continue
		}
		plain.WriteString(callback[name])
	}

	if plain.String() != paramsVal {
		return false
	}
	return hashSHA1(plain.String()+p.account.StoreKey) == hash
}

// cc5Response is the EST API response. Extra fields vary per inquiry type
// and are collected generically.
type cc5Response struct {
	XMLName        xml.Name    `xml:"CC5Response"`
	OrderID        string      `xml:"OrderId"`
	GroupID        string      `xml:"GroupId"`
	Response       string      `xml:"Response"`
	AuthCode       string      `xml:"AuthCode"`
	HostRefNum     string      `xml:"HostRefNum"`
	ProcReturnCode string      `xml:"ProcReturnCode"`
	TransID        string      `xml:"TransId"`
	ErrMsg         string      `xml:"ErrMsg"`
	Extra          extraFields `xml:"Extra"`
}

type extraFields struct {
	Elems []extraElem `xml:",any"`
}

type extraElem struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// send posts the CC5Request document and normalizes the bank response.
func (p *EstPos) send(ctx context.Context, payload cc5Request) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("estpos: failed to marshal request: %w", err)
	}

	p.SetRequested()
	resp, err := p.httpClient.PostXML(ctx, p.apiURL, []byte(xml.Header+string(body)))
	if err != nil {
		return err
	}

	p.Complete(p.parseResponse(resp.Body))
	return nil
}

// parseResponse maps the CC5Response to the normalized statuses.
// ProcReturnCode "00" means approved. Malformed bodies degrade to an error
// result instead of failing the trigger.
func (p *EstPos) parseResponse(body []byte) *pos.Response {
	var cc5 cc5Response
	if err := xml.Unmarshal(body, &cc5); err != nil {
		return &pos.Response{
			Success:      false,
			Status:       pos.StatusError,
			OrderID:      p.order.ID,
			ErrorMessage: (&pos.ParseError{Bank: "estpos", Err: err}).Error(),
		}
	}

	raw := map[string]any{
		"Response":       cc5.Response,
		"ProcReturnCode": cc5.ProcReturnCode,
		"OrderId":        cc5.OrderID,
		"GroupId":        cc5.GroupID,
		"AuthCode":       cc5.AuthCode,
		"HostRefNum":     cc5.HostRefNum,
		"TransId":        cc5.TransID,
		"ErrMsg":         cc5.ErrMsg,
	}
	for _, elem := range cc5.Extra.Elems {
		raw["Extra."+elem.XMLName.Local] = elem.Value
	}

	resp := &pos.Response{
		OrderID:        p.order.ID,
		GroupID:        cc5.GroupID,
		TransactionID:  cc5.TransID,
		AuthCode:       cc5.AuthCode,
		HostRefNum:     cc5.HostRefNum,
		ProcReturnCode: cc5.ProcReturnCode,
		Raw:            raw,
	}
	if cc5.OrderID != "" {
		resp.OrderID = cc5.OrderID
	}

	if cc5.ProcReturnCode == "00" {
		resp.Success = true
		resp.Status = pos.StatusApproved
	} else {
		resp.Status = pos.StatusDeclined
		resp.ErrorCode = cc5.ProcReturnCode
		resp.ErrorMessage = cc5.ErrMsg
	}
	return resp
}

// parseCallbackResponse normalizes a 3d_pay/3d_host gateway callback, which
// already carries the authorization result.
func (p *EstPos) parseCallbackResponse(callback map[string]string) *pos.Response {
	resp := &pos.Response{
		OrderID:        p.order.ID,
		TransactionID:  callback["TransId"],
		AuthCode:       callback["AuthCode"],
		HostRefNum:     callback["HostRefNum"],
		ProcReturnCode: callback["ProcReturnCode"],
		Raw:            rawFromStrings(callback),
	}
	if oid := callback["oid"]; oid != "" {
		resp.OrderID = oid
	}

	if callback["ProcReturnCode"] == "00" {
		resp.Success = true
		resp.Status = pos.StatusApproved
	} else {
		resp.Status = pos.StatusDeclined
		resp.ErrorCode = callback["ProcReturnCode"]
		resp.ErrorMessage = callback["ErrMsg"]
	}
	return resp
}

// mdStatusOK reports whether the ACS authentication result allows the
// payment to proceed. 1 is full authentication; 2, 3 and 4 are the
// attempt/half-secure outcomes the scheme still accepts.
func mdStatusOK(mdStatus string) bool {
	switch mdStatus {
	case "1", "2", "3", "4":
		return true
	}
	return false
}

func hashSHA1(plain string) string {
	sum := sha1.Sum([]byte(plain))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func rawFromStrings(data map[string]string) map[string]any {
	raw := make(map[string]any, len(data))
	for k, v := range data {
		raw[k] = v
	}
	return raw
}
