package services

import (
	"context"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
)

const (
	alipayProductPagePay = "FAST_INSTANT_TRADE_PAY"
	alipayProductWapPay  = "QUICK_WAP_WAY"
)

// PaymentGateway creates payable links and authenticates callbacks.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (string, error)
	VerifyNotification(form url.Values) bool
	AppID() string
}

// PaymentRequest describes one order to be paid.
type PaymentRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	Subject     string
	Body        string
	PaymentType string
}

// AlipayConfig holds merchant credentials and callback URLs.
type AlipayConfig struct {
	AppID      string
	PrivateKey string
	PublicKey  string
	Production bool
	NotifyURL  string
	ReturnURL  string
}

// AlipayClient builds signed page/WAP pay links and verifies asynchronous
// notifications with RSA2.
type AlipayClient struct {
	cfg    AlipayConfig
	client *alipay.Client
}

// NewAlipayClient loads the merchant private key and the gateway public key.
// Keys may be PEM blocks or bare base64 DER.
func NewAlipayClient(cfg AlipayConfig) (*AlipayClient, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay app id is required")
	}
	privateKey, err := bareKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("alipay private key: %w", err)
	}
	client, err := alipay.New(cfg.AppID, privateKey, cfg.Production)
	if err != nil {
		return nil, fmt.Errorf("alipay private key: %w", err)
	}

	publicKey, err := bareKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	if err := client.LoadAliPayPublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	return &AlipayClient{cfg: cfg, client: client}, nil
}

func (c *AlipayClient) AppID() string {
	return c.cfg.AppID
}

// CreatePayment returns the signed gateway URL the payer is redirected to.
func (c *AlipayClient) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	trade := alipay.Trade{
		NotifyURL:   c.cfg.NotifyURL,
		ReturnURL:   c.cfg.ReturnURL,
		Subject:     req.Subject,
		Body:        req.Body,
		OutTradeNo:  req.OrderID,
		TotalAmount: req.Amount.StringFixed(2),
	}

	var (
		link *url.URL
		err  error
	)
	if req.PaymentType == "mobile" {
		trade.ProductCode = alipayProductWapPay
		link, err = c.client.TradeWapPay(alipay.TradeWapPay{Trade: trade})
	} else {
		trade.ProductCode = alipayProductPagePay
		link, err = c.client.TradePagePay(alipay.TradePagePay{Trade: trade})
	}
	if err != nil {
		return "", fmt.Errorf("sign alipay request: %w", err)
	}
	return link.String(), nil
}

// VerifyNotification checks the RSA2 signature over every field except
// sign and sign_type.
func (c *AlipayClient) VerifyNotification(form url.Values) bool {
	if form.Get("sign") == "" {
		return false
	}
	if signType := form.Get("sign_type"); signType != "" && signType != "RSA2" {
		return false
	}
	ok, err := c.client.VerifySign(form)
	return err == nil && ok
}

// bareKey strips PEM armor so keys configured either way load the same.
func bareKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is empty")
	}
	if block, _ := pem.Decode([]byte(key)); block != nil {
		return base64.StdEncoding.EncodeToString(block.Bytes), nil
	}
	bare := strings.Join(strings.Fields(key), "")
	if _, err := base64.StdEncoding.DecodeString(bare); err != nil {
		return "", errors.New("key is neither PEM nor base64")
	}
	return bare, nil
}
