package mpesa

import (
	"fmt"
	"strings"

	"mpesa-gateway/config"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	TransactionTypePayBill  = "CustomerPayBillOnline"
	TransactionTypeBuyGoods = "CustomerBuyGoodsOnline"
)

// Credentials is the immutable provider configuration shared by every call.
type Credentials struct {
	ShortCode      string
	PassKey        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	Environment    string

	// PartyB is the till or store number for buy goods payments.
	// Defaults to ShortCode.
	PartyB          string
	TransactionType string
	// BaseURL overrides the environment default.
	BaseURL string
}

func LoadCredentials(cfg config.MpesaConfig) Credentials {
	return Credentials{
		ShortCode:       strings.TrimSpace(cfg.ShortCode),
		PassKey:         strings.TrimSpace(cfg.PassKey),
		ConsumerKey:     strings.TrimSpace(cfg.ConsumerKey),
		ConsumerSecret:  strings.TrimSpace(cfg.ConsumerSecret),
		CallbackURL:     strings.TrimSpace(cfg.CallbackURL),
		Environment:     strings.ToLower(strings.TrimSpace(cfg.Environment)),
		PartyB:          strings.TrimSpace(cfg.PartyB),
		TransactionType: strings.TrimSpace(cfg.TransactionType),
		BaseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
	}
}

// Validate returns the names of required settings that are empty.
func (c Credentials) Validate() []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"MPESA_SHORT_CODE", c.ShortCode},
		{"MPESA_PASS_KEY", c.PassKey},
		{"MPESA_CONSUMER_KEY", c.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.ConsumerSecret},
		{"MPESA_CALLBACK_URL", c.CallbackURL},
		{"MPESA_ENVIRONMENT", c.Environment},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Check returns a *ConfigurationError when the credentials cannot be used.
func (c Credentials) Check() error {
	if missing := c.Validate(); len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	if c.Environment != EnvironmentSandbox && c.Environment != EnvironmentProduction {
		return &ConfigurationError{Reason: fmt.Sprintf("MPESA_ENVIRONMENT must be %q or %q, got %q", EnvironmentSandbox, EnvironmentProduction, c.Environment)}
	}
	switch c.transactionType() {
	case TransactionTypePayBill, TransactionTypeBuyGoods:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unsupported MPESA_TRANSACTION_TYPE %q", c.TransactionType)}
	}
	return nil
}

// CheckCallbackAuth refuses a live production setup whose callback endpoint
// would accept unauthenticated results.
func CheckCallbackAuth(cfg config.MpesaConfig) error {
	if cfg.Simulate || strings.ToLower(strings.TrimSpace(cfg.Environment)) != EnvironmentProduction {
		return nil
	}
	if strings.TrimSpace(cfg.CallbackTokenHash) == "" {
		return &ConfigurationError{Missing: []string{"MPESA_CALLBACK_TOKEN_HASH"}}
	}
	return nil
}

func (c Credentials) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Environment == EnvironmentProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c Credentials) receiver() string {
	if c.PartyB != "" {
		return c.PartyB
	}
	return c.ShortCode
}

func (c Credentials) transactionType() string {
	if c.TransactionType == "" {
		return TransactionTypePayBill
	}
	return c.TransactionType
}
