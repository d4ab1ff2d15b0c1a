package mpesa

import (
	"errors"
	"testing"

	"mpesa-gateway/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Validate(t *testing.T) {
	creds := testCredentials("")
	assert.Empty(t, creds.Validate())

	creds.PassKey = ""
	creds.CallbackURL = ""
	assert.Equal(t, []string{"MPESA_PASS_KEY", "MPESA_CALLBACK_URL"}, creds.Validate())

	assert.Len(t, Credentials{}.Validate(), 6)
}

func TestCredentials_Check(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Credentials)
		wantErr bool
	}{
		{"Complete", func(c *Credentials) {}, false},
		{"Missing consumer secret", func(c *Credentials) { c.ConsumerSecret = "" }, true},
		{"Unknown environment", func(c *Credentials) { c.Environment = "staging" }, true},
		{"Buy goods", func(c *Credentials) { c.TransactionType = TransactionTypeBuyGoods; c.PartyB = "600000" }, false},
		{"Unknown transaction type", func(c *Credentials) { c.TransactionType = "SalaryPayment" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := testCredentials("")
			tt.mutate(&creds)
			err := creds.Check()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.NotEmpty(t, cfgErr.Error())
		})
	}
}

func TestConfigurationError_ListsMissingFields(t *testing.T) {
	err := Credentials{ShortCode: "174379", Environment: EnvironmentSandbox}.Check()

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ElementsMatch(t, []string{"MPESA_PASS_KEY", "MPESA_CONSUMER_KEY", "MPESA_CONSUMER_SECRET", "MPESA_CALLBACK_URL"}, cfgErr.Missing)
	assert.Contains(t, err.Error(), "MPESA_PASS_KEY")
}

func TestLoadCredentials(t *testing.T) {
	creds := LoadCredentials(config.MpesaConfig{
		Environment:    " Production ",
		ShortCode:      "174379 ",
		PassKey:        "pk",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		CallbackURL:    "https://example.com/cb",
		BaseURL:        "http://localhost:8080/",
	})

	assert.Equal(t, EnvironmentProduction, creds.Environment)
	assert.Equal(t, "174379", creds.ShortCode)
	assert.Equal(t, "http://localhost:8080", creds.baseURL())
	assert.NoError(t, creds.Check())
}

func TestCredentials_Defaults(t *testing.T) {
	creds := testCredentials("")
	assert.Equal(t, SandboxBaseURL, creds.baseURL())
	assert.Equal(t, testShortCode, creds.receiver())
	assert.Equal(t, TransactionTypePayBill, creds.transactionType())

	creds.Environment = EnvironmentProduction
	creds.PartyB = "600000"
	assert.Equal(t, ProductionBaseURL, creds.baseURL())
	assert.Equal(t, "600000", creds.receiver())
}

func TestNewClient_RejectsIncompleteCredentials(t *testing.T) {
	fake, srv := newFakeDaraja(t)
	creds := testCredentials(srv.URL)
	creds.ConsumerKey = ""

	client, err := NewClient(creds, Options{})

	var cfgErr *ConfigurationError
	assert.Nil(t, client)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"MPESA_CONSUMER_KEY"}, cfgErr.Missing)
	assert.Zero(t, fake.calls())
}

func TestCheckCallbackAuth(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MpesaConfig
		wantErr bool
	}{
		{"Production without hash", config.MpesaConfig{Environment: "production"}, true},
		{"Production upper case without hash", config.MpesaConfig{Environment: " Production "}, true},
		{"Production with hash", config.MpesaConfig{Environment: "production", CallbackTokenHash: "$2a$10$hash"}, false},
		{"Sandbox without hash", config.MpesaConfig{Environment: "sandbox"}, false},
		{"Simulated production", config.MpesaConfig{Environment: "production", Simulate: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCallbackAuth(tt.cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, []string{"MPESA_CALLBACK_TOKEN_HASH"}, cfgErr.Missing)
		})
	}
}
