package mpesa

import (
	"encoding/base64"
	"time"
)

// TimestampLayout is YYYYMMDDHHmmss.
const TimestampLayout = "20060102150405"

// Daraja expects Kenyan local time, which has no daylight saving.
var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

type Signer struct {
	now func() time.Time
}

func NewSigner(now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{now: now}
}

func (s *Signer) Timestamp() string {
	return s.now().In(eastAfricaTime).Format(TimestampLayout)
}

// Password is base64(shortCode + passKey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// Sign returns a fresh password and the timestamp it was computed for.
func (s *Signer) Sign(c Credentials) (password, timestamp string) {
	timestamp = s.Timestamp()
	return Password(c.ShortCode, c.PassKey, timestamp), timestamp
}
