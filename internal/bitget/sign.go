package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"
)

// Credentials identifies one API session. Passed explicitly to the
// REST client and the private stream; there is no ambient session.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// sign produces the request signature: base64(hmac-sha256(secret,
// timestamp + method + pathWithQuery + body)).
func (c Credentials) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.SecretKey))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Clock tracks the offset between local and exchange time so request
// timestamps stay inside the signature tolerance window.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// Now returns the current time corrected by the last known offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Adjust records a new offset from a server-time sample, compensating
// for half the observed round trip.
func (c *Clock) Adjust(serverMs int64, roundTrip time.Duration) {
	server := time.UnixMilli(serverMs).Add(roundTrip / 2)
	offset := time.Until(server)
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
}

// Offset returns the current correction.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
