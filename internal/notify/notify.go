// Package notify implements the Notification transport collaborator (spec
// §6.4): a single notify(text) function delivering a line of text to an
// operator, fire-and-forget and non-blocking, with failures dropped. Credential
// loading is shaped after the layered config loader in internal/config (a
// small optional YAML, home-directory default path); the transport itself --
// a bot-token/chat-id HTTP delivery -- has no direct teacher analog and is
// grounded on spec §6.4's contract plus SPEC_FULL §5's single-Transport,
// per-condition-key-rate-limited design decision (Open Question 2).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Credentials is the small optional YAML loaded from CredentialsPath.
type Credentials struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	// APIBase overrides the bot API root, for testing or a self-hosted relay.
	APIBase string `yaml:"api_base"`
}

// LoadCredentials reads credentials from path. A missing file is not an
// error -- it simply means notifications are disabled -- matching the
// "optional" framing of spec §6.1's notification-credentials source.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Transport delivers a single line of text to an operator. Implementations
// must be fire-and-forget: Notify never blocks the caller, and a delivery
// failure is swallowed (logged, not returned) per the collaborator contract.
type Transport interface {
	Notify(text string)
}

// NoopTransport drops every notification; used when Notify is disabled or
// no credentials are configured.
type NoopTransport struct{}

// Notify does nothing.
func (NoopTransport) Notify(string) {}

// BotTransport posts text to a Telegram-style bot API endpoint
// (https://api.telegram.org/bot<token>/sendMessage), chosen as the simplest
// one-way operator channel satisfying the collaborator contract.
type BotTransport struct {
	Creds  Credentials
	Client *http.Client
	Logger zerolog.Logger
}

// NewBotTransport returns a BotTransport with a bounded-timeout HTTP client.
func NewBotTransport(creds Credentials, logger zerolog.Logger) *BotTransport {
	return &BotTransport{
		Creds:  creds,
		Client: &http.Client{Timeout: 5 * time.Second},
		Logger: logger,
	}
}

// Notify delivers text asynchronously; errors are logged, never returned or
// panicked, so a flaky notification endpoint can never stall the caller.
func (b *BotTransport) Notify(text string) {
	go func() {
		if err := b.send(text); err != nil {
			b.Logger.Warn().Err(err).Msg("notify delivery failed")
		}
	}()
}

func (b *BotTransport) send(text string) error {
	base := b.Creds.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	endpoint := base + "/bot" + b.Creds.BotToken + "/sendMessage"

	body, err := json.Marshal(struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: b.Creds.ChatID, Text: text})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &url.Error{Op: "notify", URL: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// RateLimited wraps a Transport with a per-condition-key cooldown: at most
// one delivery per key within window, matching spec §7's one-shot-per-condition
// alerting policy (P7). Unlike the rule engine's guards, this lives purely in
// memory -- alert flags that must survive a restart belong in the state store
// and are cleared by the caller, not here.
type RateLimited struct {
	Inner  Transport
	Window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateLimited wraps inner with a per-key cooldown.
func NewRateLimited(inner Transport, window time.Duration) *RateLimited {
	return &RateLimited{Inner: inner, Window: window, last: make(map[string]time.Time)}
}

// NotifyKeyed delivers text under conditionKey, dropping the call entirely if
// conditionKey fired within Window. Returns true if the notification was
// sent (not rate-limited).
func (r *RateLimited) NotifyKeyed(conditionKey, text string) bool {
	r.mu.Lock()
	now := time.Now()
	if last, ok := r.last[conditionKey]; ok && now.Sub(last) < r.Window {
		r.mu.Unlock()
		return false
	}
	r.last[conditionKey] = now
	r.mu.Unlock()

	r.Inner.Notify(text)
	return true
}

// Reset clears the rate-limit record for conditionKey, allowing an
// immediate re-alert -- used when the underlying condition resolves (spec
// §7: "recovery... clears the flag so a future occurrence alerts again").
func (r *RateLimited) Reset(conditionKey string) {
	r.mu.Lock()
	delete(r.last, conditionKey)
	r.mu.Unlock()
}
