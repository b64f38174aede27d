package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCompanionAPIBase is the Facepunch companion API base URL.
	DefaultCompanionAPIBase = "https://companion-rust.facepunch.com/api"

	// DefaultPairingLoginURL is the companion site login page that starts a
	// pairing session in the user's browser.
	DefaultPairingLoginURL = "https://companion-rust.facepunch.com/login"

	// expoProjectID is the Expo project the Rust+ app registers under.
	expoProjectID = "49451aca-a822-41e6-ad59-955718d0ff9c"

	// expoAppID is the Expo application identifier (the Android package).
	expoAppID = "com.facepunch.rust.companion"
)

// expoPushTokenURL is a package-level var so tests can override it.
var expoPushTokenURL = "https://exp.host/--/api/v2/push/getExpoPushToken"

// APIError represents an HTTP error from an external exchange.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
	Method     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// ExchangeOption configures Exchange.
type ExchangeOption func(*Exchange)

// WithAPIBase sets the companion API base URL.
func WithAPIBase(base string) ExchangeOption {
	return func(e *Exchange) {
		if base != "" {
			e.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithExchangeHTTPClient sets a custom HTTP client.
func WithExchangeHTTPClient(client *http.Client) ExchangeOption {
	return func(e *Exchange) { e.httpClient = client }
}

// WithExchangeLogger sets a custom logger.
func WithExchangeLogger(logger *slog.Logger) ExchangeOption {
	return func(e *Exchange) { e.logger = logger }
}

// Exchange performs the two one-shot external calls of the registration
// flow: bridging the FCM token into Expo's token namespace, and the final
// push registration against the companion API.
type Exchange struct {
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewExchange creates an Exchange with the given options.
func NewExchange(opts ...ExchangeOption) *Exchange {
	e := &Exchange{
		apiBase:    DefaultCompanionAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type expoPushTokenRequest struct {
	Type        string `json:"type"`
	DeviceID    string `json:"deviceId"`
	Development bool   `json:"development"`
	AppID       string `json:"appId"`
	DeviceToken string `json:"deviceToken"`
	ProjectID   string `json:"projectId"`
}

type expoPushTokenResponse struct {
	Data struct {
		ExpoPushToken string `json:"expoPushToken"`
	} `json:"data"`
}

// ExpoPushToken exchanges an FCM push token for an Expo push token. A fresh
// device UUID is minted per call, matching the app's behavior of treating
// every registration run as a new device.
func (e *Exchange) ExpoPushToken(ctx context.Context, fcmToken string) (string, error) {
	e.logger.Debug("requesting Expo push token", "fcm_token_prefix", truncate(fcmToken, 12))

	body := expoPushTokenRequest{
		Type:        "fcm",
		DeviceID:    uuid.NewString(),
		Development: false,
		AppID:       expoAppID,
		DeviceToken: fcmToken,
		ProjectID:   expoProjectID,
	}

	var resp expoPushTokenResponse
	if err := e.postJSON(ctx, expoPushTokenURL, body, &resp); err != nil {
		return "", fmt.Errorf("expo push token: %w", err)
	}
	if resp.Data.ExpoPushToken == "" {
		return "", fmt.Errorf("expo push token: response carried no token")
	}

	e.logger.Debug("Expo push token obtained", "token_prefix", truncate(resp.Data.ExpoPushToken, 12))
	return resp.Data.ExpoPushToken, nil
}

type pushRegisterRequest struct {
	AuthToken string `json:"AuthToken"`
	DeviceID  string `json:"DeviceId"`
	PushKind  int    `json:"PushKind"`
	PushToken string `json:"PushToken"`
}

// RegisterWithRustPlus binds the Expo push token to the paired user account
// at the companion registration endpoint.
func (e *Exchange) RegisterWithRustPlus(ctx context.Context, authToken, expoPushToken string) error {
	e.logger.Debug("registering push token with companion API")

	body := pushRegisterRequest{
		AuthToken: authToken,
		DeviceID:  "rustplus-companion",
		PushKind:  3,
		PushToken: expoPushToken,
	}

	if err := e.postJSON(ctx, e.apiBase+"/push/register", body, nil); err != nil {
		return fmt.Errorf("companion push register: %w", err)
	}
	return nil
}

// postJSON posts body as JSON and decodes a 2xx response into out (when out
// is non-nil). Non-2xx responses become an *APIError.
func (e *Exchange) postJSON(ctx context.Context, url string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
			URL:        url,
			Method:     http.MethodPost,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// truncate returns the first maxLen characters of s, or s itself if shorter.
// Used to keep token material out of logs.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
