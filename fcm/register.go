package fcm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// registerURL is a package-level var so tests can override it.
var registerURL = "https://android.clients.google.com/c2dm/register3"

// registerRetryDelay is the fixed pause between registration attempts.
// Var rather than const so tests can shrink it.
var registerRetryDelay = time.Second

// registerMaxRetries bounds the retries after the first attempt, for six
// attempts in total.
const registerMaxRetries = 5

// errErrorResponse marks a registration response carrying the server's
// "Error" marker; these are the only responses worth retrying.
var errErrorResponse = errors.New("registration response contained an error marker")

// ErrMalformedRegisterResponse is returned when a non-error registration
// response does not have the expected key=value shape. The endpoint is
// undocumented and versioned, so this is surfaced distinctly instead of
// handing back a token that is really the whole body.
var ErrMalformedRegisterResponse = errors.New("unexpected registration response shape")

// Register exchanges the device identity and installation auth token for an
// FCM push token at the GCM registration endpoint.
//
// Responses whose body contains the literal "Error" are retried up to five
// more times with a fixed one second delay, reusing the same identity and
// installation auth. Exhausting all six attempts yields
// ErrRegistrationFailed. On success the token is everything after the first
// '=' in the response body.
func Register(ctx context.Context, httpClient *http.Client, identity DeviceIdentity, installationAuth string, app AppConfig, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		token, err := registerOnce(ctx, httpClient, identity, installationAuth, app)
		if err != nil {
			if errors.Is(err, errErrorResponse) {
				logger.Warn("registration attempt failed", "attempt", attempt, "error", err)
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return token, nil
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn("retrying registration", "delay", delay, "error", err)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(registerRetryDelay), registerMaxRetries),
		ctx,
	)

	token, err := backoff.RetryNotifyWithData(op, bo, notify)
	if err != nil {
		if errors.Is(err, errErrorResponse) {
			return "", ErrRegistrationFailed
		}
		return "", err
	}
	return token, nil
}

func registerOnce(ctx context.Context, httpClient *http.Client, identity DeviceIdentity, installationAuth string, app AppConfig) (string, error) {
	form := url.Values{
		"app":       {app.AndroidPackageName},
		"cert":      {app.AndroidPackageCert},
		"device":    {identity.AndroidID},
		"sender":    {app.GCMSenderID},
		"X-subtype": {app.GCMSenderID},

		// Fixed protocol/version constants matching the shipping app.
		"app_ver": {"1.0.0"},
		"X-scope": {"*"},
		"X-osv":   {"25"},
		"X-cliv":  {"fiid-21.1.1"},
		"X-gmsv":  {"214815028"},

		"X-Goog-Firebase-Installations-Auth": {installationAuth},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registerURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gcm register: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", fmt.Sprintf("AidLogin %s:%s", identity.AndroidID, identity.SecurityToken))
	req.Header.Set("app", app.AndroidPackageName)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcm register: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gcm register: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gcm register: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	body := strings.TrimSpace(string(respBody))
	if strings.Contains(body, "Error") {
		return "", fmt.Errorf("%w: %s", errErrorResponse, body)
	}

	// Compatibility contract with the endpoint: the token is everything
	// after the first '='.
	_, token, found := strings.Cut(body, "=")
	if !found || token == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedRegisterResponse, truncate(body, 64))
	}
	return token, nil
}

// truncate returns the first maxLen characters of s, or s itself if shorter.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
