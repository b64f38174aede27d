package fcm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// installationsURL is a package-level var so tests can override it. The
// project ID is appended as /v1/projects/{project}/installations.
var installationsURL = "https://firebaseinstallations.googleapis.com"

type installationRequest struct {
	FID         string `json:"fid"`
	AppID       string `json:"appId"`
	AuthVersion string `json:"authVersion"`
	SDKVersion  string `json:"sdkVersion"`
}

type installationResponse struct {
	AuthToken struct {
		Token string `json:"token"`
	} `json:"authToken"`
}

// generateFID produces a fresh Firebase installation ID: 17 random bytes
// with the first byte's high nibble forced to 0111 (the FID header pattern),
// base64 URL encoded without padding. A new FID must be generated per
// installation request; reusing one would tie separate registrations to the
// same installation identity.
func generateFID() (string, error) {
	b := make([]byte, 17)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate fid: %w", err)
	}
	b[0] = 0b0111_0000 | (b[0] & 0x0f)
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequestInstallation registers a fresh installation identity with the
// Firebase installation service and returns the installation auth token.
// The token is short-lived and used once, immediately, by Register.
func RequestInstallation(ctx context.Context, httpClient *http.Client, app AppConfig) (string, error) {
	fid, err := generateFID()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(installationRequest{
		FID:         fid,
		AppID:       app.AppID,
		AuthVersion: "FIS_v2",
		SDKVersion:  "a:17.0.0",
	})
	if err != nil {
		return "", fmt.Errorf("installation: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/installations", installationsURL, app.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("installation: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", app.APIKey)
	req.Header.Set("X-Android-Package", app.AndroidPackageName)
	req.Header.Set("X-Android-Cert", app.AndroidPackageCert)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("installation: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("installation: read response: %w", err)
	}

	var installResp installationResponse
	// Decode errors fall through to the empty-token check below so the raw
	// body always reaches the error message.
	_ = json.Unmarshal(respBody, &installResp)

	if installResp.AuthToken.Token == "" {
		return "", &AuthError{Body: string(respBody)}
	}

	return installResp.AuthToken.Token, nil
}
