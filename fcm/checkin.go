package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// checkinURL is a package-level var so tests can override it.
var checkinURL = "https://android.clients.google.com/checkin"

type checkinRequest struct {
	Checkin       checkinPayload `json:"checkin"`
	Version       int            `json:"version"`
	ID            int            `json:"id"`
	SecurityToken int            `json:"security_token"`
	Fragment      int            `json:"fragment"`
}

type checkinPayload struct {
	Type        int                `json:"type"`
	ChromeBuild checkinChromeBuild `json:"chromeBuild"`
}

type checkinChromeBuild struct {
	Platform      int    `json:"platform"`
	ChromeVersion string `json:"chromeVersion"`
	Channel       int    `json:"channel"`
}

type checkinResponse struct {
	AndroidID     json.Number `json:"android_id"`
	SecurityToken json.Number `json:"security_token"`
}

// CheckIn performs a single device check-in exchange and returns the issued
// DeviceIdentity. The identifiers in the response are decoded as json.Number
// so the digit sequences survive unaltered; they routinely exceed 2^53.
//
// There is no retry at this layer.
func CheckIn(ctx context.Context, httpClient *http.Client) (DeviceIdentity, error) {
	body, err := json.Marshal(checkinRequest{
		Checkin: checkinPayload{
			Type: 3,
			ChromeBuild: checkinChromeBuild{
				Platform:      2,
				ChromeVersion: "63.0.3234.0",
				Channel:       1,
			},
		},
		Version: 3,
	})
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("checkin: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, checkinURL, bytes.NewReader(body))
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("checkin: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("checkin: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("checkin: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return DeviceIdentity{}, fmt.Errorf("checkin: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	var checkinResp checkinResponse
	if err := dec.Decode(&checkinResp); err != nil {
		return DeviceIdentity{}, fmt.Errorf("checkin: unmarshal response: %w", err)
	}

	if checkinResp.AndroidID == "" || checkinResp.SecurityToken == "" {
		return DeviceIdentity{}, fmt.Errorf("checkin: response missing android_id or security_token: %s", string(respBody))
	}

	return DeviceIdentity{
		AndroidID:     checkinResp.AndroidID.String(),
		SecurityToken: checkinResp.SecurityToken.String(),
	}, nil
}
