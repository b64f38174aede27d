package companion

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairClient makes one connection per request so checks against a closed
// listener are not satisfied by a pooled keep-alive connection.
func pairClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   5 * time.Second,
	}
}

func startTestSession(t *testing.T, opts ...PairingOption) *PairingSession {
	t.Helper()
	opts = append([]PairingOption{WithBrowserLaunch(false)}, opts...)
	s := NewPairingSession(opts...)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })
	return s
}

func waitForToken(t *testing.T, s *PairingSession) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token, err := s.Wait(ctx)
	require.NoError(t, err)
	return token
}

func TestPairingSession_IndexPage(t *testing.T) {
	s := startTestSession(t, WithPairingLoginURL("https://example.test/login"))

	resp, err := pairClient().Get(s.URL())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	page := string(body)
	assert.Contains(t, page, s.CallbackURL())
	assert.Contains(t, page, url.QueryEscape(s.CallbackURL()), "pairing link must carry the encoded callback")
	assert.Contains(t, page, `action="/submit-token"`)
	assert.Contains(t, page, "https://example.test/login?returnUrl=")
}

func TestPairingSession_SubmitToken(t *testing.T) {
	s := startTestSession(t)
	client := pairClient()

	resp, err := client.PostForm(s.URL()+"/submit-token", url.Values{"token": {"abc"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "abc", waitForToken(t, s))

	// The listener must no longer accept connections.
	_, err = client.Get(s.URL())
	require.Error(t, err)
}

func TestPairingSession_SubmitToken_Empty(t *testing.T) {
	s := startTestSession(t)
	client := pairClient()

	resp, err := client.PostForm(s.URL()+"/submit-token", url.Values{"token": {""}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Still listening: a later valid submission completes the session.
	resp, err = client.PostForm(s.URL()+"/submit-token", url.Values{"token": {"later"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "later", waitForToken(t, s))
}

func TestPairingSession_Callback(t *testing.T) {
	s := startTestSession(t)

	resp, err := pairClient().Get(s.URL() + "/callback?token=xyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "xyz", waitForToken(t, s))
}

func TestPairingSession_CallbackWithoutToken(t *testing.T) {
	s := startTestSession(t)
	client := pairClient()

	resp, err := client.Get(s.URL() + "/callback")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "back to the start")

	// Session not resolved; the server keeps listening.
	resp, err = client.Get(s.URL() + "/callback?token=eventually")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "eventually", waitForToken(t, s))
}

func TestPairingSession_ResolvesExactlyOnce(t *testing.T) {
	s := startTestSession(t)
	client := pairClient()

	// Race the two completion paths. Exactly one wins; the loser either
	// gets its response from the draining server or finds it closed.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		resp, err := client.PostForm(s.URL()+"/submit-token", url.Values{"token": {"form"}})
		if err == nil {
			resp.Body.Close()
		}
	}()
	go func() {
		defer wg.Done()
		resp, err := client.Get(s.URL() + "/callback?token=callback")
		if err == nil {
			resp.Body.Close()
		}
	}()

	token := waitForToken(t, s)
	assert.Contains(t, []string{"form", "callback"}, token)
	wg.Wait()

	// No second resolution is buffered.
	select {
	case extra := <-s.tokenCh:
		t.Fatalf("session resolved twice, second token %q", extra)
	default:
	}

	// And the listener is closed for any further completion attempt.
	_, err := client.Get(s.URL() + "/callback?token=late")
	require.Error(t, err)
}

func TestPairingSession_WaitAbortsOnContextCancel(t *testing.T) {
	s := startTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPairingSession_PairingURL(t *testing.T) {
	s := startTestSession(t)

	u := s.PairingURL()
	assert.True(t, strings.HasPrefix(u, DefaultPairingLoginURL+"?returnUrl="))
	assert.Contains(t, u, url.QueryEscape(s.CallbackURL()))
}
