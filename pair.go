package companion

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/browser"
)

// PairingOption configures a PairingSession.
type PairingOption func(*PairingSession)

// WithPairingHost sets the interface the session listens on.
func WithPairingHost(host string) PairingOption {
	return func(s *PairingSession) {
		if host != "" {
			s.host = host
		}
	}
}

// WithPairingLoginURL overrides the companion login page URL.
func WithPairingLoginURL(loginURL string) PairingOption {
	return func(s *PairingSession) {
		if loginURL != "" {
			s.loginURL = loginURL
		}
	}
}

// WithBrowserLaunch controls the best-effort browser launch on Start.
func WithBrowserLaunch(launch bool) PairingOption {
	return func(s *PairingSession) { s.launchBrowser = launch }
}

// WithPairingLogger sets a custom logger.
func WithPairingLogger(logger *slog.Logger) PairingOption {
	return func(s *PairingSession) { s.logger = logger }
}

// PairingSession is a short-lived local HTTP listener that yields exactly
// one auth token and then shuts itself down. Two completion paths race: the
// browser redirect to /callback and the manual paste to /submit-token;
// whichever fires first wins, and the listener stops accepting connections
// before the session resolves.
//
// The session is owned by its caller for the duration of one registration
// run; nothing here is package-global, so concurrent runs cannot clobber
// each other's server handle.
type PairingSession struct {
	host          string
	loginURL      string
	launchBrowser bool
	logger        *slog.Logger

	listener net.Listener
	server   *http.Server

	completeOnce sync.Once
	tokenCh      chan string
}

// NewPairingSession creates a session with the given options. Call Start to
// bind the listener, then Wait for the token.
func NewPairingSession(opts ...PairingOption) *PairingSession {
	s := &PairingSession{
		host:          "127.0.0.1",
		loginURL:      DefaultPairingLoginURL,
		launchBrowser: true,
		logger:        slog.Default(),
		tokenCh:       make(chan string, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds an OS-assigned port on the configured host and begins serving.
// If enabled, it makes a best-effort attempt to open the user's browser at
// the session URL; a launch failure is logged and never fatal, the user can
// always browse to the printed URL manually.
func (s *PairingSession) Start() error {
	if s.listener != nil {
		return errors.New("pairing session already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, "0"))
	if err != nil {
		return fmt.Errorf("pairing server listen: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.routes()}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("pairing server stopped", "error", err)
		}
	}()

	s.logger.Info("pairing server listening", "url", s.URL())

	if s.launchBrowser {
		if err := browser.OpenURL(s.URL()); err != nil {
			s.logger.Warn("could not open browser; open the pairing URL manually", "url", s.URL(), "error", err)
		}
	}

	return nil
}

// URL returns the local session URL.
func (s *PairingSession) URL() string {
	return "http://" + s.listener.Addr().String()
}

// CallbackURL returns the URL the companion site redirects back to.
func (s *PairingSession) CallbackURL() string {
	return s.URL() + "/callback"
}

// PairingURL returns the companion login URL carrying the callback.
func (s *PairingSession) PairingURL() string {
	return s.loginURL + "?returnUrl=" + url.QueryEscape(s.CallbackURL())
}

// Wait blocks until the session resolves or ctx is cancelled. The listener
// is already closed by the time the token is returned.
func (s *PairingSession) Wait(ctx context.Context) (string, error) {
	select {
	case token := <-s.tokenCh:
		return token, nil
	case <-ctx.Done():
		s.Close()
		return "", fmt.Errorf("pairing aborted: %w", ctx.Err())
	}
}

// Close tears the session down without resolving it.
func (s *PairingSession) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// complete resolves the session exactly once. The listener is closed
// synchronously before the token is delivered, so by the time Wait returns
// no new connections are being accepted; a losing completion path finds a
// closed server.
func (s *PairingSession) complete(token string) {
	s.completeOnce.Do(func() {
		s.listener.Close()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.server.Shutdown(ctx)
		}()
		s.tokenCh <- token
	})
}

func (s *PairingSession) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Post("/submit-token", s.handleSubmitToken)
	r.Get("/callback", s.handleCallback)
	return r
}

func (s *PairingSession) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, indexPage, map[string]string{
		"PairingURL":  s.PairingURL(),
		"CallbackURL": s.CallbackURL(),
	})
}

func (s *PairingSession) handleSubmitToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "could not parse form", http.StatusBadRequest)
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	s.logger.Debug("token received via manual submission", "token_length", len(token))
	s.render(w, donePage, nil)
	s.complete(token)
}

func (s *PairingSession) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.render(w, noTokenPage, nil)
		return
	}
	s.logger.Debug("token received via callback", "token_length", len(token))
	s.render(w, donePage, nil)
	s.complete(token)
}

func (s *PairingSession) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Warn("rendering pairing page", "error", err)
	}
}

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><title>Rust+ Pairing</title></head>
<body>
<h1>Rust+ Pairing</h1>
<p>Sign in with Steam on the Rust+ companion site. After you sign in you
will be redirected back here automatically.</p>
<p><a href="{{.PairingURL}}"><button>Open Rust+ login</button></a></p>
<p>Callback URL: <code>{{.CallbackURL}}</code></p>
<h2>Manual entry</h2>
<p>If the redirect does not work, paste the token here:</p>
<form method="post" action="/submit-token">
<textarea name="token" rows="4" cols="80" placeholder="Paste your token"></textarea>
<br>
<button type="submit">Submit token</button>
</form>
</body>
</html>
`))

var donePage = template.Must(template.New("done").Parse(`<!doctype html>
<html>
<head><title>Rust+ Pairing</title></head>
<body>
<h1>Pairing complete</h1>
<p>Token received. You can close this window and return to the terminal.</p>
</body>
</html>
`))

var noTokenPage = template.Must(template.New("notoken").Parse(`<!doctype html>
<html>
<head><title>Rust+ Pairing</title></head>
<body>
<h1>No token in callback</h1>
<p>The callback did not carry a token. Go <a href="/">back to the start
page</a> and try again, or use the manual entry form.</p>
</body>
</html>
`))
