package companion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/moss-dev/rustplus-companion/fcm"
)

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithRegistrarHTTPClient sets the HTTP client used for the vendor calls.
func WithRegistrarHTTPClient(client *http.Client) RegistrarOption {
	return func(r *Registrar) { r.httpClient = client }
}

// WithRegistrarLogger sets a custom logger.
func WithRegistrarLogger(logger *slog.Logger) RegistrarOption {
	return func(r *Registrar) { r.logger = logger }
}

// WithPairingOptions sets the options passed to the pairing session the run
// creates.
func WithPairingOptions(opts ...PairingOption) RegistrarOption {
	return func(r *Registrar) { r.pairingOpts = opts }
}

// Registrar sequences the end-to-end registration flow: installation auth,
// device check-in, push registration, Expo token bridging, the pairing
// session, the final companion registration, and persistence.
//
// The steps run strictly in order with no parallelism; each step's output
// feeds the next, and a failure at any step aborts the whole run. There is
// no partial resume; a failed run is restarted from the beginning.
type Registrar struct {
	app         fcm.AppConfig
	store       *Store
	exchange    *Exchange
	httpClient  *http.Client
	logger      *slog.Logger
	pairingOpts []PairingOption

	// Step hooks, overridable in tests.
	install  func(ctx context.Context, client *http.Client, app fcm.AppConfig) (string, error)
	checkIn  func(ctx context.Context, client *http.Client) (fcm.DeviceIdentity, error)
	register func(ctx context.Context, client *http.Client, identity fcm.DeviceIdentity, installationAuth string, app fcm.AppConfig, logger *slog.Logger) (string, error)
	pair     func(ctx context.Context) (string, error)
}

// NewRegistrar creates a Registrar writing to store and exchanging tokens
// through exchange.
func NewRegistrar(app fcm.AppConfig, store *Store, exchange *Exchange, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		app:        app,
		store:      store,
		exchange:   exchange,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),

		install:  fcm.RequestInstallation,
		checkIn:  fcm.CheckIn,
		register: fcm.Register,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pair == nil {
		r.pair = r.runPairing
	}
	return r
}

// Run executes the full registration flow and persists the resulting
// credential bundle. The returned bundle is what was written.
func (r *Registrar) Run(ctx context.Context) (*CredentialBundle, error) {
	r.logger.Info("requesting installation auth", "project", r.app.ProjectID)
	installationAuth, err := r.install(ctx, r.httpClient, r.app)
	if err != nil {
		return nil, fmt.Errorf("installation auth: %w", err)
	}

	r.logger.Info("performing device check-in")
	identity, err := r.checkIn(ctx, r.httpClient)
	if err != nil {
		return nil, fmt.Errorf("device check-in: %w", err)
	}
	r.logger.Info("check-in complete", "android_id", identity.AndroidID)

	r.logger.Info("registering for push notifications")
	fcmToken, err := r.register(ctx, r.httpClient, identity, installationAuth, r.app, r.logger)
	if err != nil {
		return nil, fmt.Errorf("push registration: %w", err)
	}
	r.logger.Info("push registration complete", "token_prefix", truncate(fcmToken, 12))

	expoToken, err := r.exchange.ExpoPushToken(ctx, fcmToken)
	if err != nil {
		return nil, err
	}

	authToken, err := r.pair(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("pairing complete", "auth_token_length", len(authToken))

	if err := r.exchange.RegisterWithRustPlus(ctx, authToken, expoToken); err != nil {
		return nil, err
	}

	bundle := &CredentialBundle{
		FCMCredentials: &fcm.Credentials{
			GCM: identity,
			FCM: fcm.TokenCredential{Token: fcmToken},
		},
		ExpoPushToken:     expoToken,
		RustPlusAuthToken: authToken,
	}
	if err := r.store.Save(bundle); err != nil {
		return nil, fmt.Errorf("persisting credentials: %w", err)
	}

	r.logger.Info("registration complete", "config", r.store.Path())
	return bundle, nil
}

// runPairing hosts a pairing session and waits for its single resolution.
func (r *Registrar) runPairing(ctx context.Context) (string, error) {
	opts := append([]PairingOption{WithPairingLogger(r.logger)}, r.pairingOpts...)
	session := NewPairingSession(opts...)
	if err := session.Start(); err != nil {
		return "", err
	}
	defer session.Close()

	r.logger.Info("waiting for pairing", "url", session.URL())
	return session.Wait(ctx)
}
