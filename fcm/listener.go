package fcm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// mcsAddress is the Google MCS endpoint the production dialer connects to.
const mcsAddress = "mtalk.google.com:5228"

// maxPersistentIDs bounds how many processed notification IDs are kept.
// Older IDs are pruned to stop the persisted list growing without limit.
const maxPersistentIDs = 200

// ErrNoTransport is returned by Listener.Connect when no push transport has
// been plugged in. The MCS wire protocol lives in a separate transport
// implementation; this package only defines the boundary.
var ErrNoTransport = errors.New("no push transport configured")

// Notification is a decoded FCM data message as delivered to the Rust+
// companion app.
type Notification struct {
	PersistentID string `json:"-"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	ChannelID    string `json:"channelId"`

	// Body is a nested JSON document; for pairing notifications it carries
	// the server connection details.
	Body string `json:"body"`
}

// PairingBody is the payload of a server/entity pairing notification.
type PairingBody struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"desc"`
	IP          string `json:"ip"`
	Port        string `json:"port"`
	PlayerID    string `json:"playerId"`
	PlayerToken string `json:"playerToken"`
	URL         string `json:"url"`
}

// Pairing decodes the nested pairing payload. ok is false when the
// notification is not a pairing notification or the body does not parse.
func (n Notification) Pairing() (PairingBody, bool) {
	if n.ChannelID != "pairing" || n.Body == "" {
		return PairingBody{}, false
	}
	var body PairingBody
	if err := json.Unmarshal([]byte(n.Body), &body); err != nil {
		return PairingBody{}, false
	}
	return body, true
}

// TransportEvents carries the callbacks a Transport invokes while running.
type TransportEvents struct {
	Connected    func()
	Notification func(persistentID string, payload []byte)
	Error        func(error)
}

// Transport is the boundary to the persistent push-transport implementation.
// Run owns conn and blocks until ctx is cancelled or the connection fails.
type Transport interface {
	Run(ctx context.Context, conn io.ReadWriteCloser, identity DeviceIdentity, persistentIDs []string, events TransportEvents) error
}

// ListenerOption configures Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets a custom logger for Listener.
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = logger }
}

// WithTransport plugs in the push transport implementation.
func WithTransport(t Transport) ListenerOption {
	return func(l *Listener) { l.transport = t }
}

// WithDial overrides the connection dialer (used by tests).
func WithDial(dial func(ctx context.Context) (io.ReadWriteCloser, error)) ListenerOption {
	return func(l *Listener) { l.dial = dial }
}

// Listener receives push notifications for a registered device. It owns the
// persistent-ID bookkeeping and payload decoding; the wire protocol is
// delegated to the configured Transport.
type Listener struct {
	identity  DeviceIdentity
	transport Transport
	dial      func(ctx context.Context) (io.ReadWriteCloser, error)
	logger    *slog.Logger

	mu            sync.Mutex
	persistentIDs []string

	onNotification       func(Notification)
	onConnected          func()
	onError              func(error)
	onPersistentIDsSaved func([]string)
}

// NewListener creates a Listener for the given device identity. persistentIDs
// seeds the already-processed notification IDs so the transport can report
// them on login and the server skips redelivery.
func NewListener(identity DeviceIdentity, persistentIDs []string, opts ...ListenerOption) *Listener {
	l := &Listener{
		identity:      identity,
		persistentIDs: append([]string(nil), persistentIDs...),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dial == nil {
		l.dial = dialMCS
	}
	return l
}

// OnNotification registers a callback for decoded notifications.
// Must be called before Connect.
func (l *Listener) OnNotification(fn func(Notification)) { l.onNotification = fn }

// OnConnected registers a callback invoked when the transport reports an
// established connection. Must be called before Connect.
func (l *Listener) OnConnected(fn func()) { l.onConnected = fn }

// OnError registers a callback for listener errors. Must be called before
// Connect.
func (l *Listener) OnError(fn func(error)) { l.onError = fn }

// OnPersistentIDsChanged registers a callback invoked with the full ID list
// after every accepted notification, so the caller can persist it.
// Must be called before Connect.
func (l *Listener) OnPersistentIDsChanged(fn func([]string)) { l.onPersistentIDsSaved = fn }

// PersistentIDs returns a copy of the processed notification IDs.
func (l *Listener) PersistentIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.persistentIDs...)
}

// Connect dials the push endpoint and runs the configured transport. It
// blocks until ctx is cancelled or the transport exits.
func (l *Listener) Connect(ctx context.Context) error {
	if l.transport == nil {
		return ErrNoTransport
	}

	conn, err := l.dial(ctx)
	if err != nil {
		return fmt.Errorf("push connect: %w", err)
	}

	events := TransportEvents{
		Connected: func() {
			l.logger.Debug("push transport connected")
			if l.onConnected != nil {
				l.onConnected()
			}
		},
		Notification: l.handleNotification,
		Error: func(err error) {
			l.logger.Warn("push transport error", "error", err)
			if l.onError != nil {
				l.onError(err)
			}
		},
	}

	return l.transport.Run(ctx, conn, l.identity, l.PersistentIDs(), events)
}

// handleNotification decodes a raw data-message payload and dispatches it.
func (l *Listener) handleNotification(persistentID string, payload []byte) {
	l.logger.Debug("notification received", "persistentId", persistentID)

	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		l.logger.Warn("failed to parse notification payload", "error", err)
		if l.onError != nil {
			l.onError(fmt.Errorf("parsing notification: %w", err))
		}
		return
	}
	n.PersistentID = persistentID

	if l.onNotification != nil {
		l.onNotification(n)
	}

	l.addPersistentID(persistentID)
}

// addPersistentID appends an ID, prunes the list, and notifies the saver.
func (l *Listener) addPersistentID(id string) {
	if id == "" {
		return
	}

	l.mu.Lock()
	l.persistentIDs = append(l.persistentIDs, id)
	if len(l.persistentIDs) > maxPersistentIDs {
		l.persistentIDs = l.persistentIDs[len(l.persistentIDs)-maxPersistentIDs:]
	}
	ids := append([]string(nil), l.persistentIDs...)
	l.mu.Unlock()

	if l.onPersistentIDsSaved != nil {
		l.onPersistentIDsSaved(ids)
	}
}

// dialMCS dials the MCS endpoint over TLS.
func dialMCS(ctx context.Context) (io.ReadWriteCloser, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	return (&tls.Dialer{NetDialer: dialer}).DialContext(ctx, "tcp", mcsAddress)
}
