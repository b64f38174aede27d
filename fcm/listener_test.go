package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{ io.Reader }

func (nopConn) Write(p []byte) (int, error) { return len(p), nil }
func (nopConn) Close() error                { return nil }

func testDial(ctx context.Context) (io.ReadWriteCloser, error) {
	return nopConn{Reader: bytes.NewReader(nil)}, nil
}

// scriptedTransport replays canned notifications through the event callbacks.
type scriptedTransport struct {
	notifications map[string]string // persistentID -> payload
	order         []string
	runErr        error

	gotIdentity      DeviceIdentity
	gotPersistentIDs []string
}

func (s *scriptedTransport) Run(ctx context.Context, conn io.ReadWriteCloser, identity DeviceIdentity, persistentIDs []string, events TransportEvents) error {
	defer conn.Close()
	s.gotIdentity = identity
	s.gotPersistentIDs = persistentIDs

	if events.Connected != nil {
		events.Connected()
	}
	for _, id := range s.order {
		events.Notification(id, []byte(s.notifications[id]))
	}
	return s.runErr
}

func TestListener_NoTransport(t *testing.T) {
	l := NewListener(testIdentity(), nil, WithDial(testDial))
	err := l.Connect(context.Background())
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestListener_DispatchesPairingNotification(t *testing.T) {
	pairingBody := `{"type":"server","id":"srv-1","name":"Test Server","ip":"203.0.113.7","port":"28082","playerId":"76561198000000000","playerToken":"-1532103494"}`
	payload, err := json.Marshal(map[string]string{
		"title":     "Server Pairing",
		"message":   "Tap to pair with this server.",
		"channelId": "pairing",
		"body":      pairingBody,
	})
	require.NoError(t, err)

	transport := &scriptedTransport{
		notifications: map[string]string{"pid-1": string(payload)},
		order:         []string{"pid-1"},
	}

	l := NewListener(testIdentity(), []string{"pid-0"}, WithDial(testDial), WithTransport(transport))

	var got []Notification
	var connected bool
	l.OnConnected(func() { connected = true })
	l.OnNotification(func(n Notification) { got = append(got, n) })

	require.NoError(t, l.Connect(context.Background()))

	assert.True(t, connected)
	assert.Equal(t, testIdentity(), transport.gotIdentity)
	assert.Equal(t, []string{"pid-0"}, transport.gotPersistentIDs)

	require.Len(t, got, 1)
	assert.Equal(t, "pid-1", got[0].PersistentID)
	assert.Equal(t, "pairing", got[0].ChannelID)

	pairing, ok := got[0].Pairing()
	require.True(t, ok)
	assert.Equal(t, "Test Server", pairing.Name)
	assert.Equal(t, "203.0.113.7", pairing.IP)
	assert.Equal(t, "28082", pairing.Port)
	assert.Equal(t, "-1532103494", pairing.PlayerToken)

	assert.Equal(t, []string{"pid-0", "pid-1"}, l.PersistentIDs())
}

func TestListener_NonPairingNotification(t *testing.T) {
	n := Notification{ChannelID: "alarm", Body: `{"ip":"1.2.3.4"}`}
	_, ok := n.Pairing()
	assert.False(t, ok)

	n = Notification{ChannelID: "pairing", Body: "not json"}
	_, ok = n.Pairing()
	assert.False(t, ok)
}

func TestListener_InvalidPayloadReportsError(t *testing.T) {
	transport := &scriptedTransport{
		notifications: map[string]string{"pid-bad": "{invalid"},
		order:         []string{"pid-bad"},
	}

	l := NewListener(testIdentity(), nil, WithDial(testDial), WithTransport(transport))

	var notifications int
	var errs []error
	l.OnNotification(func(Notification) { notifications++ })
	l.OnError(func(err error) { errs = append(errs, err) })

	require.NoError(t, l.Connect(context.Background()))
	assert.Zero(t, notifications)
	require.Len(t, errs, 1)
	assert.Empty(t, l.PersistentIDs(), "rejected payloads must not be marked processed")
}

func TestListener_PersistentIDPruning(t *testing.T) {
	transport := &scriptedTransport{notifications: map[string]string{}}
	for i := 0; i < maxPersistentIDs+25; i++ {
		id := fmt.Sprintf("pid-%03d", i)
		transport.notifications[id] = `{"channelId":"pairing"}`
		transport.order = append(transport.order, id)
	}

	l := NewListener(testIdentity(), nil, WithDial(testDial), WithTransport(transport))

	var lastSaved []string
	l.OnPersistentIDsChanged(func(ids []string) { lastSaved = ids })

	require.NoError(t, l.Connect(context.Background()))

	ids := l.PersistentIDs()
	require.Len(t, ids, maxPersistentIDs)
	assert.Equal(t, "pid-025", ids[0], "oldest IDs are pruned first")
	assert.Equal(t, ids, lastSaved)
}

func TestListener_TransportErrorPropagates(t *testing.T) {
	transport := &scriptedTransport{runErr: errors.New("stream reset")}
	l := NewListener(testIdentity(), nil, WithDial(testDial), WithTransport(transport))
	err := l.Connect(context.Background())
	require.ErrorContains(t, err, "stream reset")
}

func TestListener_DialErrorPropagates(t *testing.T) {
	l := NewListener(testIdentity(), nil,
		WithTransport(&scriptedTransport{}),
		WithDial(func(ctx context.Context) (io.ReadWriteCloser, error) {
			return nil, errors.New("connection refused")
		}),
	)
	err := l.Connect(context.Background())
	require.ErrorContains(t, err, "push connect")
}
