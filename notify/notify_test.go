package notify

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *nats.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping embedded NATS notifier test in short mode")
	}

	ns, err := server.NewServer(&server.Options{Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	conn, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "project.abc.events", Subject("abc"))
}

func TestPublishAndJoin(t *testing.T) {
	conn := newTestConn(t)
	n := NewNotifier(conn, nil)

	received := make(chan Event, 4)
	unsubscribe, err := n.Join("p1", func(e Event) { received <- e })
	require.NoError(t, err)
	defer unsubscribe()

	n.Publish("p1", TypeProjectUpdate, map[string]any{
		"status":   "creating",
		"progress": 30,
	})

	select {
	case event := <-received:
		assert.Equal(t, TypeProjectUpdate, event.Type)
		assert.Equal(t, "p1", event.ProjectID)
		assert.Equal(t, "creating", event.Payload["status"])
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestJoinIsScopedToProject(t *testing.T) {
	conn := newTestConn(t)
	n := NewNotifier(conn, nil)

	received := make(chan Event, 4)
	unsubscribe, err := n.Join("p1", func(e Event) { received <- e })
	require.NoError(t, err)
	defer unsubscribe()

	n.Publish("p2", TypeFileCreated, map[string]any{"path": "app.py"})
	n.Publish("p1", TypeFileCreated, map[string]any{"path": "main.py"})

	select {
	case event := <-received:
		assert.Equal(t, "p1", event.ProjectID)
		assert.Equal(t, "main.py", event.Payload["path"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	assert.Empty(t, received)
}

func TestNilConnectionIsSafe(t *testing.T) {
	n := NewNotifier(nil, nil)

	// Neither call may panic or error
	n.Publish("p1", TypeLogEntry, nil)
	unsubscribe, err := n.Join("p1", func(Event) {})
	require.NoError(t, err)
	unsubscribe()
}
