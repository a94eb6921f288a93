package datagate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionLifecycle tests start, lookup and end of a session
func TestSessionLifecycle(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	service, _ := newTestService(t, WithMetrics(metrics))

	ctx := WithUserAgent(WithIPAddress(context.Background(), "10.0.0.7"), "datagate-test/1.0")
	cred := service.RegisterCredential(ctx, "alice", "correct horse", PermRead, PermNone).Payload()

	started := service.StartSession(ctx, cred)
	require.True(t, started.Success(), started.Message())
	session := started.Payload()
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, cred.ID, session.CredentialID)
	assert.Equal(t, "10.0.0.7", session.IPAddress)
	assert.Equal(t, "datagate-test/1.0", session.UserAgent)
	assert.Equal(t, int64((12 * time.Hour).Seconds()), session.TTLSeconds)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))

	active := service.ActiveSession(ctx, session.Token)
	require.True(t, active.Success())
	assert.Equal(t, session.ID, active.Payload().ID)

	require.True(t, service.EndSession(ctx, session.Token).Success())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))

	assert.Equal(t, ReasonIdempotency, service.EndSession(ctx, session.Token).Reason())
	assert.Equal(t, ReasonNotFound, service.ActiveSession(ctx, session.Token).Reason())
	assert.Equal(t, ReasonNotFound, service.EndSession(ctx, "unknown").Reason())
	assert.Equal(t, ReasonNotFound, service.ActiveSession(ctx, "unknown").Reason())
}

// TestSessionExpiry tests that expired sessions are not active
func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)

	require.NoError(t, store.CreateSession(ctx, &Session{
		Token:        "stale",
		CredentialID: "u1",
		Timestamp:    time.Now().Add(-2 * time.Hour),
		TTLSeconds:   60,
	}))
	assert.Equal(t, ReasonNotFound, service.ActiveSession(ctx, "stale").Reason())
}

// TestStartSessionWithoutCredential tests the tamper check
func TestStartSessionWithoutCredential(t *testing.T) {
	service, _ := newTestService(t)
	assert.Equal(t, ReasonTamper, service.StartSession(context.Background(), nil).Reason())
}

// TestServiceAuthenticate tests login through the service and broker
func TestServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	require.True(t, service.RegisterCredential(ctx, "alice", "correct horse", PermRead, PermNone).Success())

	broker := service.NewBroker()
	res := service.Authenticate(ctx, broker, "alice", "correct horse")
	require.True(t, res.Success(), res.Message())
	require.NotNil(t, broker.Actor())
	assert.Equal(t, "alice", broker.Actor().Username)
	assert.True(t, service.ActiveSession(ctx, res.Payload().Token).Success())

	t.Run("wrong password leaves the broker untouched", func(t *testing.T) {
		other := service.NewBroker()
		res := service.Authenticate(ctx, other, "alice", "wrong horse")
		assert.Equal(t, ReasonForbidden, res.Reason())
		assert.Nil(t, other.Actor())
	})

	t.Run("nil broker only starts a session", func(t *testing.T) {
		res := service.Authenticate(ctx, nil, "alice", "correct horse")
		assert.True(t, res.Success())
	})
}

// staleSessions returns sessions as they were before any of them ended,
// as two callers racing on the same token would see them.
type staleSessions struct {
	*MemoryStore
}

func (s staleSessions) FindSession(ctx context.Context, token string) (*Session, error) {
	session, err := s.MemoryStore.FindSession(ctx, token)
	if err != nil {
		return nil, err
	}
	session.EndTimestamp = nil
	return session, nil
}

// TestEndSessionRace tests that only one of two overlapping ends succeeds
func TestEndSessionRace(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetrics(prometheus.NewRegistry())
	store := NewMemoryStore()
	service, _ := newTestService(t, WithMetrics(metrics), WithDirectory(staleSessions{store}))

	require.True(t, service.RegisterCredential(ctx, "alice", "correct horse", PermRead, PermNone).Success())
	cred, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	session := service.StartSession(ctx, cred).Payload()

	require.True(t, service.EndSession(ctx, session.Token).Success())
	assert.Equal(t, ReasonIdempotency, service.EndSession(ctx, session.Token).Reason())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))
}

// TestEndSessionConcurrent tests concurrent ends of one session
func TestEndSessionConcurrent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	cred := service.RegisterCredential(ctx, "alice", "correct horse", PermRead, PermNone).Payload()
	token := service.StartSession(ctx, cred).Payload().Token

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if service.EndSession(ctx, token).Success() {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded.Load())
}
