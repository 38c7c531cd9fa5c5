package nats

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/condoguard/domain/entity"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAuditPublisher_Publish(t *testing.T) {
	ns := runServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	msgs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("condoguard.audit.security_event.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(ns.ClientURL(), "", quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	entry, err := entity.NewAuditLogEntry(entity.AuditLogParams{
		Type:      entity.AuditTypeSecurityEvent,
		Action:    string(entity.ActionXSSAttempt),
		RiskScore: entity.Score(55),
		IPAddress: "198.51.100.4",
	})
	require.NoError(t, err)
	entry.ID = "entry-1"

	require.NoError(t, pub.Publish(context.Background(), entry))

	select {
	case msg := <-msgs:
		assert.Equal(t, "condoguard.audit.security_event.xss_attempt", msg.Subject)
		var got entity.AuditLogEntry
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "entry-1", got.ID)
		assert.Equal(t, 55, *got.RiskScore)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestAuditPublisher_SubjectTokens(t *testing.T) {
	p := NewAuditPublisher(nil, "audit", quietLogger())
	e := &entity.AuditLogEntry{Type: entity.AuditTypeAdminAction, Action: "unit.reassign *all"}

	assert.Equal(t, "audit.admin_action.unit_reassign__all", p.Subject(e))
}

func TestAuditPublisher_CanceledContext(t *testing.T) {
	p := NewAuditPublisher(nil, "", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, &entity.AuditLogEntry{Type: entity.AuditTypeSystemEvent, Action: "boot"})
	assert.ErrorIs(t, err, context.Canceled)
}
