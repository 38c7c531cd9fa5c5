// Package nats mirrors written audit entries onto a NATS subject tree so
// downstream consumers (SIEM, alerting) can follow the audit trail live.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/domain/entity"
)

const DefaultSubjectPrefix = "condoguard.audit"

var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// AuditPublisher publishes every entry as JSON on <prefix>.<type>.<action>.
type AuditPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *logrus.Logger
}

var _ outbound.AuditPublisher = (*AuditPublisher)(nil)

// Connect dials NATS with reconnects enabled and wraps the connection.
func Connect(url, prefix string, logger *logrus.Logger) (*AuditPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("condoguard-audit"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return NewAuditPublisher(nc, prefix, logger), nil
}

func NewAuditPublisher(nc *nats.Conn, prefix string, logger *logrus.Logger) *AuditPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &AuditPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an entry is published on.
func (p *AuditPublisher) Subject(e *entity.AuditLogEntry) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken.Replace(string(e.Type)), subjectToken.Replace(e.Action))
}

func (p *AuditPublisher) Publish(ctx context.Context, e *entity.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	subject := p.Subject(e)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing audit entry to %s: %w", subject, err)
	}

	p.logger.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"subject":  subject,
		"severity": e.Severity,
	}).Debug("audit entry published")
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *AuditPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}
