// Package events publishes export-completion notifications to NATS.
package events

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/config"
)

const (
	connectionName = "aws-inventory-connector"
	reconnectWait  = 2 * time.Second
	drainTimeout   = 5 * time.Second
)

// Publisher announces completed exports on NATS. Publishing is
// fire-and-forget: a failed publish logs a warning and never surfaces
// to the export path.
type Publisher struct {
	conn    *nats.Conn
	publish func(subject string, data []byte) error
	prefix  string
	logger  *zap.Logger
	now     func() time.Time
}

// event is the wire payload for a completed export.
type event struct {
	Kind      string `json:"kind"`
	Records   int    `json:"records"`
	FilePath  string `json:"file_path"`
	Timestamp string `json:"timestamp"`
}

// NewPublisher connects to NATS with the configured authentication and
// TLS settings. The connection reconnects indefinitely; events emitted
// while disconnected are buffered by the client until reconnect.
func NewPublisher(cfg *config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(connectionName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			} else {
				logger.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := newTLSConfig(&cfg.TLS, logger)
		if err != nil {
			return nil, fmt.Errorf("creating TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
		logger.Info("TLS enabled for NATS connection",
			zap.Bool("client_cert", cfg.TLS.CertFile != ""),
			zap.Bool("ca_cert", cfg.TLS.CAFile != ""),
			zap.Bool("skip_verify", cfg.TLS.InsecureSkipVerify))

		if cfg.TLS.InsecureSkipVerify {
			logger.Warn("TLS certificate verification is DISABLED - this is insecure and should only be used in development")
		}
	}

	switch cfg.Auth.Type {
	case "token":
		logger.Info("Using token authentication")
		opts = append(opts, nats.Token(cfg.Auth.Token))
	case "userpass":
		logger.Info("Using username/password authentication", zap.String("username", cfg.Auth.Username))
		opts = append(opts, nats.UserInfo(cfg.Auth.Username, cfg.Auth.Password))
	case "none", "":
		logger.Info("Using no authentication")
	default:
		return nil, fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	logger.Info("Connecting to NATS", zap.Strings("urls", cfg.URLs))
	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("server_id", conn.ConnectedServerId()),
		zap.Bool("tls", conn.TLSRequired()))

	return &Publisher{
		conn:    conn,
		publish: conn.Publish,
		prefix:  cfg.SubjectPrefix,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// newTLSConfig builds the TLS settings for the broker connection,
// loading the CA bundle and client keypair when configured.
func newTLSConfig(cfg *config.TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CAFile != "" {
		logger.Info("Loading CA certificate", zap.String("file", cfg.CAFile))

		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parsing CA certificate %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		logger.Info("Loading client certificate",
			zap.String("cert", cfg.CertFile),
			zap.String("key", cfg.KeyFile))

		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// subjectFor returns the subject an export kind publishes under.
func subjectFor(prefix, kind string) string {
	return prefix + ".exports." + kind
}

// ExportCompleted publishes a notification for a finished export file.
func (p *Publisher) ExportCompleted(kind string, records int, filePath string) {
	subject := subjectFor(p.prefix, kind)
	data, err := json.Marshal(event{
		Kind:      kind,
		Records:   records,
		FilePath:  filePath,
		Timestamp: p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Warn("Could not encode export event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	if err := p.publish(subject, data); err != nil {
		p.logger.Warn("Could not publish export event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	p.logger.Debug("Published export event",
		zap.String("subject", subject),
		zap.Int("records", records))
}

// Drain flushes buffered events and closes the connection, forcing a
// close if the broker does not acknowledge within the timeout.
func (p *Publisher) Drain() error {
	if p.conn == nil {
		return nil
	}
	if !p.conn.IsConnected() && p.conn.IsClosed() {
		p.logger.Info("NATS connection already closed")
		return nil
	}

	p.logger.Info("Draining NATS connection", zap.Duration("timeout", drainTimeout))
	drainDone := make(chan error, 1)
	go func() {
		drainDone <- p.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil {
			p.logger.Error("Error during NATS drain", zap.Error(err))
			return err
		}
		p.logger.Info("NATS drain completed")
		return nil
	case <-time.After(drainTimeout):
		p.logger.Warn("NATS drain timeout, forcing close")
		p.conn.Close()
		return fmt.Errorf("drain timeout after %v", drainTimeout)
	}
}
