package notifier

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Client wraps the NATS connection used for group notifications
type Client struct {
	servers              string
	nc                   *nats.Conn
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// NewClient creates a new NATS notification client
func NewClient(servers string) *Client {
	return &Client{
		servers:              servers,
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: 10,
	}
}

// Connect establishes a connection to the NATS server
func (c *Client) Connect() error {
	opts := []nats.Option{
		nats.Name("chitfund-engine"),
		nats.MaxReconnects(c.maxReconnectAttempts),
		nats.ReconnectWait(c.reconnectDelay),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c.nc = nc
	log.WithField("servers", c.servers).Info("Connected to NATS")
	return nil
}

// Publish sends a message to the specified subject. Notifications are
// fire-and-forget: delivery failures are logged, never returned.
func (c *Client) Publish(subject string, data []byte) {
	if c.nc == nil {
		log.WithField("subject", subject).Warn("NATS not connected, dropping notification")
		return
	}

	if err := c.nc.Publish(subject, data); err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to publish notification")
		return
	}

	log.WithFields(log.Fields{
		"subject": subject,
		"size":    len(data),
	}).Debug("Published notification")
}

// IsConnected returns true if the client is connected to NATS
func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Close shuts down the NATS connection
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
		log.Info("NATS connection closed")
	}
}
