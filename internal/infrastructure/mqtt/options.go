package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/readingd/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout bounds publish, subscribe and unsubscribe waits.
	defaultOpTimeout = 5 * time.Second

	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	// clientIDSuffixLen is how much of a UUID is appended to a generated client id.
	clientIDSuffixLen = 8
)

// clientID returns the configured client id, or "readingd-<random>" when
// none is set so two instances never evict each other from the broker.
func clientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return "readingd-" + uuid.NewString()[:clientIDSuffixLen]
}

// buildClientOptions creates paho options: broker URL, credentials,
// clean session, auto-reconnect with backoff and TLS when enabled.
func buildClientOptions(cfg config.MQTTConfig, id string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(id)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetWill(Topics{}.SystemStatus(), string(statusPayload(id, "offline", "unexpected_disconnect")), 1, true)

	return opts
}

type statusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload encodes a system status message.
func statusPayload(id, status, reason string) []byte {
	b, _ := json.Marshal(statusMessage{ //nolint:errcheck // plain strings always marshal
		Status:    status,
		ClientID:  id,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}
