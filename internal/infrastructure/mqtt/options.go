package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/nerrad567/remapd/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
	maxPayloadSize           = 1 << 20

	// clientIDPrefix starts generated client IDs.
	clientIDPrefix = "remapd-"
)

// clientID returns the configured client ID, or a generated one. Two
// daemons with the same ID would keep kicking each other off the broker.
func clientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return clientIDPrefix + uuid.NewString()[:8]
}

// buildClientOptions maps the mqtt config section onto paho options:
// ssl:// when TLS is on, optional credentials, clean sessions, and
// reconnects backing off from InitialDelay to MaxDelay.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(clientID(cfg)).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	return opts
}

// statusPayload renders the retained JSON body of the system status topic.
// reason is omitted when empty.
func statusPayload(status, clientID, reason string) []byte {
	body := []byte(`{"service":"remapd"}`)
	body, _ = sjson.SetBytes(body, "status", status)    //nolint:errcheck // plain keys cannot fail
	body, _ = sjson.SetBytes(body, "client_id", clientID) //nolint:errcheck // plain keys cannot fail
	if reason != "" {
		body, _ = sjson.SetBytes(body, "reason", reason) //nolint:errcheck // plain keys cannot fail
	}
	body, _ = sjson.SetBytes(body, "timestamp", time.Now().UTC().Format(time.RFC3339)) //nolint:errcheck // plain keys cannot fail
	return body
}
