package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds the TCP/TLS dial, not the whole handshake.
	defaultConnectTimeout = 30 * time.Second

	// defaultResubscribeTimeout bounds the SUBACK wait when restoring after reconnect.
	defaultResubscribeTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending work on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// subscribeFailure is the SUBACK return code for a rejected filter.
	subscribeFailure = 0x80

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options from the relay configuration.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and optional credentials
//   - Clean session flag from config
//   - Ordered delivery so handlers run one at a time
//   - Auto-reconnect only under the reconnect policy
//   - TLS with an optional CA bundle
//   - File-backed in-flight store when store_dir is set
func buildClientOptions(cfg config.MQTTConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(cfg.CleanSession)

	// Handlers are invoked sequentially in arrival order
	opts.SetOrderMatters(true)

	// The initial connect is never retried; reconnection is a policy decision
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.OnLost == config.PolicyReconnect)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}
	if cfg.Reconnect.InitialDelay > 0 {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		tlsConfig, err := buildTLSConfig(cfg.Broker.CAFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	if cfg.StoreDir != "" {
		opts.SetStore(pahomqtt.NewFileStore(cfg.StoreDir))
	}

	return opts, nil
}

// buildTLSConfig returns a TLS configuration trusting the system roots,
// or only the certificates in caFile when it is set.
func buildTLSConfig(caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}
	if caFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA file %s contains no PEM certificates", caFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
