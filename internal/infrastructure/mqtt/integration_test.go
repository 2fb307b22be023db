//go:build integration

package mqtt

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
)

// Integration tests against an in-process broker.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

// startBroker runs an in-process broker on a free local port. The returned
// stop func shuts the broker down and is safe to call more than once.
func startBroker(t *testing.T) (*mochi.Server, int, func()) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	server := mochi.New(&mochi.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("AddHook() error = %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: "127.0.0.1:" + strconv.Itoa(port)})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("AddListener() error = %v", err)
	}
	go func() {
		_ = server.Serve()
	}()

	stop := sync.OnceFunc(func() { _ = server.Close() })
	t.Cleanup(stop)
	return server, port, stop
}

func integrationConfig(port int, clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			ClientID: clientID,
		},
		Topic:        "home/relay",
		QoS:          1,
		CleanSession: true,
		OnLost:       config.PolicyExit,
	}
}

// publish sends a QoS 1 message through the broker's inline client.
func publish(t *testing.T, server *mochi.Server, topic, payload string) {
	t.Helper()
	if err := server.Publish(topic, []byte(payload), false, 1); err != nil {
		t.Fatalf("Publish(%s) error = %v", payload, err)
	}
}

func TestIntegration_ReceiveInOrder(t *testing.T) {
	server, port, _ := startBroker(t)
	cfg := integrationConfig(port, "miot-int-order")

	s := New(cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	err := s.Subscribe(ctx, "home/+", 1, func(m Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(m.Payload))
		if len(got) == 3 {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, p := range []string{"ON", "OFF", "1"} {
		publish(t, server, "home/relay", p)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("messages not received within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "ON" || got[1] != "OFF" || got[2] != "1" {
		t.Errorf("received %v, want [ON OFF 1]", got)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	_, port, _ := startBroker(t)
	cfg := integrationConfig(port+1, "miot-int-refused")
	if cfg.Broker.Port > 65535 {
		t.Skip("no adjacent port available")
	}

	s := New(cfg)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.Connect(ctx)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_BrokerShutdownIsFatal(t *testing.T) {
	_, port, stopBroker := startBroker(t)
	cfg := integrationConfig(port, "miot-int-lost")

	s := New(cfg)
	defer s.Close()

	lost := make(chan error, 1)
	s.SetOnConnectionLost(func(err error) { lost <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Subscribe(ctx, "home/relay", 1, func(Message) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	stopBroker()

	select {
	case err := <-lost:
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("lost error = %v, want ErrConnectionLost", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connection-lost callback not invoked")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() after loss error = %v", err)
	}
}
