package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
	"github.com/michalvitousek/miot/internal/infrastructure/influxdb"
)

// fakeInflux emulates the /ping and /api/v2/write endpoints.
type fakeInflux struct {
	mu          sync.Mutex
	bodies      []string
	writeStatus int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		status := f.writeStatus
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		if status >= 400 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line protocol"}`))
			return
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "relay",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteActuation(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.WriteActuation("17", "High", "home/relay")
	client.Flush()

	waitFor(t, func() bool { return strings.Contains(fake.written(), "relay_actuation") })

	got := fake.written()
	for _, want := range []string{"relay_actuation,pin=17", "state=1i", `level="High"`, `topic="home/relay"`} {
		if !strings.Contains(got, want) {
			t.Errorf("line protocol %q missing %q", got, want)
		}
	}
}

func TestWriteSessionEvent(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteSessionEvent("miot-test", "Disconnected")
	client.Flush()

	waitFor(t, func() bool { return strings.Contains(fake.written(), "relay_session,client_id=miot-test") })
}

func TestWriteErrorsReported(t *testing.T) {
	fake := &fakeInflux{writeStatus: http.StatusBadRequest}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errs := make(chan error, 4)
	client.SetOnError(func(err error) { errs <- err })

	client.WriteActuation("17", "Low", "home/relay")
	client.Flush()

	select {
	case err := <-errs:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{})
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writes after Close are dropped silently
	client.WriteActuation("17", "High", "home/relay")
	client.Flush()
}
