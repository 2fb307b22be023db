package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Defaults(t *testing.T) {
	m := New("")

	if got := testutil.ToFloat64(m.RelayState); got != RelayUnknown {
		t.Errorf("relay_state = %v, want %d", got, RelayUnknown)
	}
	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues(ResultIgnored)); got != 0 {
		t.Errorf("messages_total{ignored} = %v, want 0", got)
	}
}

func TestObserveActuation(t *testing.T) {
	m := New("test")

	m.ObserveActuation("High", time.Millisecond)
	m.ObserveActuation("High", time.Millisecond)
	if got := testutil.ToFloat64(m.ActuationsTotal.WithLabelValues("High")); got != 2 {
		t.Errorf("actuations_total{High} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RelayState); got != RelayHigh {
		t.Errorf("relay_state = %v, want high", got)
	}

	m.ObserveActuation("Low", time.Millisecond)
	if got := testutil.ToFloat64(m.RelayState); got != RelayLow {
		t.Errorf("relay_state = %v, want low", got)
	}
}

func TestObserveMessageAndConnectionLost(t *testing.T) {
	m := New("test")

	m.ObserveMessage(ResultActuated)
	m.ObserveMessage(ResultIgnored)
	m.ObserveMessage(ResultIgnored)
	m.ObserveConnectionLost()
	m.SetSessionState(3)

	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues(ResultIgnored)); got != 2 {
		t.Errorf("messages_total{ignored} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConnectionLostTotal); got != 1 {
		t.Errorf("connection_lost_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionState); got != 3 {
		t.Errorf("session_state = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("")
	m.ObserveActuation("High", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`miot_relay_actuations_total{state="High"} 1`,
		"miot_relay_relay_state 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(""), New("")
	a.ObserveConnectionLost()

	if testutil.ToFloat64(b.ConnectionLostTotal) != 0 {
		t.Error("metrics instances share state")
	}
}
