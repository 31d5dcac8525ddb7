package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/pkg/logger"
)

func startHub(t *testing.T) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(logger.NewNop())
	go s.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, s *Server, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) (*Message, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func TestDepartureBroadcast(t *testing.T) {
	s, url := startHub(t)
	all := dial(t, s, url, 1)
	bali := dial(t, s, url+"?origins=dps", 2)

	rec := departure.Record{
		ID:             9,
		FlightNumber:   "GIA404",
		OriginAirport:  "CGK",
		DepartureLocal: time.Date(2025, 3, 1, 8, 10, 0, 0, time.UTC),
		Period:         "2025-03",
	}
	if err := s.DepartureLogged(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	m, err := readMessage(t, all, 2*time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Type != MessageTypeDepartureLogged || m.Data["flight_number"] != "GIA404" || m.Data["actual_departure_time"] != "2025-03-01 08:10:00" {
		t.Errorf("message = %+v", m)
	}

	if _, err := readMessage(t, bali, 200*time.Millisecond); err == nil {
		t.Error("client filtered to DPS received a CGK departure")
	}
}

func TestSubscribeNarrowsOrigins(t *testing.T) {
	s, url := startHub(t)
	conn := dial(t, s, url, 1)

	if err := conn.WriteJSON(map[string]any{"type": MessageTypeSubscribe, "data": map[string]any{"origins": []string{"sub"}}}); err != nil {
		t.Fatal(err)
	}
	// Let the read pump apply the subscription.
	time.Sleep(50 * time.Millisecond)

	_ = s.DepartureLogged(context.Background(), departure.Record{FlightNumber: "A1", OriginAirport: "CGK"})
	_ = s.DepartureLogged(context.Background(), departure.Record{FlightNumber: "B2", OriginAirport: "SUB"})

	m, err := readMessage(t, conn, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if m.Data["flight_number"] != "B2" {
		t.Errorf("first message = %+v", m)
	}
}

func TestCycleSummaryReachesFilteredClients(t *testing.T) {
	s, url := startHub(t)
	conn := dial(t, s, url+"?origins=DPS", 1)

	s.CycleCompleted(departure.CycleReport{StationsAttempted: 14, Logged: 3})

	m, err := readMessage(t, conn, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != MessageTypeCycleCompleted || m.Data["logged"] != float64(3) {
		t.Errorf("message = %+v", m)
	}
}

func TestParseOrigins(t *testing.T) {
	got := parseOrigins(" cgk, ,DPS ")
	if len(got) != 2 || !got["CGK"] || !got["DPS"] {
		t.Errorf("parseOrigins = %v", got)
	}
	if len(parseOrigins("")) != 0 {
		t.Error("empty input should give no filter")
	}
}
