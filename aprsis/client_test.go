package aprsis

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"aprswx/packet"
)

// fakeRelay is a loopback stand-in for an APRS-IS server. handler runs once
// per accepted connection.
type fakeRelay struct {
	listener net.Listener
	accepted atomic.Int64
	logins   chan string
}

func startFakeRelay(t *testing.T, handler func(conn net.Conn, relay *fakeRelay)) (*fakeRelay, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	relay := &fakeRelay{listener: ln, logins: make(chan string, 4)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			relay.accepted.Add(1)
			go handler(conn, relay)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return relay, addr.IP.String(), addr.Port
}

func verifyingHandler(conn net.Conn, relay *fakeRelay) {
	reader := bufio.NewReader(conn)
	login, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	relay.logins <- strings.TrimSpace(login)
	conn.Write([]byte("# logresp KD8ABC verified, server T2TEST\r\n"))
	conn.Write([]byte("# comment line to be skipped\r\n"))
	conn.Write([]byte("KD8ABC-9>APZ001,WIDE1-1:=4042.77N/07400.36W>Test\r\n"))
	// Hold the connection open; the client decides when to hang up.
	reader.ReadString('\n')
	conn.Close()
}

func collectStatuses() (StatusFunc, chan Status) {
	ch := make(chan Status, 32)
	return func(st Status) {
		select {
		case ch <- st:
		default:
		}
	}, ch
}

func waitForState(t *testing.T, ch chan Status, want State) Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.State == want {
				return st
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestConnectRejectsInvalidCredentials(t *testing.T) {
	cases := []struct {
		name     string
		callsign string
		passcode int
	}{
		{"empty callsign", "", 12345},
		{"placeholder NOCALL", "NOCALL", 12345},
		{"placeholder N0CALL", "n0call", 12345},
		{"zero passcode", "KD8ABC", 0},
		{"negative passcode", "KD8ABC", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			onStatus, statuses := collectStatuses()
			c := NewClient("127.0.0.1", 1, 16, onStatus)
			if err := c.Connect(tc.callsign, tc.passcode, Filter{}); err == nil {
				t.Fatal("expected a credential rejection")
			}
			if c.State() != StateDisconnected {
				t.Fatalf("state = %s, want disconnected", c.State())
			}
			waitForState(t, statuses, StateError)
		})
	}
}

func TestLoginHandshakeAndPacketStream(t *testing.T) {
	relay, host, port := startFakeRelay(t, verifyingHandler)
	onStatus, statuses := collectStatuses()
	c := NewClient(host, port, 16, onStatus)

	filter := Filter{Latitude: 40.7128, Longitude: -74.0067, RangeKM: 100}
	if err := c.Connect("KD8ABC", 17060, filter); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	select {
	case login := <-relay.logins:
		want := "user KD8ABC pass 17060 vers APRSwx 1.0 filter r/40.713/-74.007/100"
		if login != want {
			t.Fatalf("login line = %q, want %q", login, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received a login line")
	}

	st := waitForState(t, statuses, StateConnected)
	if !st.Connected {
		t.Error("connected status must report connected=true")
	}

	select {
	case p := <-c.Packets():
		if p.Type != packet.TypePosition {
			t.Fatalf("packet type = %s, want position", p.Type)
		}
		if p.Source != "KD8ABC-9" {
			t.Errorf("source = %q", p.Source)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no packet delivered; comment lines may not be skipped correctly")
	}
}

func TestConnectTwiceKeepsSingleSession(t *testing.T) {
	relay, host, port := startFakeRelay(t, verifyingHandler)
	onStatus, statuses := collectStatuses()
	c := NewClient(host, port, 16, onStatus)

	if err := c.Connect("KD8ABC", 17060, Filter{}); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := c.Connect("KD8ABC", 17060, Filter{}); err != nil {
		t.Fatalf("second connect should be a no-op, got %v", err)
	}
	waitForState(t, statuses, StateConnected)

	if got := relay.accepted.Load(); got != 1 {
		t.Fatalf("accepted connections = %d, want 1", got)
	}
	c.Disconnect()
}

func TestDisconnectOnNeverConnectedClientIsNoop(t *testing.T) {
	c := NewClient("127.0.0.1", 1, 16, nil)
	c.Disconnect()
	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", c.State())
	}
}

func TestDisconnectInterruptsReadLoop(t *testing.T) {
	_, host, port := startFakeRelay(t, verifyingHandler)
	onStatus, statuses := collectStatuses()
	c := NewClient(host, port, 16, onStatus)

	if err := c.Connect("KD8ABC", 17060, Filter{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, statuses, StateConnected)

	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("disconnect did not complete")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", c.State())
	}
	// A caller-initiated disconnect is clean: no error status expected.
	for {
		select {
		case st := <-statuses:
			if st.State == StateError {
				t.Fatalf("unexpected error status after clean disconnect: %s", st.Reason)
			}
			continue
		default:
		}
		break
	}
}

func TestLenientHandshakeWithoutAckMarker(t *testing.T) {
	_, host, port := startFakeRelay(t, func(conn net.Conn, relay *fakeRelay) {
		reader := bufio.NewReader(conn)
		if _, err := reader.ReadString('\n'); err != nil {
			conn.Close()
			return
		}
		// No logresp, no verified: just a banner. The client should still
		// assume success once the handshake read window closes.
		conn.Write([]byte("# aprsc 2.1.5-g9e64e3d\r\n"))
		reader.ReadString('\n')
		conn.Close()
	})

	onStatus, statuses := collectStatuses()
	c := NewClient(host, port, 16, onStatus)
	if err := c.Connect("KD8ABC", 17060, Filter{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()
	waitForState(t, statuses, StateConnected)
}

func TestHandshakeFailsWithoutAnyResponse(t *testing.T) {
	_, host, port := startFakeRelay(t, func(conn net.Conn, relay *fakeRelay) {
		// Accept and stay silent.
		buf := make([]byte, 256)
		conn.Read(buf)
		time.Sleep(10 * time.Second)
		conn.Close()
	})

	onStatus, statuses := collectStatuses()
	c := NewClient(host, port, 16, onStatus)
	if err := c.Connect("KD8ABC", 17060, Filter{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	st := waitForState(t, statuses, StateError)
	if !strings.Contains(st.Reason, "login failed") {
		t.Errorf("error reason = %q, want login failure", st.Reason)
	}
	waitForState(t, statuses, StateDisconnected)
}

func TestFilterSpec(t *testing.T) {
	f := Filter{Latitude: 39.7, Longitude: -104.9, RangeKM: 100}
	if got := f.Spec(); got != "r/39.700/-104.900/100" {
		t.Errorf("Spec() = %q", got)
	}
	if got := (Filter{}).Spec(); got != "" {
		t.Errorf("empty filter Spec() = %q, want empty", got)
	}
}

func TestPasscodeKnownValues(t *testing.T) {
	cases := []struct {
		callsign string
		want     int
	}{
		{"N0CALL", 13023},
		{"n0call-9", 13023},
		{"W1AW", 25988},
	}
	for _, tc := range cases {
		got, err := Passcode(tc.callsign)
		if err != nil {
			t.Fatalf("Passcode(%s): %v", tc.callsign, err)
		}
		if got != tc.want {
			t.Errorf("Passcode(%s) = %d, want %d", tc.callsign, got, tc.want)
		}
	}
	if _, err := Passcode(""); err == nil {
		t.Error("expected error for empty callsign")
	}
	if _, err := Passcode("TOOLONGCALL"); err == nil {
		t.Error("expected error for oversized callsign")
	}
}
