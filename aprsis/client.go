// Package aprsis maintains the TCP session to an APRS-IS relay: dial, login
// handshake, the blocking line read-loop, and shutdown. Decoded packets are
// delivered on a buffered channel; connection-status transitions are
// reported through a callback.
package aprsis

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"aprswx/packet"
)

const (
	productName    = "APRSwx"
	productVersion = "1.0"

	dialTimeout      = 30 * time.Second
	handshakeTimeout = 3 * time.Second
	handshakeLines   = 5
	readPollInterval = time.Second
	disconnectWait   = 5 * time.Second
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateLoggingIn     State = "logging_in"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateError         State = "error"
)

// Status is emitted on every state transition. Reason is set for error
// transitions and clean disconnects.
type Status struct {
	State     State     `json:"state"`
	Connected bool      `json:"connected"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"timestamp"`
}

// StatusFunc receives status transitions. Called from the client's worker
// goroutine; implementations must not block.
type StatusFunc func(Status)

// Filter is the server-side range filter. A zero RangeKM sends no filter
// clause and the relay serves its default feed.
type Filter struct {
	Latitude  float64
	Longitude float64
	RangeKM   int
}

// Spec renders the relay's range-filter grammar, or "" when unset.
func (f Filter) Spec() string {
	if f.RangeKM <= 0 {
		return ""
	}
	return fmt.Sprintf("r/%.3f/%.3f/%d", f.Latitude, f.Longitude, f.RangeKM)
}

// Client owns at most one APRS-IS session at a time. Construct with
// NewClient, call Connect to start a session and Disconnect to end it; the
// at-most-one-session invariant is enforced by the internal state machine,
// not by global state.
type Client struct {
	host     string
	port     int
	onStatus StatusFunc
	packets  chan *packet.Packet

	mu     sync.Mutex
	state  State
	conn   net.Conn
	cancel chan struct{}
	done   chan struct{}
}

// NewClient creates a client for the given relay endpoint. bufferSize
// controls how many decoded packets may queue between the read-loop and the
// downstream pipeline.
func NewClient(host string, port int, bufferSize int, onStatus StatusFunc) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Client{
		host:     host,
		port:     port,
		onStatus: onStatus,
		packets:  make(chan *packet.Packet, bufferSize),
		state:    StateDisconnected,
	}
}

// Packets returns the channel of decoded packets from the read-loop.
func (c *Client) Packets() <-chan *packet.Packet {
	return c.packets
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the session has completed login.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect validates credentials and starts the session worker. The callsign
// must be a real identity (not empty, not the receive-only placeholder) and
// the passcode a positive number: that pair is what authorizes sending a
// filter to the relay. Validation failures are rejected before any socket
// is opened. On acceptance, exactly one worker goroutine is spawned and
// Connect returns immediately; a second call while a session is live is a
// no-op with a logged notice.
func (c *Client) Connect(callsign string, passcode int, filter Filter) error {
	if err := validateCredentials(callsign, passcode); err != nil {
		c.emit(Status{State: StateError, Reason: err.Error()})
		c.emit(Status{State: StateDisconnected})
		return err
	}
	if computed, err := Passcode(callsign); err == nil && computed != passcode {
		log.Printf("aprsis: passcode %d does not match the computed passcode for %s", passcode, callsign)
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		log.Printf("aprsis: already connected (state=%s), ignoring connect", c.state)
		return nil
	}
	c.state = StateConnecting
	c.cancel = make(chan struct{})
	c.done = make(chan struct{})
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.emit(Status{State: StateConnecting})
	go c.run(callsign, passcode, filter, cancel, done)
	return nil
}

// Disconnect requests the worker to stop, force-closes the socket to
// unblock any pending read, and waits (bounded) for the worker to exit.
// Calling it when not connected is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel = nil
	c.mu.Unlock()

	c.emit(Status{State: StateDisconnecting})

	if cancel != nil {
		close(cancel)
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(disconnectWait):
			log.Printf("aprsis: worker did not exit within %s", disconnectWait)
		}
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()
	c.emit(Status{State: StateDisconnected, Reason: "disconnected by request"})
}

// run is the single worker owning the socket for one session: dial, login,
// read-loop, teardown.
func (c *Client) run(callsign string, passcode int, filter Filter, cancel, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("aprsis: panic in session worker: %v\n%s", r, debug.Stack())
			c.fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
	log.Printf("aprsis: connecting to %s as %s", addr, callsign)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		c.fail(fmt.Sprintf("connect to %s failed: %v", addr, err))
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect raced the dial; drop the fresh socket.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateLoggingIn
	c.mu.Unlock()
	c.emit(Status{State: StateLoggingIn})

	reader := bufio.NewReader(conn)
	if err := c.login(conn, reader, callsign, passcode, filter); err != nil {
		conn.Close()
		c.fail(err.Error())
		return
	}

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	log.Printf("aprsis: logged in to %s", addr)
	c.emit(Status{State: StateConnected, Connected: true})

	c.readLoop(conn, reader, cancel)
}

// login writes the single CRLF-terminated login line and reads a bounded
// number of response lines. Any line containing "verified", "unverified" or
// the server's "logresp" acknowledgment counts as success; failing that, at
// least one non-empty line is accepted leniently (observed relay behavior:
// some servers stream data without an explicit acknowledgment). No response
// at all within the timeout is a login failure.
func (c *Client) login(conn net.Conn, reader *bufio.Reader, callsign string, passcode int, filter Filter) error {
	line := fmt.Sprintf("user %s pass %d vers %s %s", callsign, passcode, productName, productVersion)
	if spec := filter.Spec(); spec != "" {
		line += " filter " + spec
	}
	line += "\r\n"

	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	sawResponse := false
	for i := 0; i < handshakeLines; i++ {
		conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		response, err := reader.ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "" {
			log.Printf("aprsis: server: %s", response)
			sawResponse = true
			lower := strings.ToLower(response)
			if strings.Contains(lower, "verified") || strings.Contains(lower, "logresp") {
				return nil
			}
		}
		if err != nil {
			break
		}
		if response == "" {
			break
		}
	}

	if sawResponse {
		log.Printf("aprsis: no explicit acknowledgment, assuming login success")
		return nil
	}
	return fmt.Errorf("login failed: no response from server")
}

// readLoop receives with a short poll timeout so a disconnect request is
// noticed promptly, carries partial lines across reads, skips relay comment
// lines ('#' prefix), and decodes everything else. The poll deadline is a
// shutdown check, not a protocol timeout.
func (c *Client) readLoop(conn net.Conn, reader *bufio.Reader, cancel chan struct{}) {
	var carry string
	for {
		select {
		case <-cancel:
			c.finish("disconnected by request")
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readPollInterval))
		chunk, err := reader.ReadString('\n')
		carry += chunk

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-cancel:
				c.finish("disconnected by request")
			default:
				conn.Close()
				c.fail(fmt.Sprintf("read error: %v", err))
			}
			return
		}

		line := strings.TrimSpace(carry)
		carry = ""
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.dispatch(line)
	}
}

// dispatch decodes one line and hands it downstream without blocking the
// read-loop; a full channel drops the packet.
func (c *Client) dispatch(line string) {
	p := packet.Decode(line, time.Now().UTC())
	select {
	case c.packets <- p:
	default:
		log.Printf("aprsis: packet channel full (capacity=%d), dropping packet", cap(c.packets))
	}
}

// fail reports a session failure and returns the machine to Disconnected.
// There is no automatic retry; a new Connect starts the next session.
func (c *Client) fail(reason string) {
	log.Printf("aprsis: %s", reason)
	c.mu.Lock()
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()
	c.emit(Status{State: StateError, Reason: reason})
	c.emit(Status{State: StateDisconnected})
}

// finish reports a caller-requested clean termination of the read-loop.
func (c *Client) finish(reason string) {
	log.Printf("aprsis: session closed: %s", reason)
	c.mu.Lock()
	if c.state != StateDisconnecting {
		c.state = StateDisconnected
	}
	c.conn = nil
	c.mu.Unlock()
}

func (c *Client) emit(st Status) {
	if c.onStatus == nil {
		return
	}
	st.Time = time.Now().UTC()
	c.onStatus(st)
}

// validateCredentials enforces the precondition for opening a session: a
// non-placeholder callsign and a positive numeric passcode.
func validateCredentials(callsign string, passcode int) error {
	call := strings.ToUpper(strings.TrimSpace(callsign))
	if call == "" {
		return fmt.Errorf("aprsis: callsign is required")
	}
	if call == "NOCALL" || call == "N0CALL" {
		return fmt.Errorf("aprsis: placeholder callsign %s is receive-only; set a real callsign", call)
	}
	if passcode <= 0 {
		return fmt.Errorf("aprsis: passcode must be a positive number")
	}
	return nil
}
