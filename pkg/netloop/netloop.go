// Package netloop implements pressboard's connection multiplexer: a
// single-threaded, non-blocking poll(2) loop that accepts connections
// into a fixed pool of slots and drives each one through the
// receive-headers / receive-body / send-response state machine.
package netloop

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/pressboard/pressboard/pkg/config"
	"github.com/pressboard/pressboard/pkg/logging"
	"github.com/pressboard/pressboard/pkg/routing"
	"github.com/pressboard/pressboard/pkg/templating"
	"github.com/pressboard/pressboard/pkg/wire"
)

// connState is a connection slot's position in the request lifecycle.
type connState int

const (
	connClosed connState = iota
	connReceivingHeaders
	connReceivingBody
	connSendingResponse
)

// conn holds one connection slot's buffers and parse state. Slots are
// reused across connections; reset zeroes everything but the buffers
// themselves, which are kept allocated for the process lifetime.
type conn struct {
	sock  int
	state connState

	scanner wire.HeaderScanner
	buf     []byte // fixed config.HeaderBufferSize request buffer
	bufLen  int

	req        wire.Request
	headersLen int

	body    []byte
	bodyPos int64

	resp        templating.Response
	headerBytes []byte
	headerPos   int
	bodyPos2    int // position within resp body during the send phase
}

func (c *conn) reset() {
	c.state = connClosed
	c.scanner = wire.HeaderScanner{}
	c.bufLen = 0
	c.req = wire.Request{}
	c.headersLen = 0
	c.body = nil
	c.bodyPos = 0
	c.resp = templating.Response{}
	c.headerBytes = nil
	c.headerPos = 0
	c.bodyPos2 = 0
}

// Multiplexer owns the fixed slot pool and poll loop. It is not safe
// for concurrent use — Run must only ever be called from one goroutine,
// the same invariant spec.md's single-threaded model relies on.
type Multiplexer struct {
	router   *routing.Router
	log      logging.Logger
	maxConns int

	listenFD int
	conns    []conn
	pollfds  []unix.PollFd
	active   int
}

// New creates a Multiplexer bound to an already-listening, non-blocking
// socket. maxConns bounds the number of simultaneous connections; beyond
// that, new connections are accepted and immediately closed (the
// reference implementation logs and drops them at the accept(2) layer —
// Go makes refusing at the listener a non-option, so pressboard accepts
// then closes, which is externally equivalent).
func New(listenFD int, maxConns int, router *routing.Router, log logging.Logger) *Multiplexer {
	conns := make([]conn, maxConns)
	for i := range conns {
		conns[i].buf = make([]byte, config.HeaderBufferSize)
	}

	pollfds := make([]unix.PollFd, maxConns+1)
	for i := 1; i <= maxConns; i++ {
		pollfds[i].Fd = -1
	}
	pollfds[0].Fd = int32(listenFD)
	pollfds[0].Events = unix.POLLIN

	return &Multiplexer{
		router:   router,
		log:      log,
		maxConns: maxConns,
		listenFD: listenFD,
		conns:    conns,
		pollfds:  pollfds,
	}
}

// ActiveConnections reports how many connection slots are currently
// occupied. Safe to call only from the Run goroutine; metrics.Tracker
// is handed a closure that satisfies that by construction (Run is the
// sole caller).
func (m *Multiplexer) ActiveConnections() int {
	return m.active
}

// highestSlot returns the greatest poll index with a live fd, or 0 (the
// listening socket) if none. This bounds how many pollfds Poll needs to
// inspect, the same bookkeeping handle_connections keeps.
func (m *Multiplexer) highestSlot() int {
	for i := len(m.pollfds) - 1; i >= 1; i-- {
		if m.pollfds[i].Fd >= 0 {
			return i
		}
	}
	return 0
}

// Run drives the poll loop until ctx is canceled or an unrecoverable
// error occurs. It never blocks longer than one poll(2) timeout slice
// past ctx cancellation.
func (m *Multiplexer) Run(ctx context.Context) error {
	const pollTimeoutMillis = 500

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n := m.highestSlot() + 1
		nevents, err := unix.Poll(m.pollfds[:n], pollTimeoutMillis)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("netloop: poll: %w", err)
		}
		if nevents == 0 {
			continue
		}

		if m.pollfds[0].Revents != 0 {
			nevents--
			if m.pollfds[0].Revents != unix.POLLIN {
				return fmt.Errorf("netloop: unexpected event on listening socket: %d", m.pollfds[0].Revents)
			}
			m.acceptOne()
		}

		for i := 1; i <= m.maxConns && nevents > 0; i++ {
			slot := &m.pollfds[i]
			if slot.Fd < 0 || slot.Revents == 0 {
				continue
			}
			nevents--

			c := &m.conns[i-1]
			if slot.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				m.closeSlot(i)
				continue
			}
			if c.state == connClosed {
				continue
			}

			m.service(i, c, slot)
		}
	}
}

// acceptOne accepts a pending connection, placing it in a free slot if
// one exists or dropping it immediately if every slot is occupied.
func (m *Multiplexer) acceptOne() {
	sock, _, err := unix.Accept(m.listenFD)
	if err != nil {
		m.log.WithError(err).Warn("netloop: accept failed")
		return
	}

	slotIndex := -1
	if m.active < m.maxConns {
		for i := 1; i <= m.maxConns; i++ {
			if m.pollfds[i].Fd < 0 {
				slotIndex = i
				break
			}
		}
	}

	if slotIndex == -1 {
		m.log.Warn("netloop: ran out of connection slots, dropping connection")
		_ = unix.Close(sock)
		return
	}

	if err := unix.SetNonblock(sock, true); err != nil {
		m.log.WithError(err).Warn("netloop: failed to set non-blocking")
		_ = unix.Close(sock)
		return
	}

	m.pollfds[slotIndex].Fd = int32(sock)
	m.pollfds[slotIndex].Events = unix.POLLIN
	m.active++

	c := &m.conns[slotIndex-1]
	c.reset()
	c.sock = sock
	c.state = connReceivingHeaders
}

// closeSlot tears down slot index i, closing its socket and returning
// the slot to the free pool.
func (m *Multiplexer) closeSlot(i int) {
	m.pollfds[i].Fd = -1
	m.pollfds[i].Events = 0
	m.active--

	c := &m.conns[i-1]
	_ = unix.Close(c.sock)
	c.reset()
}

// service advances one connection's state machine by one poll event.
func (m *Multiplexer) service(i int, c *conn, slot *unix.PollFd) {
	if c.state == connReceivingHeaders {
		if !m.readHeaders(i, c, slot) {
			return
		}
	}
	if c.state == connReceivingBody {
		if !m.readBody(i, c) {
			return
		}
	}
	if c.state == connSendingResponse {
		m.sendResponse(i, c, slot)
	}
}

// readHeaders reads more header bytes, attempting to find \r\n\r\n, and
// on success parses the request line and header fields. It returns true
// if the connection should continue being serviced this same event
// (falling through to body receipt or response dispatch), false if it
// should wait for the next POLLIN.
func (m *Multiplexer) readHeaders(i int, c *conn, slot *unix.PollFd) bool {
	if c.bufLen >= len(c.buf) {
		m.serveAndClose400(i, c, slot)
		return true
	}

	n, err := unix.Read(c.sock, c.buf[c.bufLen:])
	if n == 0 && err == nil {
		m.closeSlot(i)
		return false
	}
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return false
		}
		m.closeSlot(i)
		return false
	}

	from := c.bufLen
	c.bufLen += n
	result, err := c.scanner.Scan(c.buf, from, c.bufLen)
	if err != nil {
		m.serveAndClose400(i, c, slot)
		return true
	}
	if !result.Done {
		return false
	}

	req, err := wire.ParseHeaders(c.buf[:result.HeadersLen])
	if err != nil {
		m.serveAndClose400(i, c, slot)
		return true
	}
	c.req = req
	c.headersLen = result.HeadersLen

	remLen := int64(c.bufLen - result.HeadersLen)

	if req.Method == wire.MethodPOST {
		if err := m.router.ValidatePostRequest(req); err != nil {
			m.serveAndClose400(i, c, slot)
			return true
		}

		if req.ContentLength == remLen {
			c.body = c.buf[c.headersLen:c.bufLen]
			c.bodyPos = remLen
			m.dispatch(i, c, slot)
		} else {
			c.body = make([]byte, req.ContentLength)
			c.bodyPos = remLen
			copy(c.body, c.buf[c.headersLen:c.bufLen])
			c.state = connReceivingBody
			slot.Events = unix.POLLIN
		}
		return true
	}

	m.dispatch(i, c, slot)
	return true
}

// readBody reads more body bytes for a POST request whose Content-Length
// exceeded what arrived alongside the headers. Returns true if the
// connection should fall through to response dispatch this event.
func (m *Multiplexer) readBody(i int, c *conn) bool {
	n, err := unix.Read(c.sock, c.body[c.bodyPos:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return false
		}
		m.closeSlot(i)
		return false
	}
	if n == 0 && c.bodyPos != int64(len(c.body)) {
		m.closeSlot(i)
		return false
	}

	c.bodyPos += int64(n)
	if c.bodyPos != int64(len(c.body)) {
		return false
	}

	resp, err := m.router.Route(c.req, c.body)
	if err != nil {
		c.resp = m.errorResponse(err)
	} else {
		c.resp = resp
	}
	c.headerBytes = c.resp.Headers()
	c.state = connSendingResponse
	return true
}

// dispatch routes a request whose body (if any) is already fully in
// hand, and transitions the connection to the send-response state.
func (m *Multiplexer) dispatch(i int, c *conn, slot *unix.PollFd) {
	resp, err := m.router.Route(c.req, c.body)
	if err != nil {
		resp = m.errorResponse(err)
	}
	c.resp = resp
	c.headerBytes = c.resp.Headers()
	c.state = connSendingResponse
	slot.Events = unix.POLLOUT
}

func (m *Multiplexer) errorResponse(err error) templating.Response {
	switch {
	case errors.Is(err, routing.ErrNotFound):
		return m.router.ErrorPage(404)
	case errors.Is(err, routing.ErrInvalidRequest):
		return m.router.ErrorPage(400)
	default:
		m.log.WithError(err).Error("netloop: handler error")
		return m.router.ErrorPage(500)
	}
}

// serveAndClose400 queues the cached 400 page as the response and moves
// the connection straight to the send phase, skipping body receipt
// entirely — matching how the reference implementation answers a
// malformed request without ever reading past the header section.
func (m *Multiplexer) serveAndClose400(i int, c *conn, slot *unix.PollFd) {
	c.resp = m.router.ErrorPage(400)
	c.headerBytes = c.resp.Headers()
	c.state = connSendingResponse
	slot.Events = unix.POLLOUT
}

// sendResponse writes as much of the response as the socket will accept
// without blocking: headers first, then body. Once both are fully
// written the connection is closed (HTTP/1.0, connection-per-request).
func (m *Multiplexer) sendResponse(i int, c *conn, slot *unix.PollFd) {
	if c.headerPos < len(c.headerBytes) {
		n, err := unix.Write(c.sock, c.headerBytes[c.headerPos:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			m.closeSlot(i)
			return
		}
		c.headerPos += n
		if c.headerPos < len(c.headerBytes) {
			return
		}
	}

	body := c.resp.WireBody()
	if len(body) == 0 {
		m.closeSlot(i)
		return
	}

	n, err := unix.Write(c.sock, body[c.bodyPos2:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return
		}
		m.closeSlot(i)
		return
	}
	c.bodyPos2 += n
	if c.bodyPos2 >= len(body) {
		m.closeSlot(i)
	}
}

// ListenAndBind creates, binds, and starts listening on a non-blocking
// TCP socket on port, with SO_REUSEADDR set so a restarted server does
// not have to wait out TIME_WAIT. The returned fd is ready to pass to
// New.
func ListenAndBind(port int, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("netloop: socket: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netloop: set non-blocking: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netloop: setsockopt: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netloop: bind: %w", err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netloop: listen: %w", err)
	}

	return fd, nil
}
