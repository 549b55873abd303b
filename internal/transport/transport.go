// Package transport implements the transport dispatcher (C8): UDPv4,
// UDPv6, and Unix datagram endpoints, each assigned a transport-domain OID
// and fed through a single dispatch goroutine so the lookup/store/variation
// layers above it never need locking, per spec.md §5. Socket tuning
// (SO_RCVBUF/SO_SNDBUF/SO_REUSEPORT) follows the teacher's
// internal/engine/simulator.go setSocketOptions.
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dmukherjee/snmprecsim/internal/selector"
)

// transportDomainBase mirrors the SNMP-FRAMEWORK-MIB transport-domain
// enterprise arc (snmpUDPDomain family); real OID values are not load-
// bearing for the simulator, only their uniqueness and ordering are.
const transportDomainBase = "1.3.6.1.6.1"

// Family-specific sub-arcs, appended with transportIdOffset + a running
// per-family counter to build each endpoint's transport-domain OID.
const (
	udpv4Arc = 1
	udpv6Arc = 2
	unixArc  = 3
)

// Endpoint is one configured listener, resolved to its assigned transport
// domain OID and ready to be opened.
type Endpoint struct {
	Family selector.TransportFamily
	Addr   string // "ip:port" for UDP, socket path for Unix
	Domain string // dotted transport-domain OID assigned to this endpoint
}

// PlanEndpoints assigns transport-domain OIDs to a set of configured
// addresses per family, each family's counter starting at
// transportIDOffset, per spec.md §4.8/§6 (--transport-id-offset).
func PlanEndpoints(udpv4, udpv6, unixSocks []string, transportIDOffset int) []Endpoint {
	var out []Endpoint
	idx := transportIDOffset
	for _, a := range udpv4 {
		out = append(out, Endpoint{Family: selector.UDPv4, Addr: a, Domain: fmt.Sprintf("%s.%d.%d", transportDomainBase, udpv4Arc, idx)})
		idx++
	}
	idx = transportIDOffset
	for _, a := range udpv6 {
		out = append(out, Endpoint{Family: selector.UDPv6, Addr: a, Domain: fmt.Sprintf("%s.%d.%d", transportDomainBase, udpv6Arc, idx)})
		idx++
	}
	idx = transportIDOffset
	for _, a := range unixSocks {
		out = append(out, Endpoint{Family: selector.Unix, Addr: a, Domain: fmt.Sprintf("%s.%d.%d", transportDomainBase, unixArc, idx)})
		idx++
	}
	return out
}

// inbound is one received datagram, tagged with the endpoint it arrived
// on and a reply function that writes the response bytes back through its
// own socket.
type inbound struct {
	endpoint   Endpoint
	remoteAddr string
	payload    []byte
	reply      func([]byte)
}

// Handler answers one datagram. It is called only from the dispatcher's
// single goroutine, matching spec.md §5's no-request-level-parallelism
// requirement.
type Handler func(ep Endpoint, remoteAddr string, payload []byte) ([]byte, error)

// Dispatcher owns every open socket and the single goroutine that
// processes datagrams from all of them in arrival order.
type Dispatcher struct {
	handler Handler
	queue   chan inbound
	wg      sync.WaitGroup

	mu      sync.Mutex
	sockets []io
}

type io interface {
	Close() error
}

// NewDispatcher constructs a Dispatcher. queueDepth bounds how many
// received-but-not-yet-processed datagrams may be buffered across all
// reader goroutines before they block.
func NewDispatcher(handler Handler, queueDepth int) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Dispatcher{handler: handler, queue: make(chan inbound, queueDepth)}
}

// Serve opens every endpoint and runs until ctx is cancelled, at which
// point every listener is closed and Serve returns.
func (d *Dispatcher) Serve(ctx context.Context, endpoints []Endpoint) error {
	for _, ep := range endpoints {
		if err := d.openEndpoint(ctx, ep); err != nil {
			d.closeAll()
			return err
		}
	}

	d.wg.Add(1)
	go d.dispatchLoop(ctx)

	<-ctx.Done()
	d.closeAll()
	d.wg.Wait()
	return nil
}

// dispatchLoop is the single goroutine every reader funnels into; it is
// the only place Handler is invoked, so the lookup/store/variation layers
// behind it see strictly sequential calls.
func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			resp, err := d.handler(msg.endpoint, msg.remoteAddr, msg.payload)
			if err != nil {
				log.Printf("transport: handler error for %s: %v", msg.remoteAddr, err)
				continue
			}
			if resp != nil {
				msg.reply(resp)
			}
		}
	}
}

func (d *Dispatcher) openEndpoint(ctx context.Context, ep Endpoint) error {
	switch ep.Family {
	case selector.UDPv4, selector.UDPv6:
		return d.openUDP(ctx, ep)
	case selector.Unix:
		return d.openUnix(ctx, ep)
	default:
		return fmt.Errorf("transport: unknown family for endpoint %q", ep.Addr)
	}
}

func (d *Dispatcher) openUDP(ctx context.Context, ep Endpoint) error {
	network := "udp4"
	if ep.Family == selector.UDPv6 {
		network = "udp6"
	}
	addr, err := net.ResolveUDPAddr(network, withDefaultPort(ep.Addr))
	if err != nil {
		return fmt.Errorf("transport: resolve %s: %w", ep.Addr, err)
	}
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s %s: %w", network, ep.Addr, err)
	}
	if err := tuneSocket(conn); err != nil {
		log.Printf("transport: socket tuning failed for %s: %v", ep.Addr, err)
	}

	d.mu.Lock()
	d.sockets = append(d.sockets, conn)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.readUDP(ctx, conn, ep)
	return nil
}

func (d *Dispatcher) readUDP(ctx context.Context, conn *net.UDPConn, ep Endpoint) {
	defer d.wg.Done()
	buf := make([]byte, 65507)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("transport: read error on %s: %v", ep.Addr, err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		d.queue <- inbound{
			endpoint:   ep,
			remoteAddr: remote.IP.String(),
			payload:    payload,
			reply: func(resp []byte) {
				if _, err := conn.WriteToUDP(resp, remote); err != nil {
					log.Printf("transport: write error on %s: %v", ep.Addr, err)
				}
			},
		}
	}
}

func (d *Dispatcher) openUnix(ctx context.Context, ep Endpoint) error {
	addr, err := net.ResolveUnixAddr("unixgram", ep.Addr)
	if err != nil {
		return fmt.Errorf("transport: resolve unix %s: %w", ep.Addr, err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("transport: listen unix %s: %w", ep.Addr, err)
	}

	d.mu.Lock()
	d.sockets = append(d.sockets, conn)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.readUnix(ctx, conn, ep)
	return nil
}

func (d *Dispatcher) readUnix(ctx context.Context, conn *net.UnixConn, ep Endpoint) {
	defer d.wg.Done()
	buf := make([]byte, 65507)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := conn.ReadFromUnix(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("transport: read error on %s: %v", ep.Addr, err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		d.queue <- inbound{
			endpoint:   ep,
			remoteAddr: ep.Addr,
			payload:    payload,
			reply: func(resp []byte) {
				if remote == nil {
					return
				}
				if _, err := conn.WriteToUnix(resp, remote); err != nil {
					log.Printf("transport: write error on %s: %v", ep.Addr, err)
				}
			},
		}
	}
}

func (d *Dispatcher) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sockets {
		_ = s.Close()
	}
	d.sockets = nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(161))
}

// tuneSocket applies the same buffer-size and SO_REUSEPORT tuning the
// teacher's setSocketOptions does, via SyscallConn so the connection's
// non-blocking mode (needed for read-deadline-based shutdown) is left
// untouched.
func tuneSocket(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn: %w", err)
	}
	var setErr error
	err = raw.Control(func(fd uintptr) {
		ifd := int(fd)
		if e := syscall.SetsockoptInt(ifd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, 256*1024); e != nil {
			setErr = fmt.Errorf("SO_RCVBUF: %w", e)
			return
		}
		if e := syscall.SetsockoptInt(ifd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, 256*1024); e != nil {
			setErr = fmt.Errorf("SO_SNDBUF: %w", e)
			return
		}
		if e := syscall.SetsockoptInt(ifd, syscall.SOL_SOCKET, int(unix.SO_REUSEPORT), 1); e != nil {
			log.Printf("transport: SO_REUSEPORT unavailable: %v", e)
		}
	})
	if err != nil {
		return err
	}
	return setErr
}
