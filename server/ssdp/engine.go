package ssdp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/log"
	"golang.org/x/net/ipv4"
)

// queueSize bounds how many parsed advertisements wait for a consumer
// before the listener starts dropping.
const queueSize = 64

// Engine owns the single multicast UDP socket shared by the listener,
// the notify loop and the search responder. Only the listener reads; the
// senders only write, so the kernel serializes access without locks.
type Engine struct {
	group *net.UDPAddr
	conn  *net.UDPConn
	pconn *ipv4.PacketConn

	mu        sync.Mutex
	queue     chan Advertisement
	done      chan struct{}
	listening bool
}

// NewEngine binds 0.0.0.0:<port>, joins the multicast group on every
// eligible interface, disables multicast loopback and applies the
// configured TTL.
func NewEngine() (*Engine, error) {
	group := &net.UDPAddr{
		IP:   net.ParseIP(conf.Server.SSDP.Address),
		Port: conf.Server.SSDP.Port,
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: conf.Server.SSDP.Port})
	if err != nil {
		return nil, fmt.Errorf("binding SSDP socket: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	joined := 0
	for _, iface := range ActiveInterfaces() {
		ifc := iface
		if err := pconn.JoinGroup(&ifc, group); err != nil {
			log.Warn("Could not join multicast group", "interface", ifc.Name, err)
			continue
		}
		joined++
	}
	if joined == 0 {
		// Fall back to the default interface.
		if err := pconn.JoinGroup(nil, group); err != nil {
			conn.Close()
			return nil, fmt.Errorf("joining multicast group %s: %w", group, err)
		}
	}
	if err := pconn.SetMulticastLoopback(false); err != nil {
		log.Warn("Could not disable multicast loopback", err)
	}
	ttl := conf.Server.SSDP.TTL
	if err := pconn.SetMulticastTTL(ttl); err != nil {
		log.Warn("Could not set multicast TTL", "ttl", ttl, err)
	}
	if err := pconn.SetTTL(ttl); err != nil {
		log.Warn("Could not set TTL", "ttl", ttl, err)
	}

	return &Engine{
		group: group,
		conn:  conn,
		pconn: pconn,
		queue: make(chan Advertisement, queueSize),
	}, nil
}

// Group returns the multicast destination address.
func (e *Engine) Group() *net.UDPAddr { return e.group }

// Queue returns the channel carrying parsed advertisements while the
// listener runs.
func (e *Engine) Queue() <-chan Advertisement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue
}

// Listen starts the single reader goroutine: block on the socket, parse
// each datagram, enqueue the result. Parse errors are logged and
// dropped. Listen is idempotent.
func (e *Engine) Listen() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listening {
		return
	}
	e.listening = true
	e.done = make(chan struct{})
	_ = e.conn.SetReadDeadline(time.Time{})
	go e.listenLoop(e.done, e.queue)
}

func (e *Engine) listenLoop(done chan struct{}, queue chan Advertisement) {
	buf := make([]byte, 1024)
	for {
		n, src, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Error("SSDP read failed", err)
			return
		}
		datagramsReceived.Inc()
		adv, err := Parse(buf[:n])
		if err != nil {
			parseErrors.Inc()
			log.Debug("Dropping unparseable SSDP datagram", "from", src.String(), err)
			continue
		}
		if search, ok := adv.(*Search); ok {
			adv = &addressedSearch{Search: search, from: src}
		}
		select {
		case queue <- adv:
		case <-done:
			return
		default:
			log.Warn("SSDP queue full, dropping advertisement", "from", src.String())
		}
	}
}

// StopListening tears the listener down and replaces the queue with a
// fresh empty one, so a later Listen starts clean.
func (e *Engine) StopListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listening {
		return
	}
	close(e.done)
	// Wake the reader out of its blocking read.
	_ = e.conn.SetReadDeadline(time.Now())
	e.listening = false
	e.queue = make(chan Advertisement, queueSize)
}

// Close stops listening and releases the socket.
func (e *Engine) Close() {
	e.StopListening()
	if e.conn != nil {
		_ = e.conn.Close()
	}
}

// SendMulticast writes a datagram to the multicast group.
func (e *Engine) SendMulticast(data []byte) error {
	_, err := e.conn.WriteToUDP(data, e.group)
	if err == nil {
		datagramsSent.Inc()
	}
	return err
}

// SendTo writes a datagram to a specific peer, used for unicast search
// responses.
func (e *Engine) SendTo(data []byte, dst *net.UDPAddr) error {
	_, err := e.conn.WriteToUDP(data, dst)
	if err == nil {
		datagramsSent.Inc()
	}
	return err
}

// addressedSearch pairs an inbound Search with its origin so the
// responder can answer unicast.
type addressedSearch struct {
	*Search
	from *net.UDPAddr
}

// ActiveInterfaces returns the up, non-loopback interfaces with an IPv4
// address.
func ActiveInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Warn("Could not enumerate network interfaces", err)
		return nil
	}
	var active []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}
	return active
}

// LocalIPs returns one IPv4 address per active interface.
func LocalIPs() []string {
	var ips []string
	for _, iface := range ActiveInterfaces() {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP.String())
				break
			}
		}
	}
	if len(ips) == 0 {
		ips = append(ips, "127.0.0.1")
	}
	return ips
}
