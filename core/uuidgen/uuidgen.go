// Package uuidgen produces RFC-4122 version-1 (time-based) UUIDs keyed to
// a node id persisted on disk, so a device keeps its identity across
// restarts even on hosts without a readable MAC address.
package uuidgen

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/navidrome/upnp/log"
)

const (
	// ticksPerSecond converts wall-clock seconds to UUID 100ns intervals.
	ticksPerSecond = 10_000_000
	clockMask      = (uint64(1) << 60) - 1
	// maxDrift bounds how many same-tick UUIDs are issued before the
	// generator yields the CPU and rereads the clock.
	maxDrift = 10_000
)

// Generator issues version-1 UUIDs. It is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	node      [6]byte
	lastClock uint64
	lastRead  uint64
	sequence  uint16
	drift     int
	clock     func() uint64
}

// New loads the node id from nodeFile, creating the file with a random
// multicast-bit node when it does not exist.
func New(nodeFile string) (*Generator, error) {
	node, err := loadOrCreateNode(nodeFile)
	if err != nil {
		return nil, err
	}
	g := &Generator{node: node, clock: wallClock}
	g.sequence = randomSequence()
	return g, nil
}

// NewEphemeral returns a generator with a random, unpersisted node id.
// Used as a fallback when the node id file cannot be read or written.
func NewEphemeral() *Generator {
	g := &Generator{clock: wallClock}
	_, _ = crand.Read(g.node[:])
	g.node[0] |= 0xF0
	g.sequence = randomSequence()
	return g
}

// Generate returns the next version-1 UUID. Successive calls produce
// strictly increasing (clock, sequence) pairs.
func (g *Generator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.clock()
		prevRead := g.lastRead
		g.lastRead = now
		switch {
		case now > g.lastClock:
			g.lastClock = now
			g.drift = 0
		case now >= prevRead:
			// Same reading as before; lastClock may already be ahead of
			// it from earlier same-tick UUIDs.
			g.lastClock++
			g.drift++
			if g.drift > maxDrift {
				g.mu.Unlock()
				runtime.Gosched()
				g.mu.Lock()
				g.drift = 0
				continue
			}
		default:
			// Clock moved backward: new sequence disambiguates.
			g.sequence = randomSequence()
			g.lastClock = now
			g.drift = 0
		}
		return g.assemble()
	}
}

func (g *Generator) assemble() uuid.UUID {
	var u uuid.UUID
	clock := g.lastClock & clockMask
	binary.BigEndian.PutUint32(u[0:4], uint32(clock))              // time_low
	binary.BigEndian.PutUint16(u[4:6], uint16(clock>>32))          // time_mid
	binary.BigEndian.PutUint16(u[6:8], uint16(clock>>48)|0x1000)   // time_hi | version 1
	binary.BigEndian.PutUint16(u[8:10], g.sequence&0x3fff|0x8000)  // variant 10
	copy(u[10:], g.node[:])
	return u
}

// Compact renders a UUID as 32 hex characters without hyphens.
func Compact(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}

// URN renders a UUID in urn:uuid: form.
func URN(u uuid.UUID) string {
	return u.URN()
}

func wallClock() uint64 {
	return (uint64(time.Now().Unix()) * ticksPerSecond) & clockMask
}

func randomSequence() uint16 {
	var b [2]byte
	_, _ = crand.Read(b[:])
	return binary.BigEndian.Uint16(b[:]) & 0x3fff
}

// loadOrCreateNode returns the 48-bit node id stored in nodeFile. A
// missing file gets a random node with the multicast bit set, clearly
// marking it as not a real MAC. The file is written once and never
// rotated.
func loadOrCreateNode(nodeFile string) ([6]byte, error) {
	var node [6]byte
	data, err := os.ReadFile(nodeFile)
	if err == nil {
		decoded, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil || len(decoded) != 6 {
			return node, fmt.Errorf("malformed node id file %s", nodeFile)
		}
		copy(node[:], decoded)
		return node, nil
	}
	if !os.IsNotExist(err) {
		return node, fmt.Errorf("reading node id file: %w", err)
	}

	if _, err := crand.Read(node[:]); err != nil {
		return node, fmt.Errorf("generating random node id: %w", err)
	}
	// 0xF00000000000 | rand48: the multicast bit marks this as not a
	// real MAC address.
	node[0] |= 0xF0

	if err := os.MkdirAll(filepath.Dir(nodeFile), 0700); err != nil {
		return node, fmt.Errorf("creating node id folder: %w", err)
	}
	if err := os.WriteFile(nodeFile, []byte(hex.EncodeToString(node[:])), 0600); err != nil {
		return node, fmt.Errorf("writing node id file: %w", err)
	}
	log.Info("Generated new UPnP node id", "file", nodeFile, "node", hex.EncodeToString(node[:]))
	return node, nil
}
