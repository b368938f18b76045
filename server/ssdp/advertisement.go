// Package ssdp implements the Simple Service Discovery Protocol layer:
// multicast socket handling, datagram parsing, the server advertise
// loops, and the control-point search client.
package ssdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrParse wraps every datagram parse failure. Parse errors are logged
// and dropped by the listener, never propagated.
var ErrParse = errors.New("ssdp parse error")

const (
	Alive  = "ssdp:alive"
	ByeBye = "ssdp:byebye"
)

// Advertisement is any parsed SSDP datagram.
type Advertisement interface {
	// Expiration is the instant the advertisement stops being valid,
	// zero when no expiration is known.
	Expiration() time.Time
	// Expired reports whether the advertisement is past its lifetime.
	// Advertisements without a known expiration never expire.
	Expired() bool
}

// Notification is a NOTIFY datagram, alive or byebye.
type Notification struct {
	Date     time.Time
	Host     string
	Port     int
	Location string
	// MaxAge is nil for byebye notifications.
	MaxAge  *int
	Type    string // NT
	SubType string // NTS
	Server  string
	Name    string // USN
}

func (n *Notification) Alive() bool  { return n.SubType == Alive }
func (n *Notification) ByeBye() bool { return n.SubType == ByeBye }

func (n *Notification) Expiration() time.Time {
	if n.MaxAge == nil {
		return time.Time{}
	}
	return n.Date.Add(time.Duration(*n.MaxAge) * time.Second)
}

func (n *Notification) Expired() bool {
	exp := n.Expiration()
	return !exp.IsZero() && time.Now().After(exp)
}

// Bytes renders the canonical wire form. Byebye notifications omit
// CACHE-CONTROL, LOCATION and SERVER.
func (n *Notification) Bytes() []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s:%d\r\n", n.Host, n.Port)
	if n.MaxAge != nil {
		fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", *n.MaxAge)
	}
	if n.Location != "" {
		fmt.Fprintf(&b, "LOCATION: %s\r\n", n.Location)
	}
	fmt.Fprintf(&b, "NT: %s\r\n", n.Type)
	fmt.Fprintf(&b, "NTS: %s\r\n", n.SubType)
	if n.Server != "" {
		fmt.Fprintf(&b, "SERVER: %s\r\n", n.Server)
	}
	fmt.Fprintf(&b, "USN: %s\r\n", n.Name)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Response is an HTTP/1.1 200 answer to an M-SEARCH.
type Response struct {
	Date     time.Time
	MaxAge   int
	Location string
	Server   string
	Target   string // ST
	Name     string // USN
	Ext      bool
}

func (r *Response) Expiration() time.Time {
	return r.Date.Add(time.Duration(r.MaxAge) * time.Second)
}

func (r *Response) Expired() bool {
	return time.Now().After(r.Expiration())
}

// Bytes renders the canonical wire form.
func (r *Response) Bytes() []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", r.MaxAge)
	fmt.Fprintf(&b, "DATE: %s\r\n", r.Date.UTC().Format(time.RFC1123))
	b.WriteString("EXT:\r\n")
	fmt.Fprintf(&b, "LOCATION: %s\r\n", r.Location)
	fmt.Fprintf(&b, "SERVER: %s\r\n", r.Server)
	fmt.Fprintf(&b, "ST: %s\r\n", r.Target)
	b.WriteString("NTS: " + Alive + "\r\n")
	fmt.Fprintf(&b, "USN: %s\r\n", r.Name)
	b.WriteString("Content-Length: 0\r\n\r\n")
	return []byte(b.String())
}

// Search is an inbound M-SEARCH request.
type Search struct {
	Date     time.Time
	Target   string // ST
	WaitTime int    // MX
}

func (s *Search) Expiration() time.Time {
	return s.Date.Add(time.Duration(s.WaitTime) * time.Second)
}

func (s *Search) Expired() bool {
	return time.Now().After(s.Expiration())
}

// Bytes renders the canonical wire form addressed to the multicast
// group.
func (s *Search) Bytes(host string, port int) []byte {
	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s:%d\r\n", host, port)
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	fmt.Fprintf(&b, "MX: %d\r\n", s.WaitTime)
	fmt.Fprintf(&b, "ST: %s\r\n", s.Target)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Parse decodes one SSDP datagram, switching on its first token.
func Parse(data []byte) (Advertisement, error) {
	text := string(data)
	firstLine, _, _ := strings.Cut(text, "\n")
	firstLine = strings.TrimRight(firstLine, "\r")

	switch {
	case strings.HasPrefix(firstLine, "NOTIFY "):
		return parseNotification(text)
	case strings.HasPrefix(firstLine, "HTTP/1.1 200"):
		return parseResponse(text)
	case strings.HasPrefix(firstLine, "M-SEARCH "):
		return parseSearch(text)
	}
	return nil, fmt.Errorf("%w: unknown datagram %q", ErrParse, firstLine)
}

// header extracts the value of a header by case-insensitive prefix
// match. The trailing \r of each line is stripped before matching.
func header(text, name string) (string, bool) {
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) >= len(prefix) && strings.ToLower(line[:len(prefix)]) == prefix {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

func parseDate(text string) time.Time {
	if v, ok := header(text, "date"); ok {
		for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Now()
}

func parseMaxAge(text string) *int {
	v, ok := header(text, "cache-control")
	if !ok {
		return nil
	}
	v = strings.ToLower(strings.ReplaceAll(v, " ", ""))
	after, found := strings.CutPrefix(v, "max-age=")
	if !found {
		return nil
	}
	age, err := strconv.Atoi(after)
	if err != nil {
		return nil
	}
	return &age
}

func parseNotification(text string) (*Notification, error) {
	n := &Notification{Date: parseDate(text)}
	if host, ok := header(text, "host"); ok {
		h, p, found := strings.Cut(host, ":")
		n.Host = h
		if found {
			n.Port, _ = strconv.Atoi(p)
		}
	}
	n.Type, _ = header(text, "nt")
	n.SubType, _ = header(text, "nts")
	n.Name, _ = header(text, "usn")
	n.Location, _ = header(text, "location")
	n.Server, _ = header(text, "server")
	n.MaxAge = parseMaxAge(text)
	if n.Type == "" || n.SubType == "" {
		return nil, fmt.Errorf("%w: NOTIFY without NT/NTS", ErrParse)
	}
	return n, nil
}

func parseResponse(text string) (*Response, error) {
	r := &Response{Date: parseDate(text)}
	r.Location, _ = header(text, "location")
	r.Server, _ = header(text, "server")
	r.Target, _ = header(text, "st")
	r.Name, _ = header(text, "usn")
	_, r.Ext = header(text, "ext")
	if age := parseMaxAge(text); age != nil {
		r.MaxAge = *age
	}
	if r.Target == "" {
		return nil, fmt.Errorf("%w: search response without ST", ErrParse)
	}
	return r, nil
}

func parseSearch(text string) (*Search, error) {
	s := &Search{Date: parseDate(text)}
	s.Target, _ = header(text, "st")
	if mx, ok := header(text, "mx"); ok {
		s.WaitTime, _ = strconv.Atoi(mx)
	}
	if s.Target == "" {
		return nil, fmt.Errorf("%w: M-SEARCH without ST", ErrParse)
	}
	return s, nil
}
