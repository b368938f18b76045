package ssdp

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSSDP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SSDP Suite")
}

const aliveNotify = "NOTIFY * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"CACHE-CONTROL: max-age=10\r\n" +
	"LOCATION: http://example.com/root_device.xml\r\n" +
	"NT: upnp:rootdevice\r\n" +
	"NTS: ssdp:alive\r\n" +
	"SERVER: OS/5 UPnP/1.0 product/7\r\n" +
	"USN: uuid:BOGUS::upnp:rootdevice\r\n" +
	"\r\n"

const byebyeNotify = "NOTIFY * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"NT: upnp:rootdevice\r\n" +
	"NTS: ssdp:byebye\r\n" +
	"USN: uuid:BOGUS::upnp:rootdevice\r\n" +
	"\r\n"

var _ = Describe("Parse", func() {
	It("parses an alive notification", func() {
		adv, err := Parse([]byte(aliveNotify))
		Expect(err).ToNot(HaveOccurred())
		n, ok := adv.(*Notification)
		Expect(ok).To(BeTrue())
		Expect(n.Host).To(Equal("239.255.255.250"))
		Expect(n.Port).To(Equal(1900))
		Expect(n.MaxAge).To(HaveValue(Equal(10)))
		Expect(n.Type).To(Equal("upnp:rootdevice"))
		Expect(n.SubType).To(Equal("ssdp:alive"))
		Expect(n.Location).To(Equal("http://example.com/root_device.xml"))
		Expect(n.Server).To(Equal("OS/5 UPnP/1.0 product/7"))
		Expect(n.Name).To(Equal("uuid:BOGUS::upnp:rootdevice"))
		Expect(n.Alive()).To(BeTrue())
		Expect(n.ByeBye()).To(BeFalse())
	})

	It("parses a byebye notification without location or max-age", func() {
		adv, err := Parse([]byte(byebyeNotify))
		Expect(err).ToNot(HaveOccurred())
		n := adv.(*Notification)
		Expect(n.Location).To(BeEmpty())
		Expect(n.MaxAge).To(BeNil())
		Expect(n.Alive()).To(BeFalse())
		Expect(n.ByeBye()).To(BeTrue())
		Expect(n.Expired()).To(BeFalse(), "no max-age means no known expiration")
	})

	It("matches headers case-insensitively", func() {
		lower := "NOTIFY * HTTP/1.1\r\nhost: 1.2.3.4:1900\r\nnt: x\r\nnts: ssdp:alive\r\nusn: u\r\n\r\n"
		adv, err := Parse([]byte(lower))
		Expect(err).ToNot(HaveOccurred())
		Expect(adv.(*Notification).Host).To(Equal("1.2.3.4"))
	})

	It("parses a search response", func() {
		raw := "HTTP/1.1 200 OK\r\n" +
			"CACHE-CONTROL: max-age=120\r\n" +
			"DATE: Mon, 02 Jan 2006 15:04:05 GMT\r\n" +
			"EXT:\r\n" +
			"LOCATION: http://192.0.2.5:8080/description\r\n" +
			"SERVER: linux/1.0 UPnP/1.0 upnpd/0.9.0\r\n" +
			"ST: upnp:rootdevice\r\n" +
			"USN: uuid:abc::upnp:rootdevice\r\n" +
			"Content-Length: 0\r\n\r\n"
		adv, err := Parse([]byte(raw))
		Expect(err).ToNot(HaveOccurred())
		r := adv.(*Response)
		Expect(r.MaxAge).To(Equal(120))
		Expect(r.Location).To(Equal("http://192.0.2.5:8080/description"))
		Expect(r.Target).To(Equal("upnp:rootdevice"))
		Expect(r.Name).To(Equal("uuid:abc::upnp:rootdevice"))
		Expect(r.Ext).To(BeTrue())
		Expect(r.Date.Year()).To(Equal(2006))
	})

	It("parses an M-SEARCH", func() {
		raw := "M-SEARCH * HTTP/1.1\r\n" +
			"HOST: 239.255.255.250:1900\r\n" +
			"MAN: \"ssdp:discover\"\r\n" +
			"MX: 2\r\n" +
			"ST: ssdp:all\r\n\r\n"
		adv, err := Parse([]byte(raw))
		Expect(err).ToNot(HaveOccurred())
		s := adv.(*Search)
		Expect(s.Target).To(Equal("ssdp:all"))
		Expect(s.WaitTime).To(Equal(2))
	})

	It("reports unknown first tokens as parse errors", func() {
		_, err := Parse([]byte("GET / HTTP/1.1\r\n\r\n"))
		Expect(err).To(MatchError(ErrParse))
	})
})

var _ = Describe("Re-emission", func() {
	It("preserves every recognized field of a notification", func() {
		first, err := Parse([]byte(aliveNotify))
		Expect(err).ToNot(HaveOccurred())
		second, err := Parse(first.(*Notification).Bytes())
		Expect(err).ToNot(HaveOccurred())
		a, b := first.(*Notification), second.(*Notification)
		Expect(b.Host).To(Equal(a.Host))
		Expect(b.Port).To(Equal(a.Port))
		Expect(b.Location).To(Equal(a.Location))
		Expect(b.MaxAge).To(HaveValue(Equal(*a.MaxAge)))
		Expect(b.Type).To(Equal(a.Type))
		Expect(b.SubType).To(Equal(a.SubType))
		Expect(b.Server).To(Equal(a.Server))
		Expect(b.Name).To(Equal(a.Name))
	})

	It("preserves a byebye notification", func() {
		first, _ := Parse([]byte(byebyeNotify))
		second, err := Parse(first.(*Notification).Bytes())
		Expect(err).ToNot(HaveOccurred())
		b := second.(*Notification)
		Expect(b.ByeBye()).To(BeTrue())
		Expect(b.MaxAge).To(BeNil())
		Expect(b.Location).To(BeEmpty())
	})

	It("preserves a search response", func() {
		r := &Response{
			Date:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			MaxAge:   120,
			Location: "http://192.0.2.5:8080/description",
			Server:   "OS/5 UPnP/1.0 product/7",
			Target:   "upnp:rootdevice",
			Name:     "uuid:abc::upnp:rootdevice",
			Ext:      true,
		}
		parsed, err := Parse(r.Bytes())
		Expect(err).ToNot(HaveOccurred())
		p := parsed.(*Response)
		Expect(p.MaxAge).To(Equal(r.MaxAge))
		Expect(p.Location).To(Equal(r.Location))
		Expect(p.Target).To(Equal(r.Target))
		Expect(p.Name).To(Equal(r.Name))
		Expect(p.Ext).To(BeTrue())
	})

	It("preserves a search", func() {
		s := &Search{Target: "urn:schemas-upnp-org:device:TestDevice.1", WaitTime: 3}
		parsed, err := Parse(s.Bytes("239.255.255.250", 1900))
		Expect(err).ToNot(HaveOccurred())
		p := parsed.(*Search)
		Expect(p.Target).To(Equal(s.Target))
		Expect(p.WaitTime).To(Equal(s.WaitTime))
	})
})

var _ = Describe("Expiration", func() {
	It("expires a notification after max-age", func() {
		age := 1
		n := &Notification{Date: time.Now().Add(-2 * time.Second), MaxAge: &age, SubType: Alive}
		Expect(n.Expired()).To(BeTrue())
	})

	It("keeps a fresh notification alive", func() {
		age := 120
		n := &Notification{Date: time.Now(), MaxAge: &age, SubType: Alive}
		Expect(n.Expired()).To(BeFalse())
	})

	It("derives search expiration from the wait time", func() {
		s := &Search{Date: time.Now().Add(-10 * time.Second), WaitTime: 2}
		Expect(s.Expired()).To(BeTrue())
	})
})
