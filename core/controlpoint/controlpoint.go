// Package controlpoint consumes remote UPnP devices: it searches or
// listens over SSDP, fetches and parses description documents and
// SCPDs, keeps an expiring registry of what it has seen, and issues
// SOAP action calls. Remote types need no concrete classes here:
// capabilities come from the SCPD, so unknown device and service types
// degrade to generic descriptors.
package controlpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/core/desc"
	"github.com/navidrome/upnp/core/soap"
	"github.com/navidrome/upnp/log"
	"github.com/navidrome/upnp/server/ssdp"
)

const fetchTimeout = 5 * time.Second

// RemoteService is a service discovered on a remote device.
type RemoteService struct {
	Type        string
	ID          string
	SCPDURL     string
	ControlURL  string
	EventSubURL string
	// SCPD is nil when the document could not be fetched; the service
	// is still callable if the caller knows the action signatures.
	SCPD *desc.SCPDRoot
}

// RemoteDevice is a device discovered through SSDP.
type RemoteDevice struct {
	Type         string
	UDN          string
	FriendlyName string
	Location     string
	Server       string
	Services     []*RemoteService
	SubDevices   []*RemoteDevice
}

// ControlPoint drives discovery and action calls.
type ControlPoint struct {
	engine *ssdp.Engine
	http   *http.Client
	soap   *soap.Client
	seen   *ttlcache.Cache[string, *RemoteDevice]
}

// New wires a control point on top of an SSDP engine.
func New(engine *ssdp.Engine) *ControlPoint {
	cp := &ControlPoint{
		engine: engine,
		http:   &http.Client{Timeout: fetchTimeout},
		soap:   soap.NewClient(0),
		seen: ttlcache.New[string, *RemoteDevice](
			ttlcache.WithTTL[string, *RemoteDevice](time.Duration(conf.Server.SSDP.MaxAge) * time.Second),
		),
	}
	go cp.seen.Start()
	return cp
}

// Stop releases the expiring registry.
func (cp *ControlPoint) Stop() {
	cp.seen.Stop()
}

// Discover searches for the given targets (none means everything),
// fetches each responder's description, and returns the parsed devices.
// Devices stay in the registry until their advertised max-age lapses.
func (cp *ControlPoint) Discover(ctx context.Context, targets ...ssdp.Target) ([]*RemoteDevice, error) {
	advs, err := cp.engine.Search(ctx, targets...)
	if err != nil {
		return nil, err
	}

	var devices []*RemoteDevice
	fetched := map[string]bool{}
	for _, adv := range advs {
		usn, location, maxAge := advertisementInfo(adv)
		if location == "" || fetched[location] {
			continue
		}
		fetched[location] = true

		dev, err := cp.fetchDevice(ctx, location)
		if err != nil {
			log.Warn(ctx, "Could not fetch device description", "location", location, err)
			continue
		}
		devices = append(devices, dev)
		ttl := ttlcache.DefaultTTL
		if maxAge > 0 {
			ttl = time.Duration(maxAge) * time.Second
		}
		cp.seen.Set(usn, dev, ttl)
	}
	log.Info(ctx, "Discovery complete", "devicesFound", len(devices))
	return devices, nil
}

// Listen surfaces NOTIFY advertisements for the configured timeout.
// Byebye notifications evict the named device from the registry.
func (cp *ControlPoint) Listen(ctx context.Context) ([]*ssdp.Notification, error) {
	advs, err := cp.engine.DiscoverNotifications(ctx)
	if err != nil {
		return nil, err
	}
	var notifications []*ssdp.Notification
	for _, adv := range advs {
		n, ok := adv.(*ssdp.Notification)
		if !ok {
			continue
		}
		if n.ByeBye() {
			cp.seen.Delete(n.Name)
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// Known returns the devices currently in the registry, expired entries
// already evicted.
func (cp *ControlPoint) Known() []*RemoteDevice {
	var out []*RemoteDevice
	for _, item := range cp.seen.Items() {
		out = append(out, item.Value())
	}
	return out
}

// CallAction invokes an action on a remote service and returns the out
// arguments. Faults come back as *soap.UPnPError with code and
// description intact.
func (cp *ControlPoint) CallAction(ctx context.Context, svc *RemoteService, action string, in []soap.Arg) ([]soap.Arg, error) {
	return cp.soap.Call(ctx, svc.ControlURL, svc.Type, action, in)
}

func advertisementInfo(adv ssdp.Advertisement) (usn, location string, maxAge int) {
	switch a := adv.(type) {
	case *ssdp.Response:
		return a.Name, a.Location, a.MaxAge
	case *ssdp.Notification:
		if !a.Alive() {
			return "", "", 0
		}
		age := 0
		if a.MaxAge != nil {
			age = *a.MaxAge
		}
		return a.Name, a.Location, age
	}
	return "", "", 0
}

func (cp *ControlPoint) fetchDevice(ctx context.Context, location string) (*RemoteDevice, error) {
	data, err := cp.get(ctx, location)
	if err != nil {
		return nil, err
	}
	doc, err := desc.ParseDevice(data)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}
	return cp.buildDevice(ctx, &doc.Device, base, location), nil
}

func (cp *ControlPoint) buildDevice(ctx context.Context, elem *desc.DeviceElem, base *url.URL, location string) *RemoteDevice {
	dev := &RemoteDevice{
		Type:         elem.DeviceType,
		UDN:          elem.UDN,
		FriendlyName: elem.FriendlyName,
		Location:     location,
	}
	if elem.ServiceList != nil {
		for _, s := range elem.ServiceList.Services {
			svc := &RemoteService{
				Type:        s.ServiceType,
				ID:          s.ServiceID,
				SCPDURL:     resolve(base, s.SCPDURL),
				ControlURL:  resolve(base, s.ControlURL),
				EventSubURL: resolve(base, s.EventSubURL),
			}
			if data, err := cp.get(ctx, svc.SCPDURL); err == nil {
				if scpd, err := desc.ParseSCPD(data); err == nil {
					svc.SCPD = scpd
				} else {
					log.Debug(ctx, "Ignoring unparseable SCPD", "url", svc.SCPDURL, err)
				}
			} else {
				log.Debug(ctx, "Could not fetch SCPD", "url", svc.SCPDURL, err)
			}
			dev.Services = append(dev.Services, svc)
		}
	}
	if elem.DeviceList != nil {
		for i := range elem.DeviceList.Devices {
			dev.SubDevices = append(dev.SubDevices, cp.buildDevice(ctx, &elem.DeviceList.Devices[i], base, location))
		}
	}
	return dev
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func (cp *ControlPoint) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cp.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}
