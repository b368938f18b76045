package ssdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/consts"
	"github.com/navidrome/upnp/log"
	"github.com/navidrome/upnp/model"
)

// advertisementKey is one NT/USN pair announced for the hosted tree.
type advertisementKey struct {
	NT  string
	USN string
}

// Advertiser announces a device tree: the periodic NOTIFY loop, the
// search responder, and the shutdown byebye burst. It holds a read-only
// reference to the root device.
type Advertiser struct {
	engine   *Engine
	root     *model.Device
	httpPort int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdvertiser wires an advertiser for root, whose description is
// served on httpPort by the HTTP host.
func NewAdvertiser(engine *Engine, root *model.Device, httpPort int) *Advertiser {
	return &Advertiser{engine: engine, root: root, httpPort: httpPort}
}

// Start begins advertising: an immediate alive burst, the periodic
// notify loop, and the search responder fed by the engine's listener.
func (a *Advertiser) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.engine.Listen()

	a.wg.Add(2)
	go a.notifyLoop(ctx)
	go a.respondLoop(ctx)

	log.Info(ctx, "SSDP advertising started", "udn", a.root.UDN(), "httpPort", a.httpPort)
}

// Stop halts both loops, emits byebye for every previously announced
// key in announce order, and stops the listener.
func (a *Advertiser) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.sendByeBye()
	a.engine.StopListening()
	log.Info("SSDP advertising stopped", "udn", a.root.UDN())
}

// keys returns the advertisement set in the mandated order: the root
// device target first, then per device its UUID and type URN, then the
// device's service type URNs.
func (a *Advertiser) keys() []advertisementKey {
	rootName := a.root.UDN()
	usn := func(nt string) string {
		if strings.HasPrefix(nt, "uuid:") {
			return nt
		}
		return rootName + "::" + nt
	}

	keys := []advertisementKey{{NT: consts.RootDeviceTarget, USN: usn(consts.RootDeviceTarget)}}
	a.root.Walk(func(dev *model.Device) {
		keys = append(keys,
			advertisementKey{NT: dev.UDN(), USN: dev.UDN()},
			advertisementKey{NT: dev.TypeURN(), USN: usn(dev.TypeURN())},
		)
		for _, svc := range dev.Services {
			keys = append(keys, advertisementKey{NT: svc.TypeURN(), USN: usn(svc.TypeURN())})
		}
	})
	return keys
}

func (a *Advertiser) location(host string) string {
	return fmt.Sprintf("http://%s:%d/description", host, a.httpPort)
}

func (a *Advertiser) notifyLoop(ctx context.Context) {
	defer a.wg.Done()

	a.sendAlive(ctx)
	ticker := time.NewTicker(conf.Server.SSDP.NotifyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendAlive(ctx)
		}
	}
}

// sendAlive announces every key from every local address. Socket errors
// are transient: logged, and the loop continues on its next iteration.
func (a *Advertiser) sendAlive(ctx context.Context) {
	maxAge := conf.Server.SSDP.MaxAge
	for _, ip := range LocalIPs() {
		for _, key := range a.keys() {
			n := &Notification{
				Host:     conf.Server.SSDP.Address,
				Port:     conf.Server.SSDP.Port,
				Location: a.location(ip),
				MaxAge:   &maxAge,
				Type:     key.NT,
				SubType:  Alive,
				Server:   consts.ServerString(),
				Name:     key.USN,
			}
			if err := a.engine.SendMulticast(n.Bytes()); err != nil {
				log.Warn(ctx, "Failed to send NOTIFY alive", "nt", key.NT, err)
			}
		}
	}
}

func (a *Advertiser) sendByeBye() {
	for _, key := range a.keys() {
		n := &Notification{
			Host:    conf.Server.SSDP.Address,
			Port:    conf.Server.SSDP.Port,
			Type:    key.NT,
			SubType: ByeBye,
			Name:    key.USN,
		}
		if err := a.engine.SendMulticast(n.Bytes()); err != nil {
			log.Warn("Failed to send NOTIFY byebye", "nt", key.NT, err)
		}
	}
}

func (a *Advertiser) respondLoop(ctx context.Context) {
	defer a.wg.Done()
	queue := a.engine.Queue()
	for {
		select {
		case <-ctx.Done():
			return
		case adv, ok := <-queue:
			if !ok {
				return
			}
			if search, ok := adv.(*addressedSearch); ok {
				go a.answer(ctx, search)
			}
		}
	}
}

// answer replies to one M-SEARCH. Recognized targets: upnp:rootdevice,
// any hosted device type URN or device UUID, and (behind the AnswerAll
// flag) ssdp:all with the full advertisement set.
func (a *Advertiser) answer(ctx context.Context, search *addressedSearch) {
	targets := a.matchTargets(search.Target)
	if len(targets) == 0 {
		log.Debug(ctx, "Ignoring M-SEARCH for unhandled target", "st", search.Target, "from", search.from.String())
		return
	}

	location := a.location(LocalIPs()[0])
	for _, key := range targets {
		r := &Response{
			Date:     time.Now(),
			MaxAge:   conf.Server.SSDP.MaxAge,
			Location: location,
			Server:   consts.ServerString(),
			Target:   key.NT,
			Name:     key.USN,
			Ext:      true,
		}
		if err := a.engine.SendTo(r.Bytes(), search.from); err != nil {
			log.Warn(ctx, "Failed to send search response", "st", key.NT, "to", search.from.String(), err)
			return
		}
		searchesAnswered.Inc()
	}
	log.Debug(ctx, "Answered M-SEARCH", "st", search.Target, "from", search.from.String(), "responses", len(targets))
}

// matchTargets maps a search target to the advertisement keys it should
// be answered with.
func (a *Advertiser) matchTargets(target string) []advertisementKey {
	keys := a.keys()
	if target == consts.SSDPAll {
		if conf.Server.SSDP.AnswerAll {
			return keys
		}
		return nil
	}
	for _, key := range keys {
		if key.NT != target {
			continue
		}
		if target == consts.RootDeviceTarget ||
			strings.HasPrefix(target, "uuid:") ||
			strings.HasPrefix(target, consts.DeviceSchemaPrefix) {
			return []advertisementKey{key}
		}
	}
	return nil
}
