package ssdp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/consts"
	"github.com/navidrome/upnp/log"
)

// Target is a resolved M-SEARCH target string.
type Target string

// All searches for everything.
func All() Target { return Target(consts.SSDPAll) }

// Root searches for root devices.
func Root() Target { return Target(consts.RootDeviceTarget) }

// Device searches for a device type, given as "<Type>.<Ver>".
func Device(typeVer string) Target {
	return Target(consts.DeviceSchemaPrefix + typeVer)
}

// Service searches for a service type, given as "<Type>.<Ver>".
func Service(typeVer string) Target {
	return Target(consts.ServiceSchemaPrefix + typeVer)
}

// Literal passes a raw target through. Only urn:, uuid: and ssdp:
// strings are valid.
func Literal(s string) (Target, error) {
	for _, prefix := range []string{"urn:", "uuid:", "ssdp:"} {
		if strings.HasPrefix(s, prefix) {
			return Target(s), nil
		}
	}
	return "", fmt.Errorf("invalid search target %q", s)
}

// Search issues one M-SEARCH per target (no targets means ssdp:all),
// listens for the configured timeout, and returns everything that
// arrived. The MX header carries the timeout in whole seconds.
func (e *Engine) Search(ctx context.Context, targets ...Target) ([]Advertisement, error) {
	if len(targets) == 0 {
		targets = []Target{All()}
	}
	timeout := conf.Server.SSDP.SearchTimeout
	mx := int(timeout / time.Second)
	if mx < 1 {
		mx = 1
	}

	e.Listen()
	queue := e.Queue()

	for _, target := range targets {
		s := &Search{Target: string(target), WaitTime: mx}
		if err := e.SendMulticast(s.Bytes(conf.Server.SSDP.Address, conf.Server.SSDP.Port)); err != nil {
			return nil, fmt.Errorf("sending M-SEARCH for %s: %w", target, err)
		}
		log.Debug(ctx, "Sent M-SEARCH", "st", string(target), "mx", mx)
	}

	return e.collect(ctx, queue, timeout, nil)
}

// DiscoverNotifications passively listens for the configured timeout and
// returns the NOTIFY advertisements observed.
func (e *Engine) DiscoverNotifications(ctx context.Context) ([]Advertisement, error) {
	e.Listen()
	keep := func(adv Advertisement) bool {
		_, ok := adv.(*Notification)
		return ok
	}
	return e.collect(ctx, e.Queue(), conf.Server.SSDP.SearchTimeout, keep)
}

// collect drains the queue until the wall-clock deadline, optionally
// filtering what is kept.
func (e *Engine) collect(ctx context.Context, queue <-chan Advertisement, timeout time.Duration, keep func(Advertisement) bool) ([]Advertisement, error) {
	var found []Advertisement
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		case <-deadline.C:
			return found, nil
		case adv, ok := <-queue:
			if !ok {
				return found, nil
			}
			// Our own or third-party searches are not results.
			if _, isSearch := adv.(*addressedSearch); isSearch {
				continue
			}
			if keep == nil || keep(adv) {
				found = append(found, adv)
			}
		}
	}
}
