package model

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/consts"
	"github.com/navidrome/upnp/core/uuidgen"
	"github.com/navidrome/upnp/log"
)

// DeviceStore persists device trees across restarts, preserving their
// UUIDs. Implemented by the persistence package.
type DeviceStore interface {
	Exists(deviceType, friendlyName string) bool
	Load(deviceType, friendlyName string) (*Device, error)
	Save(*Device) error
}

var (
	genOnce sync.Once
	gen     *uuidgen.Generator
)

func generator() *uuidgen.Generator {
	genOnce.Do(func() {
		nodeFile := filepath.Join(conf.Server.DataFolder, consts.NodeIDFileName)
		var err error
		gen, err = uuidgen.New(nodeFile)
		if err != nil {
			log.Error("Could not initialize UUID generator, node id will not persist", err)
			gen = uuidgen.NewEphemeral()
		}
	})
	return gen
}

func newDeviceName() string {
	return generator().Generate().String()
}

// Create builds or restores the root device for (deviceType,
// friendlyName). When store holds a saved tree, the tree is loaded with
// its UUIDs intact and fn applies on top to override mutable fields.
// Otherwise a fresh device is built, fn applied, and the result saved.
// The device type must be registered.
func Create(store DeviceStore, deviceType, friendlyName string, fn func(*Device)) (*Device, error) {
	desc, err := LookupDevice(deviceType)
	if err != nil {
		return nil, err
	}

	if store.Exists(deviceType, friendlyName) {
		dev, err := store.Load(deviceType, friendlyName)
		if err != nil {
			return nil, fmt.Errorf("loading device %s/%s: %w", deviceType, friendlyName, err)
		}
		dev.attach(nil)
		if fn != nil {
			fn(dev)
		}
		log.Debug("Restored device from store", "type", deviceType, "friendlyName", friendlyName, "udn", dev.UDN())
		return dev, nil
	}

	dev := &Device{
		Type:         deviceType,
		FriendlyName: friendlyName,
		Name:         newDeviceName(),
	}
	if desc.Defaults != nil {
		desc.Defaults(dev)
	}
	if fn != nil {
		fn(dev)
	}
	if err := store.Save(dev); err != nil {
		return nil, fmt.Errorf("saving device %s/%s: %w", deviceType, friendlyName, err)
	}
	log.Debug("Created new device", "type", deviceType, "friendlyName", friendlyName, "udn", dev.UDN())
	return dev, nil
}
