package model

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/navidrome/upnp/consts"
)

// Device is a node in a UPnP device tree. Exactly one device in a tree
// has no parent; that one is the root and owns the whole sub-tree.
// Parent links are lookup-only back-references.
type Device struct {
	Type         string
	FriendlyName string

	// Name is the hyphenated v1 UUID identifying the device. The UDN is
	// "uuid:" + Name.
	Name string

	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	UPC              string

	SubDevices []*Device
	Services   []*Service

	parent *Device
	frozen bool
}

// Parent returns the parent device, nil for the root.
func (d *Device) Parent() *Device { return d.parent }

// Root walks parent links up to the tree's root.
func (d *Device) Root() *Device {
	r := d
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// UDN is the uuid:-prefixed unique device name.
func (d *Device) UDN() string { return "uuid:" + d.Name }

// TypeURN is urn:schemas-upnp-org:device:<type>:1.
func (d *Device) TypeURN() string {
	return consts.DeviceSchemaPrefix + d.Type + ":1"
}

// Path is the URL path prefix for this device's services: "/" joined
// with the types of the device and every ancestor up to the root,
// root-last.
func (d *Device) Path() string {
	var parts []string
	for n := d; n != nil; n = n.parent {
		parts = append(parts, n.Type)
	}
	return "/" + strings.Join(parts, "/")
}

// AddDevice adds a sub-device, idempotent on (type, friendlyName): when a
// matching child already exists, fn applies to it and no new device is
// created. fn may be nil.
func (d *Device) AddDevice(deviceType, friendlyName string, fn func(*Device)) (*Device, error) {
	if d.Root().frozen {
		return nil, ErrFrozen
	}
	for _, child := range d.SubDevices {
		if child.Type == deviceType && child.FriendlyName == friendlyName {
			if fn != nil {
				fn(child)
			}
			return child, nil
		}
	}
	child := &Device{
		Type:         deviceType,
		FriendlyName: friendlyName,
		Name:         newDeviceName(),
		parent:       d,
	}
	if fn != nil {
		fn(child)
	}
	d.SubDevices = append(d.SubDevices, child)
	return child, nil
}

// AddService adds a service of the given type, idempotent on type. The
// type must have a registered descriptor.
func (d *Device) AddService(serviceType string) (*Service, error) {
	if d.Root().frozen {
		return nil, ErrFrozen
	}
	for _, svc := range d.Services {
		if svc.Type == serviceType {
			return svc, nil
		}
	}
	sd, err := LookupService(serviceType)
	if err != nil {
		return nil, err
	}
	svc := &Service{Type: serviceType, Descriptor: sd, device: d}
	d.Services = append(d.Services, svc)
	return svc, nil
}

// Walk visits the device and every descendant, depth-first in declared
// order.
func (d *Device) Walk(fn func(*Device)) {
	fn(d)
	for _, child := range d.SubDevices {
		child.Walk(fn)
	}
}

// FindService locates a service anywhere in the tree by its SCPD path.
func (d *Device) FindService(path string) *Service {
	var found *Service
	d.Walk(func(dev *Device) {
		for _, svc := range dev.Services {
			if svc.Path() == path {
				found = svc
			}
		}
	})
	return found
}

// Validate asserts that every device in the tree has the required
// descriptive fields and a UUID name before any description is rendered
// or advertisement sent.
func (d *Device) Validate() error {
	var result *multierror.Error
	d.Walk(func(dev *Device) {
		if dev.Name == "" {
			result = multierror.Append(result, fmt.Errorf("%w: device %q has no name", ErrValidation, dev.Type))
		}
		required := []struct{ field, value string }{
			{"friendlyName", dev.FriendlyName},
			{"manufacturer", dev.Manufacturer},
			{"modelName", dev.ModelName},
		}
		for _, r := range required {
			if r.value == "" {
				result = multierror.Append(result, fmt.Errorf("%w: device %q is missing %s", ErrValidation, dev.Type, r.field))
			}
		}
	})
	return result.ErrorOrNil()
}

// Freeze locks the tree structure. Called when advertising begins;
// adding devices or services afterwards fails with ErrFrozen.
func (d *Device) Freeze() { d.Root().frozen = true }

// Frozen reports whether the tree structure is locked.
func (d *Device) Frozen() bool { return d.Root().frozen }

// attach restores parent links after deserialization.
func (d *Device) attach(parent *Device) {
	d.parent = parent
	for _, svc := range d.Services {
		svc.device = d
	}
	for _, child := range d.SubDevices {
		child.attach(d)
	}
}
