package model

import (
	"fmt"
	"sync"
)

// DeviceDescriptor is the class-level description of a device type: the
// service id catalog used when rendering descriptions, and an optional
// defaults hook applied to freshly built devices.
type DeviceDescriptor struct {
	Type string
	// ServiceIDs maps a service type to its serviceId string (see
	// MakeServiceID).
	ServiceIDs map[string]string
	Defaults   func(*Device)
}

var (
	registryMu sync.RWMutex
	devices    = map[string]*DeviceDescriptor{}
	services   = map[string]*ServiceDescriptor{}
)

// RegisterDevice makes a device type constructible. Registering the same
// type twice replaces the previous descriptor.
func RegisterDevice(desc *DeviceDescriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	devices[desc.Type] = desc
}

// RegisterService makes a service type attachable to devices.
func RegisterService(desc *ServiceDescriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	services[desc.Type] = desc
}

// LookupDevice returns the descriptor for a device type.
func LookupDevice(deviceType string) (*DeviceDescriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if d, ok := devices[deviceType]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceType, deviceType)
}

// LookupService returns the descriptor for a service type.
func LookupService(serviceType string) (*ServiceDescriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if s, ok := services[serviceType]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownServiceType, serviceType)
}
