package model

import "errors"

var (
	// ErrValidation wraps missing-required-field failures found while
	// walking a device tree.
	ErrValidation = errors.New("device validation failed")

	// ErrUnknownDeviceType is returned when a device type has no
	// registered descriptor.
	ErrUnknownDeviceType = errors.New("unknown device type")

	// ErrUnknownServiceType is returned when a service type has no
	// registered descriptor.
	ErrUnknownServiceType = errors.New("unknown service type")

	// ErrUnknownServiceID is returned when a device's descriptor has no
	// service id for one of its services. This is fatal: the description
	// document cannot be rendered without it.
	ErrUnknownServiceID = errors.New("no service id registered")

	// ErrFrozen is returned when the tree is modified after Run.
	ErrFrozen = errors.New("device tree is frozen while advertising")
)
