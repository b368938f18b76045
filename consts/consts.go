package consts

import (
	"fmt"
	"runtime"
)

const (
	AppName = "upnpd"

	Version = "0.9.0"

	// SSDPMulticastAddress is the well-known SSDP multicast group.
	SSDPMulticastAddress = "239.255.255.250"
	SSDPPort             = 1900

	// DefaultDataFolder is where device state and the node id file live,
	// relative to the user's home directory.
	DefaultDataFolder = ".UPnP"

	NodeIDFileName = "uuid_mac_address"

	DeviceSchemaPrefix  = "urn:schemas-upnp-org:device:"
	ServiceSchemaPrefix = "urn:schemas-upnp-org:service:"

	RootDeviceTarget = "upnp:rootdevice"
	SSDPAll          = "ssdp:all"
)

// ServerString is the value sent in SSDP SERVER and HTTP Server headers:
// "<os> UPnP/1.0 <product>".
func ServerString() string {
	return fmt.Sprintf("%s/1.0 UPnP/1.0 %s/%s", runtime.GOOS, AppName, Version)
}
