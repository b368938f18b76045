package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/navidrome/upnp/consts"
)

// Direction of an action argument.
type Direction string

const (
	In     Direction = "in"
	Out    Direction = "out"
	RetVal Direction = "retval"
)

// Argument is one parameter of an action. Its data type comes from the
// related state variable.
type Argument struct {
	Direction            Direction
	Name                 string
	RelatedStateVariable string
}

// HandlerFunc implements an action. Arguments arrive coerced to Go
// values, positionally, in declared order. The returned values must match
// the declared out arguments, retval first when present. A *UPnPError
// return crosses the SOAP boundary verbatim; any other error becomes
// fault 501 Action Failed.
type HandlerFunc func(ctx context.Context, in []interface{}) ([]interface{}, error)

// Action is a named operation on a service.
type Action struct {
	Name      string
	Arguments []Argument
	Handler   HandlerFunc
}

// InArguments returns the in arguments in declared order.
func (a *Action) InArguments() []Argument {
	var out []Argument
	for _, arg := range a.Arguments {
		if arg.Direction == In {
			out = append(out, arg)
		}
	}
	return out
}

// OutArguments returns out and retval arguments in declared order,
// retval first by UPnP convention.
func (a *Action) OutArguments() []Argument {
	var ret, out []Argument
	for _, arg := range a.Arguments {
		switch arg.Direction {
		case RetVal:
			ret = append(ret, arg)
		case Out:
			out = append(out, arg)
		}
	}
	return append(ret, out...)
}

// AllowedRange restricts a numeric state variable.
type AllowedRange struct {
	Min  float64
	Max  float64
	Step *float64
}

// StateVariable is a typed slot in a service's state table.
type StateVariable struct {
	Name          string
	DataType      string
	DefaultValue  string
	AllowedValues []string
	AllowedRange  *AllowedRange
	// Evented is preserved in the SCPD but unused: eventing (GENA) is
	// not implemented.
	Evented bool
}

// ServiceDescriptor is the class-level catalog of a service type: its
// actions and state variables. Concrete services register one descriptor
// per type; every Service instance of that type shares it.
type ServiceDescriptor struct {
	Type           string
	Actions        []*Action
	StateVariables []*StateVariable
}

// Action finds an action by name.
func (sd *ServiceDescriptor) Action(name string) *Action {
	for _, a := range sd.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// StateVariable finds a state variable by name.
func (sd *ServiceDescriptor) StateVariable(name string) *StateVariable {
	for _, sv := range sd.StateVariables {
		if sv.Name == name {
			return sv
		}
	}
	return nil
}

// Service is one instance of a service type, owned by exactly one device.
type Service struct {
	Type       string
	Descriptor *ServiceDescriptor
	device     *Device
}

// NewService builds a detached service instance. The owning device is
// wired when the containing tree is attached; used when restoring a tree
// from the store.
func NewService(serviceType string, desc *ServiceDescriptor) *Service {
	return &Service{Type: serviceType, Descriptor: desc}
}

// Device returns the owning device.
func (s *Service) Device() *Device { return s.device }

// TypeURN is urn:schemas-upnp-org:service:<type>:1.
func (s *Service) TypeURN() string {
	return consts.ServiceSchemaPrefix + s.Type + ":1"
}

// ID looks up the service id in the owning device's descriptor catalog,
// falling back to the root device's catalog for sub-device types that
// are not registered on their own.
func (s *Service) ID() (string, error) {
	for _, deviceType := range []string{s.device.Type, s.device.Root().Type} {
		desc, err := LookupDevice(deviceType)
		if err != nil {
			continue
		}
		if id, ok := desc.ServiceIDs[s.Type]; ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w for service type %s on device %s", ErrUnknownServiceID, s.Type, s.device.Type)
}

// Path is the SCPD URL path: the owning device's path joined with the
// service type.
func (s *Service) Path() string {
	return s.device.Path() + "/" + s.Type
}

// SCPDURL is the path serving this service's SCPD document.
func (s *Service) SCPDURL() string { return s.Path() }

// ControlURL is the path accepting SOAP action calls.
func (s *Service) ControlURL() string { return s.Path() + "/control" }

// EventSubURL is reserved for GENA subscriptions.
func (s *Service) EventSubURL() string { return s.Path() + "/event_sub" }

// MakeServiceID builds a service id string from a domain and an id,
// replacing the domain's dots with dashes.
func MakeServiceID(domain, id string) string {
	return fmt.Sprintf("urn:%s:serviceId:%s", strings.ReplaceAll(domain, ".", "-"), id)
}
