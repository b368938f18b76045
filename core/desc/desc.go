// Package desc emits and parses the two XML documents UPnP 1.0 requires
// of a device: the root device description and the per-service SCPD.
package desc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/navidrome/upnp/model"
)

const (
	DeviceNamespace  = "urn:schemas-upnp-org:device-1-0"
	ServiceNamespace = "urn:schemas-upnp-org:service-1-0"
)

// SpecVersion is always 1.0 for this implementation.
type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

// DeviceRoot is the document element of the device description.
type DeviceRoot struct {
	XMLName     xml.Name    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion SpecVersion `xml:"specVersion"`
	Device      DeviceElem  `xml:"device"`
}

// DeviceElem mirrors the <device> element. Field order matters: the
// encoder emits fields in declaration order and optional fields are
// omitted entirely rather than rendered empty.
type DeviceElem struct {
	DeviceType       string       `xml:"deviceType"`
	UDN              string       `xml:"UDN"`
	FriendlyName     string       `xml:"friendlyName"`
	Manufacturer     string       `xml:"manufacturer"`
	ManufacturerURL  string       `xml:"manufacturerURL,omitempty"`
	ModelDescription string       `xml:"modelDescription,omitempty"`
	ModelName        string       `xml:"modelName"`
	ModelNumber      string       `xml:"modelNumber,omitempty"`
	ModelURL         string       `xml:"modelURL,omitempty"`
	SerialNumber     string       `xml:"serialNumber,omitempty"`
	UPC              string       `xml:"UPC,omitempty"`
	ServiceList      *ServiceList `xml:"serviceList,omitempty"`
	DeviceList       *DeviceList  `xml:"deviceList,omitempty"`
}

type ServiceList struct {
	Services []ServiceElem `xml:"service"`
}

type DeviceList struct {
	Devices []DeviceElem `xml:"device"`
}

// ServiceElem mirrors the <service> element inside a serviceList.
type ServiceElem struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

// SCPDRoot is the document element of a service's SCPD.
type SCPDRoot struct {
	XMLName     xml.Name       `xml:"urn:schemas-upnp-org:service-1-0 scpd"`
	SpecVersion SpecVersion    `xml:"specVersion"`
	ActionList  *ActionList    `xml:"actionList,omitempty"`
	StateTable  StateTableElem `xml:"serviceStateTable"`
}

type ActionList struct {
	Actions []ActionElem `xml:"action"`
}

type ActionElem struct {
	Name      string        `xml:"name"`
	Arguments *ArgumentList `xml:"argumentList,omitempty"`
}

type ArgumentList struct {
	Arguments []ArgumentElem `xml:"argument"`
}

type ArgumentElem struct {
	Direction            string `xml:"direction"`
	Name                 string `xml:"name"`
	RelatedStateVariable string `xml:"relatedStateVariable"`
}

type StateTableElem struct {
	Variables []StateVariableElem `xml:"stateVariable"`
}

type StateVariableElem struct {
	SendEvents    string            `xml:"sendEvents,attr"`
	Name          string            `xml:"name"`
	DataType      string            `xml:"dataType"`
	DefaultValue  string            `xml:"defaultValue,omitempty"`
	AllowedValues *AllowedValueList `xml:"allowedValueList,omitempty"`
	AllowedRange  *AllowedRangeElem `xml:"allowedValueRange,omitempty"`
}

type AllowedValueList struct {
	Values []string `xml:"allowedValue"`
}

type AllowedRangeElem struct {
	Minimum string `xml:"minimum"`
	Maximum string `xml:"maximum"`
	Step    string `xml:"step,omitempty"`
}

// RenderDevice emits the description document for a device tree. The
// output is deterministic: unchanged trees produce byte-identical
// documents.
func RenderDevice(root *model.Device) ([]byte, error) {
	if err := root.Validate(); err != nil {
		return nil, err
	}
	elem, err := deviceToElem(root)
	if err != nil {
		return nil, err
	}
	doc := DeviceRoot{
		SpecVersion: SpecVersion{Major: 1, Minor: 0},
		Device:      *elem,
	}
	return marshalDocument(doc)
}

func deviceToElem(dev *model.Device) (*DeviceElem, error) {
	elem := &DeviceElem{
		DeviceType:       dev.TypeURN(),
		UDN:              dev.UDN(),
		FriendlyName:     dev.FriendlyName,
		Manufacturer:     dev.Manufacturer,
		ManufacturerURL:  dev.ManufacturerURL,
		ModelDescription: dev.ModelDescription,
		ModelName:        dev.ModelName,
		ModelNumber:      dev.ModelNumber,
		ModelURL:         dev.ModelURL,
		SerialNumber:     dev.SerialNumber,
		UPC:              dev.UPC,
	}
	if len(dev.Services) > 0 {
		list := &ServiceList{}
		for _, svc := range dev.Services {
			id, err := svc.ID()
			if err != nil {
				return nil, err
			}
			list.Services = append(list.Services, ServiceElem{
				ServiceType: svc.TypeURN(),
				ServiceID:   id,
				SCPDURL:     svc.SCPDURL(),
				ControlURL:  svc.ControlURL(),
				EventSubURL: svc.EventSubURL(),
			})
		}
		elem.ServiceList = list
	}
	if len(dev.SubDevices) > 0 {
		list := &DeviceList{}
		for _, child := range dev.SubDevices {
			childElem, err := deviceToElem(child)
			if err != nil {
				return nil, err
			}
			list.Devices = append(list.Devices, *childElem)
		}
		elem.DeviceList = list
	}
	return elem, nil
}

// RenderSCPD emits the SCPD for a service descriptor. Actions are sorted
// lexicographically by name; arguments keep their declared order; state
// variables keep catalog order, which is stable across invocations.
func RenderSCPD(sd *model.ServiceDescriptor) ([]byte, error) {
	doc := SCPDRoot{SpecVersion: SpecVersion{Major: 1, Minor: 0}}

	actions := make([]*model.Action, len(sd.Actions))
	copy(actions, sd.Actions)
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })

	if len(actions) > 0 {
		doc.ActionList = &ActionList{}
		for _, a := range actions {
			elem := ActionElem{Name: a.Name}
			if len(a.Arguments) > 0 {
				elem.Arguments = &ArgumentList{}
				for _, arg := range a.Arguments {
					elem.Arguments.Arguments = append(elem.Arguments.Arguments, ArgumentElem{
						Direction:            string(arg.Direction),
						Name:                 arg.Name,
						RelatedStateVariable: arg.RelatedStateVariable,
					})
				}
			}
			doc.ActionList.Actions = append(doc.ActionList.Actions, elem)
		}
	}

	for _, sv := range sd.StateVariables {
		elem := StateVariableElem{
			SendEvents:   sendEvents(sv.Evented),
			Name:         sv.Name,
			DataType:     sv.DataType,
			DefaultValue: sv.DefaultValue,
		}
		if len(sv.AllowedValues) > 0 {
			elem.AllowedValues = &AllowedValueList{Values: sv.AllowedValues}
		}
		if sv.AllowedRange != nil {
			elem.AllowedRange = &AllowedRangeElem{
				Minimum: formatNumber(sv.AllowedRange.Min),
				Maximum: formatNumber(sv.AllowedRange.Max),
			}
			if sv.AllowedRange.Step != nil {
				elem.AllowedRange.Step = formatNumber(*sv.AllowedRange.Step)
			}
		}
		doc.StateTable.Variables = append(doc.StateTable.Variables, elem)
	}

	return marshalDocument(doc)
}

func sendEvents(evented bool) string {
	if evented {
		return "yes"
	}
	return "no"
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func marshalDocument(doc interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding description: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
