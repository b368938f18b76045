package desc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParse is wrapped by every parser failure in this package.
var ErrParse = errors.New("description parse error")

// identRE guards identifiers that end up inside SOAP documents. Action
// names, allowed values and default values must be word characters only.
var identRE = regexp.MustCompile(`\A\w*\z`)

// ParseDevice parses a remote device description document, as fetched by
// a control point from an advertisement's LOCATION. Leading and trailing
// whitespace in text content is tolerated.
func ParseDevice(data []byte) (*DeviceRoot, error) {
	var doc DeviceRoot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if doc.XMLName.Space != DeviceNamespace {
		return nil, fmt.Errorf("%w: unexpected namespace %q", ErrParse, doc.XMLName.Space)
	}
	if err := checkSpecVersion(doc.SpecVersion); err != nil {
		return nil, err
	}
	trimDevice(&doc.Device)
	return &doc, nil
}

// ParseSCPD parses a remote service's SCPD. Identifiers that could be
// echoed into SOAP requests are validated to guard against injection.
func ParseSCPD(data []byte) (*SCPDRoot, error) {
	var doc SCPDRoot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if doc.XMLName.Space != ServiceNamespace {
		return nil, fmt.Errorf("%w: unexpected namespace %q", ErrParse, doc.XMLName.Space)
	}
	if err := checkSpecVersion(doc.SpecVersion); err != nil {
		return nil, err
	}
	if doc.ActionList != nil {
		for i := range doc.ActionList.Actions {
			a := &doc.ActionList.Actions[i]
			a.Name = strings.TrimSpace(a.Name)
			if !identRE.MatchString(a.Name) {
				return nil, fmt.Errorf("%w: illegal action name %q", ErrParse, a.Name)
			}
			if a.Arguments == nil {
				continue
			}
			for j := range a.Arguments.Arguments {
				arg := &a.Arguments.Arguments[j]
				arg.Name = strings.TrimSpace(arg.Name)
				arg.Direction = strings.TrimSpace(arg.Direction)
				arg.RelatedStateVariable = strings.TrimSpace(arg.RelatedStateVariable)
			}
		}
	}
	for i := range doc.StateTable.Variables {
		sv := &doc.StateTable.Variables[i]
		sv.Name = strings.TrimSpace(sv.Name)
		sv.DataType = strings.TrimSpace(sv.DataType)
		sv.DefaultValue = strings.TrimSpace(sv.DefaultValue)
		if !identRE.MatchString(sv.DefaultValue) {
			return nil, fmt.Errorf("%w: illegal default value %q", ErrParse, sv.DefaultValue)
		}
		if r := sv.AllowedRange; r != nil {
			r.Minimum = strings.TrimSpace(r.Minimum)
			r.Maximum = strings.TrimSpace(r.Maximum)
			r.Step = strings.TrimSpace(r.Step)
		}
		if sv.AllowedValues == nil {
			continue
		}
		for j, v := range sv.AllowedValues.Values {
			v = strings.TrimSpace(v)
			if !identRE.MatchString(v) {
				return nil, fmt.Errorf("%w: illegal allowed value %q", ErrParse, v)
			}
			sv.AllowedValues.Values[j] = v
		}
	}
	return &doc, nil
}

func checkSpecVersion(v SpecVersion) error {
	if v.Major != 1 || v.Minor != 0 {
		return fmt.Errorf("%w: unsupported spec version %d.%d", ErrParse, v.Major, v.Minor)
	}
	return nil
}

func trimDevice(d *DeviceElem) {
	d.DeviceType = strings.TrimSpace(d.DeviceType)
	d.UDN = strings.TrimSpace(d.UDN)
	d.FriendlyName = strings.TrimSpace(d.FriendlyName)
	d.Manufacturer = strings.TrimSpace(d.Manufacturer)
	d.ManufacturerURL = strings.TrimSpace(d.ManufacturerURL)
	d.ModelDescription = strings.TrimSpace(d.ModelDescription)
	d.ModelName = strings.TrimSpace(d.ModelName)
	d.ModelNumber = strings.TrimSpace(d.ModelNumber)
	d.ModelURL = strings.TrimSpace(d.ModelURL)
	d.SerialNumber = strings.TrimSpace(d.SerialNumber)
	d.UPC = strings.TrimSpace(d.UPC)
	if d.ServiceList != nil {
		for i := range d.ServiceList.Services {
			s := &d.ServiceList.Services[i]
			s.ServiceType = strings.TrimSpace(s.ServiceType)
			s.ServiceID = strings.TrimSpace(s.ServiceID)
			s.SCPDURL = strings.TrimSpace(s.SCPDURL)
			s.ControlURL = strings.TrimSpace(s.ControlURL)
			s.EventSubURL = strings.TrimSpace(s.EventSubURL)
		}
	}
	if d.DeviceList != nil {
		for i := range d.DeviceList.Devices {
			trimDevice(&d.DeviceList.Devices[i])
		}
	}
}
