// Package soap implements the SOAP 1.1 subset UPnP control uses: one
// action element per body, untyped string arguments, and the UPnPError
// fault detail block.
package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

const (
	EnvelopeNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	EncodingStyle = "http://schemas.xmlsoap.org/soap/encoding/"
	ControlNS     = "urn:schemas-upnp-org:control-1-0"
)

// ErrParse is returned for malformed envelopes; the HTTP layer turns it
// into a 400.
var ErrParse = errors.New("malformed SOAP envelope")

// UPnPError is the one error kind that crosses the wire in structured
// form, carried bit-exactly through the fault detail block.
type UPnPError struct {
	Code        int
	Description string
}

func (e *UPnPError) Error() string {
	return fmt.Sprintf("UPnPError %d: %s", e.Code, e.Description)
}

// Standard UPnP error codes. 600-699 are action-specific.
var (
	ErrInvalidAction = &UPnPError{Code: 401, Description: "Invalid Action"}
	ErrInvalidArgs   = &UPnPError{Code: 402, Description: "Invalid Args"}
	ErrActionFailed  = &UPnPError{Code: 501, Description: "Action Failed"}
)

// Arg is one named argument value on the wire. Values travel as strings;
// typing happens in the dispatcher through the type registry.
type Arg struct {
	Name  string
	Value string
}

// ActionCall is a decoded inbound action request.
type ActionCall struct {
	// ServiceURN is the namespace of the action element, e.g.
	// urn:schemas-upnp-org:service:TestService:1.
	ServiceURN string
	Name       string
	Args       []Arg
}

// Get returns the value of a named argument and whether it was present.
func (c *ActionCall) Get(name string) (string, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// ParseAction decodes a request body into the action call it carries:
// the first element child of <s:Body>, its namespace, and its children
// as untyped string arguments.
func ParseAction(data []byte) (*ActionCall, error) {
	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.XMLName.Space != EnvelopeNS {
		return nil, fmt.Errorf("%w: unexpected envelope namespace %q", ErrParse, env.XMLName.Space)
	}

	dec := xml.NewDecoder(bytes.NewReader(env.Body.Content))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: no action element in body", ErrParse)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		call := &ActionCall{ServiceURN: start.Name.Space, Name: start.Name.Local}
		if err := decodeArgs(dec, start, call); err != nil {
			return nil, err
		}
		return call, nil
	}
}

func decodeArgs(dec *xml.Decoder, start xml.StartElement, call *ActionCall) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: truncated action element", ErrParse)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := dec.DecodeElement(&value, &t); err != nil {
				return fmt.Errorf("%w: %v", ErrParse, err)
			}
			call.Args = append(call.Args, Arg{Name: t.Name.Local, Value: value})
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

func writeArgs(buf *bytes.Buffer, args []Arg) {
	for _, a := range args {
		buf.WriteString("      <")
		buf.WriteString(a.Name)
		buf.WriteString(">")
		xml.EscapeText(buf, []byte(a.Value))
		buf.WriteString("</")
		buf.WriteString(a.Name)
		buf.WriteString(">\n")
	}
}

// BuildRequest composes an outbound action request envelope.
func BuildRequest(serviceURN, action string, args []Arg) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s">`+"\n", EnvelopeNS, EncodingStyle)
	buf.WriteString("  <s:Body>\n")
	fmt.Fprintf(&buf, `    <u:%s xmlns:u="%s">`+"\n", action, serviceURN)
	writeArgs(&buf, args)
	fmt.Fprintf(&buf, "    </u:%s>\n", action)
	buf.WriteString("  </s:Body>\n</s:Envelope>\n")
	return buf.Bytes()
}

// BuildResponse composes the response envelope for a successful action:
// <u:<Action>Response> with one child per out argument, in declared
// order. Explicit types are suppressed per UPnP convention.
func BuildResponse(serviceURN, action string, args []Arg) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s">`+"\n", EnvelopeNS, EncodingStyle)
	buf.WriteString("  <s:Body>\n")
	fmt.Fprintf(&buf, `    <u:%sResponse xmlns:u="%s">`+"\n", action, serviceURN)
	writeArgs(&buf, args)
	fmt.Fprintf(&buf, "    </u:%sResponse>\n", action)
	buf.WriteString("  </s:Body>\n</s:Envelope>\n")
	return buf.Bytes()
}

// BuildFault composes the UPnP fault envelope for an error.
func BuildFault(upnpErr *UPnPError) []byte {
	var desc bytes.Buffer
	xml.EscapeText(&desc, []byte(upnpErr.Description))
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="%s" s:encodingStyle="%s">
  <s:Body>
    <s:Fault>
      <faultcode>s:Client</faultcode>
      <faultstring>UPnPError</faultstring>
      <detail>
        <UPnPError xmlns="%s">
          <errorCode>%d</errorCode>
          <errorDescription>%s</errorDescription>
        </UPnPError>
      </detail>
    </s:Fault>
  </s:Body>
</s:Envelope>
`, EnvelopeNS, EncodingStyle, ControlNS, upnpErr.Code, desc.String()))
}

// SOAPAction builds the SOAPACTION header value for an action.
func SOAPAction(serviceURN, action string) string {
	return fmt.Sprintf("%q", serviceURN+"#"+action)
}

// ParseSOAPAction splits a SOAPACTION header into service URN and action
// name.
func ParseSOAPAction(header string) (serviceURN, action string) {
	header = strings.Trim(header, `"`)
	if idx := strings.LastIndex(header, "#"); idx >= 0 {
		return header[:idx], header[idx+1:]
	}
	return "", header
}

type faultDetail struct {
	UPnPError *struct {
		ErrorCode        int    `xml:"errorCode"`
		ErrorDescription string `xml:"errorDescription"`
	} `xml:"UPnPError"`
}

type faultElem struct {
	FaultCode   string      `xml:"faultcode"`
	FaultString string      `xml:"faultstring"`
	Detail      faultDetail `xml:"detail"`
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault   *faultElem `xml:"Fault"`
		Content []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

// ParseResponse decodes a response envelope. A fault body yields the
// decoded *UPnPError; a success body yields the out arguments of
// <ActionResponse> in document order.
func ParseResponse(data []byte, action string) ([]Arg, error) {
	var env responseEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.Body.Fault != nil {
		if e := env.Body.Fault.Detail.UPnPError; e != nil {
			return nil, &UPnPError{Code: e.ErrorCode, Description: e.ErrorDescription}
		}
		return nil, fmt.Errorf("%w: fault without UPnPError detail (%s)", ErrParse, env.Body.Fault.FaultString)
	}

	call, err := ParseAction(data)
	if err != nil {
		return nil, err
	}
	if call.Name != action+"Response" {
		return nil, fmt.Errorf("%w: expected %sResponse, got %s", ErrParse, action, call.Name)
	}
	return call.Args, nil
}
