package device_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/navidrome/upnp/core/soap"
	"github.com/navidrome/upnp/model"
	"github.com/navidrome/upnp/server/device"
)

func TestDeviceServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Device Server Suite")
}

const serviceURN = "urn:schemas-upnp-org:service:TestService:1"

func registerTestTypes() {
	model.RegisterService(&model.ServiceDescriptor{
		Type: "TestService",
		Actions: []*model.Action{
			{
				Name: "Echo",
				Arguments: []model.Argument{
					{Direction: model.In, Name: "Input", RelatedStateVariable: "Text"},
					{Direction: model.Out, Name: "Output", RelatedStateVariable: "Text"},
				},
				Handler: func(_ context.Context, in []interface{}) ([]interface{}, error) {
					return []interface{}{in[0]}, nil
				},
			},
			{
				Name: "Add",
				Arguments: []model.Argument{
					{Direction: model.In, Name: "A", RelatedStateVariable: "Number"},
					{Direction: model.In, Name: "B", RelatedStateVariable: "Number"},
					{Direction: model.RetVal, Name: "Sum", RelatedStateVariable: "Number"},
					{Direction: model.Out, Name: "Overflowed", RelatedStateVariable: "Flag"},
				},
				Handler: func(_ context.Context, in []interface{}) ([]interface{}, error) {
					sum := in[0].(uint64) + in[1].(uint64)
					return []interface{}{uint32(sum), sum > 0xffffffff}, nil
				},
			},
			{
				Name: "Explode",
				Arguments: []model.Argument{
					{Direction: model.In, Name: "Reason", RelatedStateVariable: "Text"},
				},
				Handler: func(_ context.Context, in []interface{}) ([]interface{}, error) {
					return nil, &soap.UPnPError{Code: 611, Description: in[0].(string)}
				},
			},
		},
		StateVariables: []*model.StateVariable{
			{Name: "Text", DataType: "string"},
			{Name: "Number", DataType: "ui4"},
			{Name: "Flag", DataType: "boolean"},
		},
	})
	model.RegisterDevice(&model.DeviceDescriptor{
		Type:       "TestDevice",
		ServiceIDs: map[string]string{"TestService": model.MakeServiceID("upnp.org", "TestService")},
	})
}

func newTestHost() *device.Host {
	registerTestTypes()
	dev := &model.Device{
		Type:         "TestDevice",
		FriendlyName: "test",
		Name:         "00000000-0000-1000-8000-000000000001",
		Manufacturer: "M",
		ModelName:    "X",
	}
	_, err := dev.AddService("TestService")
	Expect(err).ToNot(HaveOccurred())
	host, err := device.NewHost(dev)
	Expect(err).ToNot(HaveOccurred())
	return host
}

func postSOAP(router http.Handler, url, action string, args []soap.Arg) *httptest.ResponseRecorder {
	body := soap.BuildRequest(serviceURN, action, args)
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", soap.SOAPAction(serviceURN, action))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var _ = Describe("Host", func() {
	var router http.Handler

	BeforeEach(func() {
		router = newTestHost().Routes()
	})

	Describe("NewHost", func() {
		It("rejects an invalid tree", func() {
			registerTestTypes()
			_, err := device.NewHost(&model.Device{Type: "TestDevice", FriendlyName: "x", Name: "n"})
			Expect(err).To(MatchError(model.ErrValidation))
		})
	})

	Describe("description and SCPD routes", func() {
		It("serves the root description as text/xml", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/description", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/xml"))
			Expect(w.Body.String()).To(ContainSubstring("<SCPDURL>/TestDevice/TestService</SCPDURL>"))
			Expect(w.Body.String()).To(ContainSubstring("<controlURL>/TestDevice/TestService/control</controlURL>"))
		})

		It("serves the SCPD at the advertised path", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/TestDevice/TestService", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("<name>Echo</name>"))
		})

		It("stamps every response with SERVER and EXT headers", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/description", nil))
			Expect(w.Header().Get("Server")).To(ContainSubstring("UPnP/1.0"))
			_, hasExt := w.Result().Header["Ext"]
			Expect(hasExt).To(BeTrue())
		})

		It("returns 404 for unknown paths", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/TestDevice/NoSuchService", nil))
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("lists devices and services on the index page", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/html"))
			Expect(w.Body.String()).To(ContainSubstring("TestService"))
		})

		It("answers event subscription attempts with 501", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/TestDevice/TestService/event_sub", nil))
			Expect(w.Code).To(Equal(http.StatusNotImplemented))
		})
	})

	Describe("SOAP dispatch", func() {
		It("invokes a registered action and echoes the result", func() {
			w := postSOAP(router, "/TestDevice/TestService/control", "Echo", []soap.Arg{{Name: "Input", Value: "hello"}})
			Expect(w.Code).To(Equal(http.StatusOK))
			args, err := soap.ParseResponse(w.Body.Bytes(), "Echo")
			Expect(err).ToNot(HaveOccurred())
			Expect(args).To(Equal([]soap.Arg{{Name: "Output", Value: "hello"}}))
		})

		It("returns out-parameters in declared order with the retval first", func() {
			w := postSOAP(router, "/TestDevice/TestService/control", "Add",
				[]soap.Arg{{Name: "A", Value: "2"}, {Name: "B", Value: "3"}})
			Expect(w.Code).To(Equal(http.StatusOK))
			args, err := soap.ParseResponse(w.Body.Bytes(), "Add")
			Expect(err).ToNot(HaveOccurred())
			Expect(args).To(Equal([]soap.Arg{
				{Name: "Sum", Value: "5"},
				{Name: "Overflowed", Value: "0"},
			}))
		})

		It("faults 401 for an unregistered action", func() {
			w := postSOAP(router, "/TestDevice/TestService/control", "NoSuchAction", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("<errorCode>401</errorCode>"))
			Expect(w.Body.String()).To(ContainSubstring("<errorDescription>Invalid Action</errorDescription>"))
		})

		It("faults 402 when an argument does not coerce", func() {
			w := postSOAP(router, "/TestDevice/TestService/control", "Add",
				[]soap.Arg{{Name: "A", Value: "two"}, {Name: "B", Value: "3"}})
			Expect(w.Body.String()).To(ContainSubstring("<errorCode>402</errorCode>"))
		})

		It("faults 402 when an argument is missing", func() {
			w := postSOAP(router, "/TestDevice/TestService/control", "Add",
				[]soap.Arg{{Name: "A", Value: "2"}})
			Expect(w.Body.String()).To(ContainSubstring("<errorCode>402</errorCode>"))
		})

		It("propagates handler UPnP errors bit-exactly", func() {
			w := postSOAP(router, "/TestDevice/TestService/control", "Explode",
				[]soap.Arg{{Name: "Reason", Value: "kaboom"}})
			Expect(w.Body.String()).To(ContainSubstring("<errorCode>611</errorCode>"))
			Expect(w.Body.String()).To(ContainSubstring("<errorDescription>kaboom</errorDescription>"))
		})

		It("rejects a malformed envelope with 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/TestDevice/TestService/control", strings.NewReader("junk"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
