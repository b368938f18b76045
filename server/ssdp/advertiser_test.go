package ssdp

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/model"
)

func newAdvertisedTree() *model.Device {
	model.RegisterService(&model.ServiceDescriptor{
		Type: "TestService",
		Actions: []*model.Action{{
			Name: "TestAction",
			Arguments: []model.Argument{
				{Direction: model.In, Name: "TestInput", RelatedStateVariable: "TestInVar"},
				{Direction: model.Out, Name: "TestOutput", RelatedStateVariable: "TestOutVar"},
			},
			Handler: func(_ context.Context, in []interface{}) ([]interface{}, error) {
				return []interface{}{in[0]}, nil
			},
		}},
		StateVariables: []*model.StateVariable{
			{Name: "TestInVar", DataType: "string"},
			{Name: "TestOutVar", DataType: "string"},
		},
	})
	model.RegisterDevice(&model.DeviceDescriptor{
		Type:       "TestDevice",
		ServiceIDs: map[string]string{"TestService": model.MakeServiceID("upnp.org", "TestService")},
	})
	dev := &model.Device{
		Type:         "TestDevice",
		FriendlyName: "test",
		Name:         "00000000-0000-1000-8000-000000000001",
		Manufacturer: "M",
		ModelName:    "X",
	}
	_, err := dev.AddService("TestService")
	Expect(err).ToNot(HaveOccurred())
	return dev
}

var _ = Describe("Advertiser", func() {
	var adv *Advertiser

	BeforeEach(func() {
		adv = NewAdvertiser(nil, newAdvertisedTree(), 8080)
	})

	Describe("keys", func() {
		It("announces in the mandated order", func() {
			keys := adv.keys()
			Expect(keys).To(HaveLen(4))
			Expect(keys[0].NT).To(Equal("upnp:rootdevice"))
			Expect(keys[1].NT).To(Equal("uuid:00000000-0000-1000-8000-000000000001"))
			Expect(keys[2].NT).To(Equal("urn:schemas-upnp-org:device:TestDevice:1"))
			Expect(keys[3].NT).To(Equal("urn:schemas-upnp-org:service:TestService:1"))
		})

		It("derives USNs from the root name except for uuid targets", func() {
			keys := adv.keys()
			udn := "uuid:00000000-0000-1000-8000-000000000001"
			Expect(keys[0].USN).To(Equal(udn + "::upnp:rootdevice"))
			Expect(keys[1].USN).To(Equal(udn))
			Expect(keys[2].USN).To(Equal(udn + "::urn:schemas-upnp-org:device:TestDevice:1"))
			Expect(keys[3].USN).To(Equal(udn + "::urn:schemas-upnp-org:service:TestService:1"))
		})
	})

	Describe("matchTargets", func() {
		It("answers upnp:rootdevice with a single key", func() {
			keys := adv.matchTargets("upnp:rootdevice")
			Expect(keys).To(HaveLen(1))
			Expect(keys[0].NT).To(Equal("upnp:rootdevice"))
		})

		It("answers hosted device type urns", func() {
			keys := adv.matchTargets("urn:schemas-upnp-org:device:TestDevice:1")
			Expect(keys).To(HaveLen(1))
		})

		It("answers the device uuid", func() {
			keys := adv.matchTargets("uuid:00000000-0000-1000-8000-000000000001")
			Expect(keys).To(HaveLen(1))
		})

		It("ignores service type searches", func() {
			Expect(adv.matchTargets("urn:schemas-upnp-org:service:TestService:1")).To(BeEmpty())
		})

		It("ignores unknown targets", func() {
			Expect(adv.matchTargets("urn:schemas-upnp-org:device:Printer:1")).To(BeEmpty())
		})

		It("ignores ssdp:all unless configured to answer it", func() {
			conf.Server.SSDP.AnswerAll = false
			Expect(adv.matchTargets("ssdp:all")).To(BeEmpty())

			conf.Server.SSDP.AnswerAll = true
			defer func() { conf.Server.SSDP.AnswerAll = false }()
			Expect(adv.matchTargets("ssdp:all")).To(HaveLen(4))
		})
	})

	Describe("location", func() {
		It("points at the description document", func() {
			Expect(adv.location("192.0.2.5")).To(Equal("http://192.0.2.5:8080/description"))
		})
	})
})

var _ = Describe("Search targets", func() {
	It("resolves the shorthand constructors", func() {
		Expect(string(All())).To(Equal("ssdp:all"))
		Expect(string(Root())).To(Equal("upnp:rootdevice"))
		Expect(string(Device("TestDevice.1"))).To(Equal("urn:schemas-upnp-org:device:TestDevice.1"))
		Expect(string(Service("TestService.1"))).To(Equal("urn:schemas-upnp-org:service:TestService.1"))
	})

	It("passes literal targets through", func() {
		for _, s := range []string{"urn:x", "uuid:y", "ssdp:all"} {
			t, err := Literal(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(t)).To(Equal(s))
		}
	})

	It("rejects other literals", func() {
		_, err := Literal("http://example.com")
		Expect(err).To(HaveOccurred())
	})
})
