package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/model"
	"github.com/navidrome/upnp/persistence"
)

func TestPersistence(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Persistence Suite")
}

func registerTestTypes() {
	model.RegisterService(&model.ServiceDescriptor{
		Type: "TestService",
		Actions: []*model.Action{
			{
				Name: "TestAction",
				Arguments: []model.Argument{
					{Direction: model.In, Name: "TestInput", RelatedStateVariable: "TestInVar"},
					{Direction: model.Out, Name: "TestOutput", RelatedStateVariable: "TestOutVar"},
				},
				Handler: func(_ context.Context, in []interface{}) ([]interface{}, error) {
					return []interface{}{in[0]}, nil
				},
			},
		},
		StateVariables: []*model.StateVariable{
			{Name: "TestInVar", DataType: "string"},
			{Name: "TestOutVar", DataType: "string"},
		},
	})
	model.RegisterDevice(&model.DeviceDescriptor{
		Type: "TestDevice",
		ServiceIDs: map[string]string{
			"TestService": model.MakeServiceID("upnp.org", "TestService"),
		},
		Defaults: func(d *model.Device) {
			d.Manufacturer = "M"
			d.ModelName = "X"
		},
	})
}

var _ = Describe("DeviceStore", func() {
	var store model.DeviceStore
	var dataFolder string

	BeforeEach(func() {
		dataFolder = GinkgoT().TempDir()
		conf.Server.DataFolder = dataFolder
		registerTestTypes()
		store = persistence.NewDeviceStore(dataFolder)
	})

	It("round-trips a device tree preserving identity", func() {
		dev, err := model.Create(store, "TestDevice", "living room", func(d *model.Device) {
			d.SerialNumber = "42"
			_, _ = d.AddService("TestService")
			_, _ = d.AddDevice("TestDevice", "nested", func(c *model.Device) {
				c.Manufacturer = "M"
				c.ModelName = "X"
			})
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(store.Save(dev)).To(Succeed())

		loaded, err := store.Load("TestDevice", "living room")
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded.Name).To(Equal(dev.Name))
		Expect(loaded.SerialNumber).To(Equal("42"))
		Expect(loaded.Services).To(HaveLen(1))
		Expect(loaded.SubDevices).To(HaveLen(1))
		Expect(loaded.SubDevices[0].Name).To(Equal(dev.SubDevices[0].Name))
	})

	It("stores the record under <folder>/<type>/<friendlyName>", func() {
		_, err := model.Create(store, "TestDevice", "hallway", nil)
		Expect(err).ToNot(HaveOccurred())
		_, err = os.Stat(filepath.Join(dataFolder, "TestDevice", "hallway"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("rejects unknown record versions", func() {
		path := filepath.Join(dataFolder, "TestDevice", "future")
		Expect(os.MkdirAll(filepath.Dir(path), 0700)).To(Succeed())
		Expect(os.WriteFile(path, []byte(`{"version":99,"device":{}}`), 0600)).To(Succeed())
		_, err := store.Load("TestDevice", "future")
		Expect(err).To(MatchError(ContainSubstring("version 99")))
	})
})

var _ = Describe("model.Create", func() {
	var store model.DeviceStore
	var dataFolder string

	BeforeEach(func() {
		dataFolder = GinkgoT().TempDir()
		conf.Server.DataFolder = dataFolder
		registerTestTypes()
		store = persistence.NewDeviceStore(dataFolder)
	})

	It("rejects unknown device types", func() {
		_, err := model.Create(store, "NoSuchDevice", "x", nil)
		Expect(err).To(MatchError(model.ErrUnknownDeviceType))
	})

	It("reuses the persisted uuid on re-creation", func() {
		first, err := model.Create(store, "TestDevice", "test", nil)
		Expect(err).ToNot(HaveOccurred())
		second, err := model.Create(store, "TestDevice", "test", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Name).To(Equal(first.Name))
	})

	It("issues a fresh uuid after the record is deleted", func() {
		first, err := model.Create(store, "TestDevice", "test", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(os.Remove(filepath.Join(dataFolder, "TestDevice", "test"))).To(Succeed())
		second, err := model.Create(store, "TestDevice", "test", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Name).ToNot(Equal(first.Name))
	})

	It("applies the override callback on top of a loaded device", func() {
		_, err := model.Create(store, "TestDevice", "test", func(d *model.Device) {
			d.ModelNumber = "1"
		})
		Expect(err).ToNot(HaveOccurred())
		dev, err := model.Create(store, "TestDevice", "test", func(d *model.Device) {
			d.ModelNumber = "2"
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(dev.ModelNumber).To(Equal("2"))
	})
})
