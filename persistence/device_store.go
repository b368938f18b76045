// Package persistence stores device trees on disk so a device keeps its
// UUID across restarts. Each root device is one file at
// <DataFolder>/<type>/<friendlyName>, holding a versioned record of the
// descriptive model only; runtime state (servers, sockets) is never
// persisted.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/navidrome/upnp/log"
	"github.com/navidrome/upnp/model"
)

// schemaVersion is bumped when the record layout changes. Unknown
// versions are rejected on load.
const schemaVersion = 1

type serviceRecord struct {
	Type string `json:"type"`
}

type deviceRecord struct {
	Type             string          `json:"type"`
	FriendlyName     string          `json:"friendlyName"`
	Name             string          `json:"name"`
	Manufacturer     string          `json:"manufacturer,omitempty"`
	ManufacturerURL  string          `json:"manufacturerURL,omitempty"`
	ModelDescription string          `json:"modelDescription,omitempty"`
	ModelName        string          `json:"modelName,omitempty"`
	ModelNumber      string          `json:"modelNumber,omitempty"`
	ModelURL         string          `json:"modelURL,omitempty"`
	SerialNumber     string          `json:"serialNumber,omitempty"`
	UPC              string          `json:"UPC,omitempty"`
	SubDevices       []deviceRecord  `json:"subDevices,omitempty"`
	Services         []serviceRecord `json:"services,omitempty"`
}

type rootRecord struct {
	Version int          `json:"version"`
	Device  deviceRecord `json:"device"`
}

type deviceStore struct {
	dataFolder string
}

// NewDeviceStore returns a model.DeviceStore rooted at dataFolder.
func NewDeviceStore(dataFolder string) model.DeviceStore {
	return &deviceStore{dataFolder: dataFolder}
}

func (s *deviceStore) path(deviceType, friendlyName string) string {
	return filepath.Join(s.dataFolder, deviceType, friendlyName)
}

func (s *deviceStore) Exists(deviceType, friendlyName string) bool {
	_, err := os.Stat(s.path(deviceType, friendlyName))
	return err == nil
}

func (s *deviceStore) Save(dev *model.Device) error {
	record := rootRecord{Version: schemaVersion, Device: toRecord(dev)}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device record: %w", err)
	}
	path := s.path(dev.Type, dev.FriendlyName)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating device folder: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing device record: %w", err)
	}
	log.Debug("Saved device record", "path", path, "udn", dev.UDN())
	return nil
}

func (s *deviceStore) Load(deviceType, friendlyName string) (*model.Device, error) {
	path := s.path(deviceType, friendlyName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device record: %w", err)
	}
	var record rootRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding device record %s: %w", path, err)
	}
	if record.Version != schemaVersion {
		return nil, fmt.Errorf("unsupported device record version %d in %s", record.Version, path)
	}
	return fromRecord(&record.Device)
}

func toRecord(dev *model.Device) deviceRecord {
	r := deviceRecord{
		Type:             dev.Type,
		FriendlyName:     dev.FriendlyName,
		Name:             dev.Name,
		Manufacturer:     dev.Manufacturer,
		ManufacturerURL:  dev.ManufacturerURL,
		ModelDescription: dev.ModelDescription,
		ModelName:        dev.ModelName,
		ModelNumber:      dev.ModelNumber,
		ModelURL:         dev.ModelURL,
		SerialNumber:     dev.SerialNumber,
		UPC:              dev.UPC,
	}
	for _, child := range dev.SubDevices {
		r.SubDevices = append(r.SubDevices, toRecord(child))
	}
	for _, svc := range dev.Services {
		r.Services = append(r.Services, serviceRecord{Type: svc.Type})
	}
	return r
}

func fromRecord(r *deviceRecord) (*model.Device, error) {
	dev := &model.Device{
		Type:             r.Type,
		FriendlyName:     r.FriendlyName,
		Name:             r.Name,
		Manufacturer:     r.Manufacturer,
		ManufacturerURL:  r.ManufacturerURL,
		ModelDescription: r.ModelDescription,
		ModelName:        r.ModelName,
		ModelNumber:      r.ModelNumber,
		ModelURL:         r.ModelURL,
		SerialNumber:     r.SerialNumber,
		UPC:              r.UPC,
	}
	for i := range r.SubDevices {
		child, err := fromRecord(&r.SubDevices[i])
		if err != nil {
			return nil, err
		}
		dev.SubDevices = append(dev.SubDevices, child)
	}
	for _, sr := range r.Services {
		sd, err := model.LookupService(sr.Type)
		if err != nil {
			return nil, err
		}
		dev.Services = append(dev.Services, model.NewService(sr.Type, sd))
	}
	return dev, nil
}
