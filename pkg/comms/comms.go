// Package comms provides the GATT layout of Pokit devices: service and characteristic UUIDs,
// and pure encoders/decoders for every characteristic payload. Nothing in this package
// performs I/O.
package comms

import "tinygo.org/x/bluetooth"

// Status service UUIDs differ between the Pokit Meter and the Pokit Pro.
var (
	StatusServiceUUIDMeter, _ = bluetooth.ParseUUID("57d3a771-267c-4394-8872-78223e92aec4")
	StatusServiceUUIDPro, _   = bluetooth.ParseUUID("57d3a771-267c-4394-8872-78223e92aec5")

	DeviceCharacteristicsCharUUID, _ = bluetooth.ParseUUID("6974f5e5-0e54-45c3-97dd-29e4b5fb0849")
	StatusCharUUID, _                = bluetooth.ParseUUID("3dba36e1-6120-4706-8dfd-ed9c16e569b6")
	NameCharUUID, _                  = bluetooth.ParseUUID("7f0375de-077e-4555-8f78-800494509cc3")
	FlashLedCharUUID, _              = bluetooth.ParseUUID("ec9bb1f3-05a9-4277-8dd0-60a7896f0d6e")
)

var (
	MultimeterServiceUUID, _      = bluetooth.ParseUUID("e7481d2f-5781-442e-bb9a-fd4e3441dadc")
	MultimeterSettingsCharUUID, _ = bluetooth.ParseUUID("53dc9a7a-bc19-4280-b76b-002d0e23b078")
	MultimeterReadingCharUUID, _  = bluetooth.ParseUUID("047d3559-8bee-423a-b229-4417fa603b90")
)

var (
	DsoServiceUUID, _      = bluetooth.ParseUUID("1569801e-1425-4a7a-b617-a4f4ed719de6")
	DsoSettingsCharUUID, _ = bluetooth.ParseUUID("a81af1b6-b8b3-4244-8859-3da368d2be39")
	DsoMetadataCharUUID, _ = bluetooth.ParseUUID("970f00ba-f46f-4825-96a8-153a5cd0cda9")
	DsoReadingCharUUID, _  = bluetooth.ParseUUID("98e14f8e-536e-4f24-b4f4-1debfed0a99e")
)

var (
	LoggerServiceUUID, _      = bluetooth.ParseUUID("a5ff3566-1fd8-4e10-8362-590a578a4121")
	LoggerSettingsCharUUID, _ = bluetooth.ParseUUID("5f97c62b-a83b-46c6-b9cd-cac59e130a78")
	LoggerMetadataCharUUID, _ = bluetooth.ParseUUID("9acada2e-3936-430b-a8f7-da407d97ca6e")
	LoggerReadingCharUUID, _  = bluetooth.ParseUUID("3c669dab-fc86-411c-9498-4f9415049cc0")
)

var (
	CalibrationServiceUUID, _         = bluetooth.ParseUUID("6f53be2f-f16f-4b5b-b9d9-5a2d3cf8d6ba")
	CalibrationTemperatureCharUUID, _ = bluetooth.ParseUUID("0cd0f713-f5aa-4572-9e23-f8049f6bcaaa")
)

// Standard Bluetooth SIG services.
var (
	DeviceInfoServiceUUID           = bluetooth.New16BitUUID(0x180A)
	ManufacturerNameCharUUID        = bluetooth.New16BitUUID(0x2A29)
	ModelNumberCharUUID             = bluetooth.New16BitUUID(0x2A24)
	HardwareRevisionCharUUID        = bluetooth.New16BitUUID(0x2A27)
	FirmwareRevisionCharUUID        = bluetooth.New16BitUUID(0x2A26)
	SoftwareRevisionCharUUID        = bluetooth.New16BitUUID(0x2A28)
	GenericAccessServiceUUID        = bluetooth.New16BitUUID(0x1800)
	GenericAccessDeviceNameCharUUID = bluetooth.New16BitUUID(0x2A00)
	GenericAccessAppearanceCharUUID = bluetooth.New16BitUUID(0x2A01)
)

var serviceNames = []struct {
	uuid  bluetooth.UUID
	label string
}{
	{CalibrationServiceUUID, "Calibration"},
	{LoggerServiceUUID, "Data Logger"},
	{DsoServiceUUID, "DSO"},
	{MultimeterServiceUUID, "Multimeter"},
	{StatusServiceUUIDMeter, "Status (Pokit Meter)"},
	{StatusServiceUUIDPro, "Status (Pokit Pro)"},
	{DeviceInfoServiceUUID, "Device Information"},
	{GenericAccessServiceUUID, "Generic Access"},
}

var characteristicNames = []struct {
	uuid  bluetooth.UUID
	label string
}{
	{CalibrationTemperatureCharUUID, "Temperature"},
	{LoggerMetadataCharUUID, "Metadata"},
	{LoggerReadingCharUUID, "Reading"},
	{LoggerSettingsCharUUID, "Settings"},
	{DsoMetadataCharUUID, "Metadata"},
	{DsoReadingCharUUID, "Reading"},
	{DsoSettingsCharUUID, "Settings"},
	{MultimeterReadingCharUUID, "Reading"},
	{MultimeterSettingsCharUUID, "Settings"},
	{DeviceCharacteristicsCharUUID, "Device Characteristics"},
	{FlashLedCharUUID, "Flash LED"},
	{NameCharUUID, "Name"},
	{StatusCharUUID, "Status"},
	{ManufacturerNameCharUUID, "Manufacturer Name String"},
	{ModelNumberCharUUID, "Model Number String"},
	{HardwareRevisionCharUUID, "Hardware Revision String"},
	{FirmwareRevisionCharUUID, "Firmware Revision String"},
	{SoftwareRevisionCharUUID, "Software Revision String"},
	{GenericAccessDeviceNameCharUUID, "Device Name"},
	{GenericAccessAppearanceCharUUID, "Appearance"},
}

// ServiceName returns a human readable name for a known service UUID, or "" if unknown.
func ServiceName(uuid bluetooth.UUID) string {
	for _, s := range serviceNames {
		if s.uuid == uuid {
			return s.label
		}
	}
	return ""
}

// CharacteristicName returns a human readable name for a known characteristic UUID, or "" if unknown.
func CharacteristicName(uuid bluetooth.UUID) string {
	for _, c := range characteristicNames {
		if c.uuid == uuid {
			return c.label
		}
	}
	return ""
}
