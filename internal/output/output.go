// Package output renders decoded device values for the command line.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mlsorensen/gopokit"
	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/services"
	"github.com/mlsorensen/gopokit/pkg/session"
)

type Format int

const (
	Text Format = iota
	CSV
	JSON
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case CSV:
		return "csv"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("Unknown Format (%d)", int(f))
	}
}

// ParseFormat accepts "text", "csv" or "json", in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	default:
		return Text, fmt.Errorf("unknown output format %q", s)
	}
}

// Writer writes values in one format. CSV headers are written once per kind of value.
// A Writer is not safe for concurrent use.
type Writer struct {
	format  Format
	w       io.Writer
	csv     *csv.Writer
	json    *json.Encoder
	headers map[string]bool
}

func New(w io.Writer, format Format) *Writer {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return &Writer{
		format:  format,
		w:       w,
		csv:     csv.NewWriter(w),
		json:    enc,
		headers: make(map[string]bool),
	}
}

func (w *Writer) Format() Format { return w.format }

// Flush writes any buffered CSV rows.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

func (w *Writer) row(kind string, header []string, record []string) error {
	if !w.headers[kind] {
		w.headers[kind] = true
		if err := w.csv.Write(header); err != nil {
			return err
		}
	}
	return w.csv.Write(record)
}

func (w *Writer) text(format string, args ...any) error {
	_, err := fmt.Fprintf(w.w, format, args...)
	return err
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Reading writes one DSO or data logger sample.
func (w *Writer) Reading(r session.Reading) error {
	value := formatValue(r.Value)
	switch w.format {
	case CSV:
		return w.row("reading", []string{"sample_number", "value", "unit", "range"},
			[]string{strconv.Itoa(r.Index), value, r.Unit, r.RangeLabel()})
	case JSON:
		return w.json.Encode(struct {
			Value float64 `json:"value"`
			Unit  string  `json:"unit"`
			Range string  `json:"range"`
			Mode  string  `json:"mode"`
		}{r.Value, r.Unit, r.RangeLabel(), r.Mode.String()})
	default:
		return w.text("%d %s %s\n", r.Index, value, r.Unit)
	}
}

// Metadata describes an acquisition before its samples. Only the text format shows it.
func (w *Writer) Metadata(md comms.Metadata) error {
	if w.format != Text {
		return nil
	}
	if md.Service == comms.ServiceDso {
		return w.text("# %s, %s, %s samples at %s\n", md.Mode, md.RangeLabel(),
			humanize.Comma(int64(md.NumberOfSamples)), humanize.SIWithDigits(float64(md.SamplingRate), 2, "Hz"))
	}
	return w.text("# %s, %s, %s samples every %d ms\n", md.Mode, md.RangeLabel(),
		humanize.Comma(int64(md.NumberOfSamples)), md.SamplingWindow)
}

// MeterReading writes one multimeter reading.
func (w *Writer) MeterReading(r comms.MultimeterReading) error {
	value := formatValue(float64(r.Value))
	rangeLabel := "N/A"
	if r.Range != nil {
		rangeLabel = r.Range.String()
	}
	switch w.format {
	case CSV:
		return w.row("meter", []string{"mode", "value", "unit", "status", "range"},
			[]string{strings.ToLower(r.Mode.String()), value, r.Mode.Unit(), strings.ToLower(r.StatusLabel()), rangeLabel})
	case JSON:
		return w.json.Encode(struct {
			Status string  `json:"status"`
			Value  float32 `json:"value"`
			Unit   string  `json:"unit"`
			Mode   string  `json:"mode"`
			Range  string  `json:"range"`
		}{r.StatusLabel(), r.Value, r.Mode.Unit(), r.Mode.String(), rangeLabel})
	default:
		return w.text("%s %s\n", value, r.Mode.Unit())
	}
}

// Status writes the device name, characteristics and current status.
func (w *Writer) Status(name string, chars comms.DeviceCharacteristics, st comms.Status) error {
	battery := "N/A"
	batteryCode := ""
	if st.BatteryStatus != nil {
		battery = st.BatteryStatus.String()
		batteryCode = strconv.Itoa(int(*st.BatteryStatus))
	}
	switch w.format {
	case CSV:
		return w.row("status", []string{"device_name", "device_status", "firmware_version", "maximum_voltage",
			"maximum_current", "maximum_resistance", "maximum_sampling_rate", "sampling_buffer_size",
			"capability_mask", "mac_address", "battery_voltage", "battery_status"},
			[]string{
				name,
				strings.ToLower(st.DeviceStatus.String()),
				chars.FirmwareVersion.String(),
				strconv.Itoa(int(chars.MaximumVoltage)),
				strconv.Itoa(int(chars.MaximumCurrent)),
				strconv.Itoa(int(chars.MaximumResistance)),
				strconv.Itoa(int(chars.MaximumSamplingRate)),
				strconv.Itoa(int(chars.SamplingBufferSize)),
				strconv.Itoa(int(chars.CapabilityMask)),
				chars.MacAddress.String(),
				formatValue(float64(st.BatteryVoltage)),
				strings.ToLower(battery),
			})
	case JSON:
		type firmware struct {
			Major uint8 `json:"major"`
			Minor uint8 `json:"minor"`
		}
		type code struct {
			Code  uint8  `json:"code"`
			Label string `json:"label"`
		}
		type batteryInfo struct {
			Level  float32 `json:"level"`
			Status string  `json:"status,omitempty"`
		}
		b := batteryInfo{Level: st.BatteryVoltage}
		if st.BatteryStatus != nil {
			b.Status = battery
		}
		return w.json.Encode(struct {
			DeviceName          string      `json:"deviceName"`
			FirmwareVersion     firmware    `json:"firmwareVersion"`
			MaximumVoltage      uint16      `json:"maximumVoltage"`
			MaximumCurrent      uint16      `json:"maximumCurrent"`
			MaximumResistance   uint16      `json:"maximumResistance"`
			MaximumSamplingRate uint16      `json:"maximumSamplingRate"`
			SamplingBufferSize  uint16      `json:"samplingBufferSize"`
			CapabilityMask      uint16      `json:"capabilityMask"`
			MacAddress          string      `json:"macAddress"`
			DeviceStatus        code        `json:"deviceStatus"`
			Battery             batteryInfo `json:"battery"`
		}{
			DeviceName:          name,
			FirmwareVersion:     firmware{chars.FirmwareVersion.Major, chars.FirmwareVersion.Minor},
			MaximumVoltage:      chars.MaximumVoltage,
			MaximumCurrent:      chars.MaximumCurrent,
			MaximumResistance:   chars.MaximumResistance,
			MaximumSamplingRate: chars.MaximumSamplingRate,
			SamplingBufferSize:  chars.SamplingBufferSize,
			CapabilityMask:      chars.CapabilityMask,
			MacAddress:          chars.MacAddress.String(),
			DeviceStatus:        code{uint8(st.DeviceStatus), st.DeviceStatus.String()},
			Battery:             b,
		})
	default:
		lines := []struct{ label, value string }{
			{"Device name", name},
			{"Firmware version", chars.FirmwareVersion.String()},
			{"Maximum voltage", strconv.Itoa(int(chars.MaximumVoltage))},
			{"Maximum current", strconv.Itoa(int(chars.MaximumCurrent))},
			{"Maximum resistance", strconv.Itoa(int(chars.MaximumResistance))},
			{"Maximum sampling rate", strconv.Itoa(int(chars.MaximumSamplingRate))},
			{"Sampling buffer size", strconv.Itoa(int(chars.SamplingBufferSize))},
			{"Capability mask", strconv.Itoa(int(chars.CapabilityMask))},
			{"MAC address", chars.MacAddress.String()},
			{"Device status", fmt.Sprintf("%s (%d)", st.DeviceStatus, uint8(st.DeviceStatus))},
			{"Battery voltage", formatValue(float64(st.BatteryVoltage))},
			{"Battery status", strings.TrimSpace(fmt.Sprintf("%s %s", battery, parens(batteryCode)))},
		}
		for _, l := range lines {
			if err := w.text("%-22s %s\n", l.label+":", l.value); err != nil {
				return err
			}
		}
		return nil
	}
}

func parens(s string) string {
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}

// Info writes the device information strings.
func (w *Writer) Info(name, address string, info services.DeviceInfo) error {
	switch w.format {
	case CSV:
		return w.row("info", []string{"device_name", "device_address", "manufacturer_name", "model_number",
			"hardware_revision", "firmware_revision", "software_revision"},
			[]string{name, address, info.ManufacturerName, info.ModelNumber,
				info.HardwareRevision, info.FirmwareRevision, info.SoftwareRevision})
	case JSON:
		return w.json.Encode(struct {
			DeviceName       string `json:"deviceName,omitempty"`
			DeviceAddress    string `json:"deviceAddress,omitempty"`
			ManufacturerName string `json:"manufacturerName"`
			ModelNumber      string `json:"modelNumber"`
			HardwareRevision string `json:"hardwareRevision"`
			FirmwareRevision string `json:"firmwareRevision"`
			SoftwareRevision string `json:"softwareRevision"`
		}{name, address, info.ManufacturerName, info.ModelNumber,
			info.HardwareRevision, info.FirmwareRevision, info.SoftwareRevision})
	default:
		lines := []struct{ label, value string }{
			{"Device name", name},
			{"Device address", address},
			{"Manufacturer name", info.ManufacturerName},
			{"Model number", info.ModelNumber},
			{"Hardware revision", info.HardwareRevision},
			{"Firmware revision", info.FirmwareRevision},
			{"Software revision", info.SoftwareRevision},
		}
		for _, l := range lines {
			if l.value == "" && (l.label == "Device name" || l.label == "Device address") {
				continue
			}
			if err := w.text("%-18s %s\n", l.label+":", l.value); err != nil {
				return err
			}
		}
		return nil
	}
}

// Device writes one discovered device.
func (w *Writer) Device(d gopokit.FoundDevice) error {
	virtual := gopokit.IsVirtual(d.Name)
	address := d.ID()
	switch w.format {
	case CSV:
		return w.row("device", []string{"device_name", "device_address", "rssi", "virtual"},
			[]string{d.Name, address, strconv.Itoa(d.RSSI), strconv.FormatBool(virtual)})
	case JSON:
		return w.json.Encode(struct {
			Name    string `json:"name"`
			Address string `json:"address,omitempty"`
			RSSI    int    `json:"rssi"`
			Virtual bool   `json:"virtual,omitempty"`
		}{d.Name, address, d.RSSI, virtual})
	default:
		if virtual {
			return w.text("%s (virtual)\n", d.Name)
		}
		return w.text("%s %s %d dBm\n", address, d.Name, d.RSSI)
	}
}
