package translator

import (
	"fmt"
	"strings"
)

// firmwareCapBlock is the fixed Cap: block every firmware-info reply
// carries (spec.md §6).
const firmwareCapBlock = "Cap:EEPROM:1\n" +
	"Cap:AUTOREPORT_TEMP:1\n" +
	"Cap:AUTOREPORT_POS:1\n" +
	"Cap:AUTOLEVEL:1\n" +
	"Cap:Z_PROBE:1\n" +
	"Cap:LEVELING_DATA:0\n" +
	"Cap:SOFTWARE_POWER:0\n" +
	"Cap:TOGGLE_LIGHTS:0\n" +
	"Cap:CASE_LIGHT_BRIGHTNESS:0\n" +
	"Cap:EMERGENCY_PARSER:1\n" +
	"Cap:PROMPT_SUPPORT:0\n" +
	"Cap:SDCARD:1\n" +
	"Cap:MULTI_VOLUME:0\n" +
	"Cap:AUTOREPORT_SD_STATUS:1\n" +
	"Cap:LONG_FILENAME:1\n" +
	"Cap:BABYSTEPPING:1\n" +
	"Cap:BUILD_PERCENT:1\n" +
	"Cap:CHAMBER_TEMPERATURE:0"

// renderTemperature builds the M105 reply (trailing "ok", spec.md §9b).
func (t *Translator) renderTemperature() string {
	extTemp := t.mirror.Float("extruder", "temperature", 0)
	extTarget := t.mirror.Float("extruder", "target", 0)
	bedTemp := t.mirror.Float("heater_bed", "temperature", 0)
	bedTarget := t.mirror.Float("heater_bed", "target", 0)
	return fmt.Sprintf("T:%.2f /%.2f B:%.2f /%.2f @:0 B@:0\nok", extTemp, extTarget, bedTemp, bedTarget)
}

// renderTemperatureReport is the same fields, in the "ok <report>" form
// used by the auto-report scheduler (spec.md §9b).
func (t *Translator) renderTemperatureReport() string {
	extTemp := t.mirror.Float("extruder", "temperature", 0)
	extTarget := t.mirror.Float("extruder", "target", 0)
	bedTemp := t.mirror.Float("heater_bed", "temperature", 0)
	bedTarget := t.mirror.Float("heater_bed", "target", 0)
	return fmt.Sprintf("ok T:%.2f /%.2f B:%.2f /%.2f @:0 B@:0", extTemp, extTarget, bedTemp, bedTarget)
}

// renderPosition builds the M114 reply (the position auto-report is
// ReportPosition, which has no trailing "ok").
func (t *Translator) renderPosition() string {
	pos := t.mirror.Tuple("gcode_move", "position", 4)
	return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f\nok", pos[0], pos[1], pos[2], pos[3])
}

func (t *Translator) renderFeedRate() string {
	factor := t.mirror.Float("gcode_move", "speed_factor", 1.0)
	return fmt.Sprintf("FR:%d%%\nok", int(factor*100))
}

func (t *Translator) renderFlowRate() string {
	factor := t.mirror.Float("gcode_move", "extrude_factor", 1.0)
	return fmt.Sprintf("E0 Flow:%d%%\nok", int(factor*100))
}

func (t *Translator) renderSoftEndstops() string {
	enabled := t.mirror.Bool("filament_switch_sensor filament_sensor", "enabled", false)
	state := "Off"
	if enabled {
		state = "On"
	}
	return fmt.Sprintf("Soft endstops: %s\nok", state)
}

func (t *Translator) renderFirmwareInfo() string {
	version := t.mirror.String("mcu", "mcu_version", "unknown")
	machine := t.machineType
	if machine == "" {
		machine = "Klipper"
	}
	first := fmt.Sprintf(
		"FIRMWARE_NAME:Klipper %s SOURCE_CODE_URL:https://github.com/Klipper3d/klipper PROTOCOL_VERSION:1.0 MACHINE_TYPE:%s",
		version, machine)
	return first + "\n" + firmwareCapBlock + "\nok"
}

// renderReportSettings builds the M503 reply. X/Y come from toolhead
// limits; Z and E are distinct backend fields (printer.max_z_velocity/
// max_z_accel, extruder.max_extrude_only_velocity/max_extrude_only_accel)
// rather than the toolhead value repeated across every column. Also
// pulls gcode_move homing origin, the probe/bltouch offset (whichever is
// present), bed_mesh fade_end, and fan speed.
func (t *Translator) renderReportSettings() string {
	maxVel := t.mirror.Float("toolhead", "max_velocity", 0)
	maxAccel := t.mirror.Float("toolhead", "max_accel", 0)
	zVel := t.mirror.Nested("printer", "max_z_velocity", 0)
	zAccel := t.mirror.Nested("printer", "max_z_accel", 0)
	eVel := t.mirror.Nested("extruder", "max_extrude_only_velocity", 0)
	eAccel := t.mirror.Nested("extruder", "max_extrude_only_accel", 0)
	origin := t.mirror.Tuple("gcode_move", "homing_origin", 3)
	fadeEnd := t.mirror.Nested("bed_mesh", "fade_end", 0)
	fanSpeed := t.mirror.Float("fan", "speed", 0) * 255.0

	xOff, yOff, zOff := t.probeOffsets()

	lines := []string{
		fmt.Sprintf("M203 X%.2f Y%.2f Z%.2f E%.2f", maxVel, maxVel, zVel, eVel),
		fmt.Sprintf("M201 X%.2f Y%.2f Z%.2f E%.2f", maxAccel, maxAccel, zAccel, eAccel),
		fmt.Sprintf("M206 X%.2f Y%.2f Z%.2f", origin[0], origin[1], origin[2]),
		fmt.Sprintf("M851 X%.2f Y%.2f Z%.2f", xOff, yOff, zOff),
		fmt.Sprintf("M420 S1 Z%.2f", fadeEnd),
		fmt.Sprintf("M106 S%.0f", fanSpeed),
		"ok",
	}
	return strings.Join(lines, "\n")
}

// probeOffsets returns the bltouch/probe x/y/z offsets, preferring
// "bltouch" and falling back to "probe" (spec.md §9a).
func (t *Translator) probeOffsets() (x, y, z float64) {
	section := "bltouch"
	if !t.mirror.HasSection(section) {
		section = "probe"
	}
	return t.mirror.Nested(section, "x_offset", 0),
		t.mirror.Nested(section, "y_offset", 0),
		t.mirror.Nested(section, "z_offset", 0)
}

// renderProbeOffset builds the M851 local reply (spec.md §6): the
// probe's raw offsets minus the current homing origin.
func (t *Translator) renderProbeOffset() string {
	x, y, z := t.probeOffsets()
	origin := t.mirror.Tuple("gcode_move", "homing_origin", 3)
	return fmt.Sprintf("M851 X%.2f Y%.2f Z%.2f\nok", x-origin[0], y-origin[1], z-origin[2])
}

// renderFileList builds the M20 reply from a server.files.list result.
func renderFileList(entries []interface{}) string {
	var b strings.Builder
	b.WriteString("Begin file list\n")
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		path, _ := m["path"].(string)
		size := int64(0)
		switch v := m["size"].(type) {
		case float64:
			size = int64(v)
		case int64:
			size = v
		}
		fmt.Fprintf(&b, "%s %d\n", path, size)
	}
	b.WriteString("End file list\nok")
	return b.String()
}

// renderLEDCommand builds the SET_LED script for M150 (spec.md table):
// each channel = (value/255) * (P/255), three decimals.
func renderLEDCommand(params map[byte]int) string {
	p := float64(params['P']) / 255.0
	chan3 := func(letter byte) float64 {
		return (float64(params[letter]) / 255.0) * p
	}
	return fmt.Sprintf(
		"SET_LED LED=statusled RED=%.3f GREEN=%.3f BLUE=%.3f WHITE=%.3f TRANSMIT=1 SYNC=1",
		chan3('R'), chan3('U'), chan3('B'), chan3('W'))
}
