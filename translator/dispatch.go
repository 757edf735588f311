package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/john/tft-moonraker-bridge/gcode"
)

// dispatch classifies a parsed command into one of the §4.D.2 buckets
// and produces its reply. ok is false for the Unknown bucket (caller
// logs and drops, no reply written).
func (t *Translator) dispatch(ctx context.Context, cmd *gcode.Command) (reply string, ok bool) {
	switch cmd.Kind {
	case gcode.KindG:
		return t.dispatchG(ctx, cmd)
	case gcode.KindM:
		return t.dispatchM(ctx, cmd)
	case gcode.KindT:
		return t.dispatchT(ctx, cmd)
	}
	return "", false
}

func (t *Translator) dispatchG(ctx context.Context, cmd *gcode.Command) (string, bool) {
	switch cmd.Number {
	case 0, 1, 28, 90, 91:
		return t.runScript(ctx, cmd.Body), true
	case 29:
		args := commandArgs(cmd)
		script := "BED_MESH_CALIBRATE"
		if args != "" {
			script = "BED_MESH_CALIBRATE " + args
		}
		return t.runSequence(ctx, "BED_MESH_CLEAR", script), true
	}
	return "", false
}

func (t *Translator) dispatchT(ctx context.Context, cmd *gcode.Command) (string, bool) {
	if cmd.Number == 0 {
		return "ok", true
	}
	return "", false
}

func (t *Translator) dispatchM(ctx context.Context, cmd *gcode.Command) (string, bool) {
	switch cmd.Number {
	case 105:
		return t.renderTemperature(), true
	case 114:
		return t.renderPosition(), true
	case 115:
		return t.renderFirmwareInfo(), true
	case 211:
		return t.renderSoftEndstops(), true
	case 220:
		if !cmd.Has('S') {
			return t.renderFeedRate(), true
		}
		return t.runScript(ctx, cmd.Body), true
	case 221:
		if !cmd.Has('S') {
			return t.renderFlowRate(), true
		}
		return t.runScript(ctx, cmd.Body), true
	case 503:
		return t.renderReportSettings(), true
	case 20:
		return t.dispatchFileList(ctx), true
	case 23:
		return t.dispatchSelectFile(ctx, cmd), true
	case 24:
		return t.dispatchStartResume(ctx), true
	case 25:
		return t.dispatchPause(ctx), true
	case 524:
		return t.callMethod(ctx, "printer.print.cancel", nil), true
	case 27:
		t.intervals.SetPrintStatus(cmd.Int('S', 0))
		return "ok", true
	case 154:
		t.intervals.SetPosition(cmd.Int('S', 0))
		return "ok", true
	case 155:
		t.intervals.SetTemperature(cmd.Int('S', 0))
		return "ok", true
	case 150:
		params := map[byte]int{
			'R': cmd.Int('R', 0),
			'U': cmd.Int('U', 0),
			'B': cmd.Int('B', 0),
			'W': cmd.Int('W', 0),
			'P': cmd.Int('P', 255),
		}
		return t.runScript(ctx, renderLEDCommand(params)), true
	case 201:
		a := cmd.Float('X', cmd.Float('Y', 0))
		return t.runScript(ctx, fmt.Sprintf("SET_VELOCITY_LIMIT ACCEL=%.2f ACCEL_TO_DECEL=%.2f", a, a/2)), true
	case 203:
		v := cmd.Float('X', cmd.Float('Y', 0))
		return t.runScript(ctx, fmt.Sprintf("SET_VELOCITY_LIMIT VELOCITY=%.2f", v)), true
	case 206:
		return t.runScript(ctx, renderGCodeOffset(cmd)), true
	case 280:
		return t.dispatchProbeDebug(ctx, cmd), true
	case 290:
		return t.runScript(ctx, fmt.Sprintf("SET_GCODE_OFFSET Z_ADJUST=%.2f", cmd.Float('Z', 0))), true
	case 851:
		return t.renderProbeOffset(), true
	case 500:
		return t.dispatchSaveConfig(ctx), true
	case 701:
		return t.runSequence(ctx, filamentScripts(cmd, 1)...), true
	case 702:
		return t.runSequence(ctx, filamentScripts(cmd, -1)...), true
	case 118:
		return t.dispatchM118(ctx, cmd), true
	case 33, 21, 82, 84, 106, 104, 140, 48:
		return t.runScript(ctx, cmd.Body), true
	case 420:
		if cmd.Has('S') {
			return t.runScript(ctx, cmd.Body), true
		}
		return "ok", true
	case 22, 92:
		return "ok", true
	case 108:
		return "", true
	}
	return "", false
}

// commandArgs returns everything after the command token (e.g. "P1" out
// of "G29 P1"), or "" if there is none.
func commandArgs(cmd *gcode.Command) string {
	fields := strings.Fields(cmd.Body)
	if len(fields) <= 1 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

func (t *Translator) dispatchFileList(ctx context.Context) string {
	res, err := t.rpcClient.CallContext(ctx, "server.files.list", map[string]interface{}{"path": ""})
	if err != nil {
		return rpcErrorReply(err)
	}
	entries, _ := res.([]interface{})
	return renderFileList(entries)
}

func (t *Translator) dispatchSelectFile(ctx context.Context, cmd *gcode.Command) string {
	raw, _ := cmd.Tail()
	normalized := gcode.NormalizeFilename(raw)
	t.selectedFile = normalized
	return t.runScript(ctx, "M23 "+normalized)
}

func (t *Translator) dispatchStartResume(ctx context.Context) string {
	state := t.mirror.String("print_stats", "state", "standby")
	switch state {
	case "paused":
		return t.callMethod(ctx, "printer.print.resume", nil)
	case "standby", "cancelled":
		return t.runMethodSequence(ctx,
			scriptStep("CLEAR_PAUSE"),
			rpcStep{method: "printer.print.start", params: map[string]interface{}{"filename": t.selectedFile}},
		)
	default:
		return "echo:already printing\nok"
	}
}

func (t *Translator) dispatchPause(ctx context.Context) string {
	state := t.mirror.String("print_stats", "state", "standby")
	if state != "printing" {
		return "ok"
	}
	return t.callMethod(ctx, "printer.print.pause", nil)
}

func (t *Translator) dispatchSaveConfig(ctx context.Context) string {
	state := t.mirror.String("print_stats", "state", "standby")
	if state == "printing" || state == "paused" {
		return "Error:Not saved - Printing"
	}
	return t.runSequence(ctx, "Z_OFFSET_APPLY_PROBE", "SAVE_CONFIG")
}

func (t *Translator) dispatchM118(ctx context.Context, cmd *gcode.Command) string {
	tail, _ := cmd.Tail()
	if cmd.Int('P', -1) == 0 && cmd.Int('A', -1) == 1 && tail == "action:cancel" {
		return "//action:cancel"
	}
	return t.runScript(ctx, cmd.Body)
}

// dispatchProbeDebug implements M280 Sn (spec.md table): bltouch pin
// commands when configfile.settings.bltouch exists, a plain enable pin
// otherwise.
func (t *Translator) dispatchProbeDebug(ctx context.Context, cmd *gcode.Command) string {
	n := cmd.Int('S', 0)
	if t.mirror.HasSection("bltouch") {
		switch n {
		case 10:
			return t.runScript(ctx, "BLTOUCH_DEBUG COMMAND=pin_down")
		case 90:
			return t.runScript(ctx, "BLTOUCH_DEBUG COMMAND=pin_up")
		case 160:
			return t.runScript(ctx, "BLTOUCH_DEBUG COMMAND=reset")
		case 120:
			reply := t.runScript(ctx, "QUERY_PROBE")
			if strings.HasPrefix(reply, "Error:") {
				return reply
			}
			return t.renderProbeTest()
		}
		return "ok"
	}

	switch n {
	case 10:
		return t.runScript(ctx, "SET_PIN PIN=_probe_enable VALUE=1")
	case 90, 160:
		return t.runScript(ctx, "SET_PIN PIN=_probe_enable VALUE=0")
	}
	return "ok"
}

// renderGCodeOffset builds SET_GCODE_OFFSET for M206, including only
// the axes present on the incoming line (spec.md table).
func renderGCodeOffset(cmd *gcode.Command) string {
	var parts []string
	if cmd.Has('X') {
		parts = append(parts, fmt.Sprintf("X=%.2f", cmd.Float('X', 0)))
	}
	if cmd.Has('Y') {
		parts = append(parts, fmt.Sprintf("Y=%.2f", cmd.Float('Y', 0)))
	}
	if cmd.Has('Z') {
		parts = append(parts, fmt.Sprintf("Z=%.2f", cmd.Float('Z', 0)))
	}
	if cmd.Has('E') {
		parts = append(parts, fmt.Sprintf("E=%.2f", cmd.Float('E', 0)))
	}
	if len(parts) == 0 {
		return "SET_GCODE_OFFSET"
	}
	return "SET_GCODE_OFFSET " + strings.Join(parts, " ")
}

// renderProbeTest reports the last probe query/result after M280 S120
// (QUERY_PROBE) completes.
func (t *Translator) renderProbeTest() string {
	last := t.mirror.Bool("probe", "last_query", false)
	state := "TRIGGERED"
	if !last {
		state = "open"
	}
	return fmt.Sprintf("%s\nok", state)
}
