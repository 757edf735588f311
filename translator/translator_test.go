package translator

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/john/tft-moonraker-bridge/mirror"
)

type fakeMirror struct {
	floats    map[string]float64
	tuples    map[string][]float64
	sections  map[string]bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		floats:   make(map[string]float64),
		tuples:   make(map[string][]float64),
		sections: make(map[string]bool),
	}
}

func key(object, field string) string { return object + "." + field }

func (f *fakeMirror) Object(name string) (mirror.Fields, bool) { return nil, false }

func (f *fakeMirror) Float(object, field string, def float64) float64 {
	if v, ok := f.floats[key(object, field)]; ok {
		return v
	}
	return def
}

func (f *fakeMirror) Tuple(object, field string, length int) []float64 {
	if v, ok := f.tuples[key(object, field)]; ok {
		return v
	}
	return make([]float64, length)
}

func (f *fakeMirror) String(object, field, def string) string { return def }
func (f *fakeMirror) Bool(object, field string, def bool) bool { return def }
func (f *fakeMirror) Nested(section, field string, def float64) float64 {
	if v, ok := f.floats["configfile."+section+"."+field]; ok {
		return v
	}
	return def
}
func (f *fakeMirror) HasSection(section string) bool { return f.sections[section] }

type rpcCall struct {
	method string
	params interface{}
}

type fakeRPC struct {
	calls []rpcCall
	err   error
}

func (r *fakeRPC) Call(method string, params interface{}) (interface{}, error) {
	r.calls = append(r.calls, rpcCall{method, params})
	return nil, r.err
}

func (r *fakeRPC) CallContext(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return r.Call(method, params)
}

type fakeWriter struct {
	writes [][]string
}

func (w *fakeWriter) Write(lines ...string) { w.writes = append(w.writes, lines) }

func newTestTranslator(m *fakeMirror, r *fakeRPC, w *fakeWriter) *Translator {
	return New(m, r, w, Config{RequireChecksum: false}, log.New(log.Writer(), "", 0))
}

// Scenario 1 (spec.md §8).
func TestScenario_M105Temperature(t *testing.T) {
	m := newFakeMirror()
	m.floats[key("extruder", "temperature")] = 205.12
	m.floats[key("extruder", "target")] = 210.0
	m.floats[key("heater_bed", "temperature")] = 60.03
	m.floats[key("heater_bed", "target")] = 60.0
	w := &fakeWriter{}
	tr := newTestTranslator(m, &fakeRPC{}, w)

	tr.Process("M105")

	require.Len(t, w.writes, 1)
	require.Equal(t, []string{"T:205.12 /210.00 B:60.03 /60.00 @:0 B@:0", "ok"}, w.writes[0])
}

// Scenario 2.
func TestScenario_M114Position(t *testing.T) {
	m := newFakeMirror()
	m.tuples[key("gcode_move", "position")] = []float64{12.5, 30.0, 5.25, 1.4}
	w := &fakeWriter{}
	tr := newTestTranslator(m, &fakeRPC{}, w)

	tr.Process("M114")

	require.Equal(t, []string{"X:12.50 Y:30.00 Z:5.25 E:1.40", "ok"}, w.writes[0])
}

// Scenario 3.
func TestScenario_M150LED(t *testing.T) {
	r := &fakeRPC{}
	w := &fakeWriter{}
	tr := newTestTranslator(newFakeMirror(), r, w)

	tr.Process("M150 R255 U0 B0 P128")

	require.Len(t, r.calls, 1)
	require.Equal(t, "printer.gcode.script", r.calls[0].method)
	params := r.calls[0].params.(map[string]interface{})
	require.Equal(t, "SET_LED LED=statusled RED=0.502 GREEN=0.000 BLUE=0.000 WHITE=0.000 TRANSMIT=1 SYNC=1", params["script"])
	require.Equal(t, []string{"ok"}, w.writes[0])
}

// Scenario 4.
func TestScenario_M23SelectFile(t *testing.T) {
	r := &fakeRPC{}
	w := &fakeWriter{}
	tr := newTestTranslator(newFakeMirror(), r, w)

	tr.Process("M23 0:/gcodes/cube.gcode")

	require.Equal(t, "/cube.gcode", tr.selectedFile)
	require.Len(t, r.calls, 1)
	params := r.calls[0].params.(map[string]interface{})
	require.Equal(t, "M23 /cube.gcode", params["script"])
}

// Scenario 5.
func TestScenario_M112EmergencyStop(t *testing.T) {
	r := &fakeRPC{}
	w := &fakeWriter{}
	tr := newTestTranslator(newFakeMirror(), r, w)

	tr.Process("M112")

	require.Equal(t, []string{"Error:Emergency Stop"}, w.writes[0])
}

// Scenario 6.
func TestScenario_G29BedMeshSequence(t *testing.T) {
	r := &fakeRPC{}
	w := &fakeWriter{}
	tr := newTestTranslator(newFakeMirror(), r, w)

	tr.Process("G29 P1")

	require.Len(t, r.calls, 2)
	require.Equal(t, "BED_MESH_CLEAR", r.calls[0].params.(map[string]interface{})["script"])
	require.Equal(t, "BED_MESH_CALIBRATE P1", r.calls[1].params.(map[string]interface{})["script"])
	require.Equal(t, []string{"ok"}, w.writes[0])
}

func TestUnknownCommand_NoReply(t *testing.T) {
	w := &fakeWriter{}
	tr := newTestTranslator(newFakeMirror(), &fakeRPC{}, w)

	tr.Process("M9999")

	require.Empty(t, w.writes)
}

func TestM108_SilentIgnore(t *testing.T) {
	w := &fakeWriter{}
	tr := newTestTranslator(newFakeMirror(), &fakeRPC{}, w)

	tr.Process("M108")

	require.Empty(t, w.writes)
}
