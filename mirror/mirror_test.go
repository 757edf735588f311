package mirror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedThenMerge_FieldsNeverMentionedRetainInitialValue(t *testing.T) {
	m := New()
	require.False(t, m.Ready())

	m.Seed(map[string]Fields{
		"extruder":   {"temperature": 200.0, "target": 210.0},
		"heater_bed": {"temperature": 60.0, "target": 60.0},
	})
	require.True(t, m.Ready())

	m.Merge(map[string]Fields{
		"extruder": {"temperature": 205.5},
	})

	require.InDelta(t, 205.5, m.Float("extruder", "temperature", 0), 0.0001)
	require.InDelta(t, 210.0, m.Float("extruder", "target", 0), 0.0001)
	require.InDelta(t, 60.0, m.Float("heater_bed", "temperature", 0), 0.0001)
}

func TestMerge_UnknownObjectCreatesIt(t *testing.T) {
	m := New()
	m.Merge(map[string]Fields{
		"fan": {"speed": 0.5},
	})
	require.InDelta(t, 0.5, m.Float("fan", "speed", 0), 0.0001)
}

func TestFloat_AbsentObjectReturnsDefault(t *testing.T) {
	m := New()
	require.Equal(t, 7.0, m.Float("nonexistent", "field", 7.0))
}

func TestTuple_PadsShortAndAbsent(t *testing.T) {
	m := New()
	m.Seed(map[string]Fields{
		"gcode_move": {"position": []interface{}{1.0, 2.0}},
	})
	got := m.Tuple("gcode_move", "position", 4)
	require.Equal(t, []float64{1, 2, 0, 0}, got)

	require.Equal(t, []float64{0, 0, 0}, m.Tuple("gcode_move", "homing_origin", 3))
}

func TestNestedAndHasSection(t *testing.T) {
	m := New()
	m.Seed(map[string]Fields{
		"configfile": {"settings": map[string]interface{}{
			"bltouch": map[string]interface{}{"x_offset": 12.0, "z_offset": -2.5},
		}},
	})
	require.True(t, m.HasSection("bltouch"))
	require.False(t, m.HasSection("probe"))
	require.InDelta(t, 12.0, m.Nested("bltouch", "x_offset", 0), 0.0001)
	require.InDelta(t, 0, m.Nested("probe", "x_offset", 0), 0.0001)
}
