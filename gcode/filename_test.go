package gcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFilename(t *testing.T) {
	cases := map[string]string{
		`"0:/gcodes/cube.gcode"`: "/cube.gcode",
		"0:/gcodes/cube.gcode":   "/cube.gcode",
		"/gcodes/cube.gcode":     "/cube.gcode",
		"gcodes/cube.gcode":      "/cube.gcode",
		"cube.gcode":             "/cube.gcode",
		"  /cube.gcode  ":        "/cube.gcode",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeFilename(in), "input %q", in)
	}
}
