package gcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_ChecksumRoundTrip(t *testing.T) {
	p := NewParser(true)

	line := "N10 M105*22"
	cmd, err := p.Parse(line)
	require.NoError(t, err)
	require.Equal(t, KindM, cmd.Kind)
	require.Equal(t, 105, cmd.Number)
	require.True(t, cmd.HasLine)
	require.Equal(t, 10, cmd.LineNo)
}

func TestParse_ChecksumMismatchRejected(t *testing.T) {
	p := NewParser(true)

	_, err := p.Parse("N10 M105*23")
	require.Error(t, err)
}

func TestParse_MissingChecksumRejectedWhenRequired(t *testing.T) {
	p := NewParser(true)

	_, err := p.Parse("M105")
	require.Error(t, err)
}

func TestParse_MissingChecksumAcceptedWhenOptional(t *testing.T) {
	p := NewParser(false)

	cmd, err := p.Parse("M105")
	require.NoError(t, err)
	require.Equal(t, 105, cmd.Number)
}

func TestParse_ParamsClassifyIntFloatString(t *testing.T) {
	p := NewParser(false)

	cmd, err := p.Parse("G1 X10 Y20.5 Z-1.25")
	require.NoError(t, err)
	require.Equal(t, 10, cmd.Int('X', 0))
	require.InDelta(t, 20.5, cmd.Float('Y', 0), 0.0001)
	require.InDelta(t, -1.25, cmd.Float('Z', 0), 0.0001)
}

func TestParse_ResidualTailCaptured(t *testing.T) {
	p := NewParser(false)

	cmd, err := p.Parse("M23 0:/gcodes/cube.gcode")
	require.NoError(t, err)
	tail, ok := cmd.Tail()
	require.True(t, ok)
	require.Equal(t, "0:/gcodes/cube.gcode", tail)
}

func TestIsEmergencyStop(t *testing.T) {
	require.True(t, IsEmergencyStop("M112"))
	require.True(t, IsEmergencyStop("N5 M112*12"))
	require.False(t, IsEmergencyStop("M105"))
}

func TestParse_EmptyLineIsError(t *testing.T) {
	p := NewParser(false)
	_, err := p.Parse("   \x00\r\n")
	require.Error(t, err)
}
