package translator

import (
	"fmt"

	"github.com/john/tft-moonraker-bridge/gcode"
)

// filamentScripts expands M701/M702 into the ordered macro sequence
// (spec.md §4.D.5): G91, G92 E<index>, G1 Z<z> E<±length> F180, G92 E0.
func filamentScripts(cmd *gcode.Command, direction int) []string {
	length := cmd.Float('L', 25)
	extruder := cmd.Int('E', 0)
	z := cmd.Float('Z', 0)

	signedLength := length
	if direction < 0 {
		signedLength = -length
	}

	return []string{
		"G91",
		fmt.Sprintf("G92 E%d", extruder),
		fmt.Sprintf("G1 Z%.2f E%.2f F180", z, signedLength),
		"G92 E0",
	}
}
