// Package translator implements the Command Translator (spec.md §4.D),
// the core state machine: parse incoming G-code, decide handling, and
// produce Marlin reply bytes.
package translator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/john/tft-moonraker-bridge/gcode"
	"github.com/john/tft-moonraker-bridge/mirror"
)

// MirrorReader is the read-only view of the State Mirror the Translator
// needs (spec.md §4.C).
type MirrorReader interface {
	Object(name string) (mirror.Fields, bool)
	Float(object, field string, def float64) float64
	Tuple(object, field string, length int) []float64
	String(object, field, def string) string
	Bool(object, field string, def bool) bool
	Nested(section, field string, def float64) float64
	HasSection(section string) bool
}

// RPCCaller is the subset of the RPC Client the Translator drives
// (spec.md §4.B).
type RPCCaller interface {
	Call(method string, params interface{}) (interface{}, error)
	CallContext(ctx context.Context, method string, params interface{}) (interface{}, error)
}

// Writer is the subset of the Serial Link the Translator writes replies to.
type Writer interface {
	Write(lines ...string)
}

// Intervals holds the three auto-report timer intervals (spec.md §3).
// The Translator is the single writer; the Auto-Report Scheduler reads.
type Intervals struct {
	mu          sync.RWMutex
	temperature int
	position    int
	printStatus int
}

func (i *Intervals) SetTemperature(s int) { i.mu.Lock(); i.temperature = s; i.mu.Unlock() }
func (i *Intervals) SetPosition(s int)    { i.mu.Lock(); i.position = s; i.mu.Unlock() }
func (i *Intervals) SetPrintStatus(s int) { i.mu.Lock(); i.printStatus = s; i.mu.Unlock() }

func (i *Intervals) Temperature() int { i.mu.RLock(); defer i.mu.RUnlock(); return i.temperature }
func (i *Intervals) Position() int    { i.mu.RLock(); defer i.mu.RUnlock(); return i.position }
func (i *Intervals) PrintStatus() int { i.mu.RLock(); defer i.mu.RUnlock(); return i.printStatus }

// Translator is the command dispatch state machine. It is driven by a
// single goroutine dequeuing from a FIFO — no internal locking is
// needed for the selected-file slot since only that goroutine mutates it.
type Translator struct {
	mirror    MirrorReader
	rpcClient RPCCaller
	out       Writer
	log       *log.Logger

	parser      *gcode.Parser
	machineType string

	selectedFile string
	intervals    *Intervals

	mu           sync.Mutex
	activeCancel context.CancelFunc
}

// Config carries the few knobs the Translator needs beyond its collaborators.
type Config struct {
	RequireChecksum bool
	MachineType     string
}

// New wires a Translator over its three collaborators.
func New(m MirrorReader, rpcClient RPCCaller, out Writer, cfg Config, logger *log.Logger) *Translator {
	if logger == nil {
		logger = log.New(log.Writer(), "translator: ", log.LstdFlags)
	}
	t := &Translator{
		mirror:      m,
		rpcClient:   rpcClient,
		out:         out,
		log:         logger,
		parser:      gcode.NewParser(cfg.RequireChecksum),
		machineType: cfg.MachineType,
		intervals:   &Intervals{},
	}
	return t
}

// Intervals returns the shared auto-report interval state for the
// scheduler to read.
func (t *Translator) Intervals() *Intervals { return t.intervals }

// ReportTemperature renders the unsolicited "ok <report>" temperature
// line the Auto-Report Scheduler emits on its own timer (spec.md §9b —
// distinct from M105's direct "...\nok" form).
func (t *Translator) ReportTemperature() string { return t.renderTemperatureReport() }

// ReportPosition renders the unsolicited position line the scheduler
// emits on its own timer.
func (t *Translator) ReportPosition() string {
	pos := t.mirror.Tuple("gcode_move", "position", 4)
	return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f", pos[0], pos[1], pos[2], pos[3])
}

// ReportPrintStatus renders the unsolicited SD-progress line the
// scheduler emits on its own timer, from virtual_sdcard's byte counters.
func (t *Translator) ReportPrintStatus() string {
	pos := t.mirror.Float("virtual_sdcard", "file_position", 0)
	size := t.mirror.Float("virtual_sdcard", "file_size", 0)
	return fmt.Sprintf("SD printing byte %d/%d", int64(pos), int64(size))
}

// Write forwards lines to the Translator's serial writer. The Auto-Report
// Scheduler is wired to that same writer, so a multi-line reply and an
// auto-report never interleave (spec.md §5).
func (t *Translator) Write(lines ...string) { t.out.Write(lines...) }

// Process handles exactly one raw serial line end-to-end: parse,
// dispatch, reply. It must not be called concurrently with itself — the
// caller (the main command loop) is the single FIFO consumer (spec.md §4.D.6).
func (t *Translator) Process(line string) {
	if gcode.IsEmergencyStop(line) {
		t.EmergencyStop()
		return
	}

	cmd, err := t.parser.Parse(line)
	if err != nil {
		t.log.Printf("parse error: %v (line=%q)", err, line)
		t.out.Write("Error:Invalid Checksum")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.activeCancel = cancel
	t.mu.Unlock()
	defer func() {
		cancel()
		t.mu.Lock()
		if t.activeCancel != nil {
			t.activeCancel = nil
		}
		t.mu.Unlock()
	}()

	reply, ok := t.dispatch(ctx, cmd)
	if !ok {
		// Unknown command: log and drop, no reply.
		t.log.Printf("unknown command: %c%d", cmd.Kind, cmd.Number)
		return
	}
	if reply == "" {
		// Silent-ignore / ack handled inline already wrote nothing by design.
		return
	}
	t.out.Write(strings.Split(reply, "\n")...)
}

// EmergencyStop transitions from any state to REPLIED with an error
// reply, cancels any RPC the Translator has in flight, and fires the
// backend's emergency-stop RPC without waiting on it (spec.md §4.D.7).
func (t *Translator) EmergencyStop() {
	t.mu.Lock()
	cancel := t.activeCancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	go func() {
		if _, err := t.rpcClient.Call("printer.emergency_stop", nil); err != nil {
			t.log.Printf("emergency stop RPC failed: %v", err)
		}
	}()

	t.out.Write("Error:Emergency Stop")
}

// callMethod invokes a single backend RPC method directly (as opposed to
// a macro dispatched through printer.gcode.script) and renders its
// outcome as a Marlin reply.
func (t *Translator) callMethod(ctx context.Context, method string, params interface{}) string {
	_, err := t.rpcClient.CallContext(ctx, method, params)
	if err != nil {
		return rpcErrorReply(err)
	}
	return "ok"
}

// runScript forwards a single G-code script to the backend and returns
// its rendered reply (RPC-passthrough, spec.md §4.D.2 bucket 2).
func (t *Translator) runScript(ctx context.Context, script string) string {
	return t.callMethod(ctx, "printer.gcode.script", map[string]interface{}{"script": script})
}

// runSequence forwards scripts one at a time, awaiting each, and emits
// the final reply only after the last completes (spec.md §4.D.6).
func (t *Translator) runSequence(ctx context.Context, scripts ...string) string {
	for _, s := range scripts {
		if _, err := t.rpcClient.CallContext(ctx, "printer.gcode.script", map[string]interface{}{"script": s}); err != nil {
			return rpcErrorReply(err)
		}
	}
	return "ok"
}

// runMethodSequence runs a mix of direct RPC methods and gcode macros in
// order, stopping at the first failure (spec.md §4.D.6). Each step names
// its method and params; a nil params value is sent as-is.
type rpcStep struct {
	method string
	params interface{}
}

func (t *Translator) runMethodSequence(ctx context.Context, steps ...rpcStep) string {
	for _, s := range steps {
		if _, err := t.rpcClient.CallContext(ctx, s.method, s.params); err != nil {
			return rpcErrorReply(err)
		}
	}
	return "ok"
}

func scriptStep(script string) rpcStep {
	return rpcStep{method: "printer.gcode.script", params: map[string]interface{}{"script": script}}
}

func rpcErrorReply(err error) string {
	return fmt.Sprintf("Error:%s", strings.ReplaceAll(err.Error(), "\n", " "))
}
