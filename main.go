package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/john/tft-moonraker-bridge/autoreport"
	"github.com/john/tft-moonraker-bridge/mirror"
	"github.com/john/tft-moonraker-bridge/rpc"
	"github.com/john/tft-moonraker-bridge/serial"
	"github.com/john/tft-moonraker-bridge/translator"
)

// subscribedObjects is the exact object/field set the bridge needs
// mirrored (spec.md §6).
var subscribedObjects = map[string]interface{}{
	"extruder":                        []string{"temperature", "target"},
	"heater_bed":                      []string{"temperature", "target"},
	"gcode_move":                      []string{"position", "homing_origin", "speed_factor", "extrude_factor"},
	"toolhead":                        []string{"max_velocity", "max_accel"},
	"mcu":                             []string{"mcu_version"},
	"configfile":                      []string{"settings"},
	"fan":                             []string{"speed"},
	"virtual_sdcard":                  []string{"file_position", "file_size"},
	"print_stats":                     []string{"state"},
	"probe":                           []string{"last_query", "last_z_result"},
	"filament_switch_sensor filament_sensor": []string{"enabled"},
}

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logOut := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	flags := log.LstdFlags
	if cfg.Verbose {
		flags |= log.Lshortfile
	}
	logger := log.New(logOut, "", flags)

	logger.Printf("tft-moonraker-bridge starting (serial=%s baud=%d websocket=%s)",
		cfg.SerialPort, cfg.BaudRate, cfg.WebsocketURL)

	link, err := serial.Open(cfg.SerialPort, cfg.BaudRate, log.New(logOut, "serial: ", flags))
	if err != nil {
		logger.Fatalf("failed to open serial port: %v", err)
	}
	defer link.Close()

	snapshot := mirror.New()

	rpcClient := rpc.New(cfg.WebsocketURL, log.New(logOut, "rpc: ", flags))
	rpcClient.OnStatusUpdate(func(delta map[string]interface{}) {
		snapshot.Merge(toSnapshot(delta))
	})
	rpcClient.OnGCodeResponse(func(line string) {
		link.Write(reformatBackendLine(line))
	})
	rpcClient.OnReconnect(func(err error) {
		link.Write("Error:Transport")
	})

	subscribe := func() error {
		status, err := rpcClient.Subscribe(subscribedObjects)
		if err != nil {
			return err
		}
		snapshot.Seed(toSnapshot(status))
		return nil
	}

	if err := rpcClient.Connect(); err != nil {
		logger.Fatalf("failed to connect to backend: %v", err)
	}
	if err := subscribe(); err != nil {
		logger.Fatalf("initial printer.objects.subscribe failed: %v", err)
	}
	go rpcClient.Run(subscribe)

	tr := translator.New(snapshot, rpcClient, link, translator.Config{
		RequireChecksum: cfg.RequireChecksum,
		MachineType:     cfg.MachineType,
	}, log.New(logOut, "translator: ", flags))

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	scheduler := autoreport.New(tr.Intervals(), tr, link, log.New(logOut, "autoreport: ", flags))
	go scheduler.Run(schedulerCtx)

	lines := make(chan string, 64)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			line, err := link.ReadLine()
			if err != nil {
				readErrCh <- err
				return
			}
			lines <- line
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
loop:
	for {
		select {
		case line := <-lines:
			tr.Process(line)
		case err := <-readErrCh:
			logger.Printf("serial link closed: %v", err)
			exitCode = 1
			break loop
		case sig := <-sigCh:
			logger.Printf("received signal %v, shutting down", sig)
			break loop
		}
	}

	stopScheduler()
	rpcClient.Close()
	time.Sleep(50 * time.Millisecond)

	os.Exit(exitCode)
}

// toSnapshot converts a raw JSON-decoded status map into typed Fields
// per object, tolerating objects whose value didn't decode as a map.
func toSnapshot(status map[string]interface{}) map[string]mirror.Fields {
	out := make(map[string]mirror.Fields, len(status))
	for name, raw := range status {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out[name] = mirror.Fields(fields)
	}
	return out
}

// reformatBackendLine forwards backend console output verbatim, except
// "!!" lines are rewritten as errors (spec.md §6).
func reformatBackendLine(line string) string {
	if len(line) >= 2 && line[:2] == "!!" {
		return "Error:" + line[2:]
	}
	return line
}
