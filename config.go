package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bridge's full runtime configuration: the CLI flags
// (spec.md §6) layered over optional YAML defaults.
type Config struct {
	SerialPort   string `yaml:"serial_port"`
	BaudRate     int    `yaml:"baud_rate"`
	WebsocketURL string `yaml:"websocket_url"`
	LogFile      string `yaml:"log_file"`
	Verbose      bool   `yaml:"verbose"`

	MachineType     string `yaml:"machine_type"`
	RequireChecksum bool   `yaml:"require_checksum"`

	RPCCallTimeout   time.Duration `yaml:"rpc_call_timeout"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial_backoff"`
	ReconnectMax     time.Duration `yaml:"reconnect_max_backoff"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
}

// DefaultConfig mirrors spec.md §6's CLI defaults.
func DefaultConfig() *Config {
	return &Config{
		SerialPort:       "/dev/ttyS2",
		BaudRate:         115200,
		WebsocketURL:     "ws://127.0.0.1:7125/websocket",
		MachineType:      "TFT Bridge",
		RequireChecksum:  false,
		RPCCallTimeout:   30 * time.Second,
		ReconnectInitial: 1 * time.Second,
		ReconnectMax:     60 * time.Second,
		SubscribeTimeout: 10 * time.Second,
	}
}

// LoadConfig declares every flag spec.md §6 names on a single FlagSet
// (the way the teacher's main.go declares everything on one flagset
// before its one Parse call), parses args once, then layers an optional
// YAML file's values underneath whichever flags were actually passed —
// a flag the caller didn't set must not stomp a YAML-supplied value.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tft-moonraker-bridge", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "c", "", "optional path to a YAML config file")
	fs.StringVar(&configPath, "config", "", "optional path to a YAML config file")
	serialPort := fs.String("p", "", "serial port device path")
	fs.StringVar(serialPort, "serial-port", "", "serial port device path")
	baudRate := fs.Int("b", 0, "serial baud rate")
	fs.IntVar(baudRate, "baud-rate", 0, "serial baud rate")
	wsURL := fs.String("w", "", "Moonraker websocket URL")
	fs.StringVar(wsURL, "websocket-url", "", "Moonraker websocket URL")
	logFile := fs.String("l", "", "log file path (stderr if empty)")
	fs.StringVar(logFile, "log-file", "", "log file path (stderr if empty)")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.BoolVar(verbose, "verbose", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p", "serial-port":
			cfg.SerialPort = *serialPort
		case "b", "baud-rate":
			cfg.BaudRate = *baudRate
		case "w", "websocket-url":
			cfg.WebsocketURL = *wsURL
		case "l", "log-file":
			cfg.LogFile = *logFile
		case "v", "verbose":
			cfg.Verbose = *verbose
		}
	})

	return cfg, nil
}
