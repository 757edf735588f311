// Package serial implements the frame-delimited byte pipe to the TFT
// (spec.md §4.A). It owns the UART and a writer mutex so replies are
// never interleaved within a single logical write.
package serial

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	goserial "go.bug.st/serial"
)

// Link is a frame-delimited bidirectional byte pipe to the TFT.
type Link struct {
	port goserial.Port
	rd   *bufio.Reader

	writeMu sync.Mutex
	log     *log.Logger
}

// Open opens the UART at the given device path and baud rate.
func Open(device string, baud int, logger *log.Logger) (*Link, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "serial: ", log.LstdFlags)
	}
	port, err := goserial.Open(device, &goserial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s at %d baud: %w", device, baud, err)
	}
	return &Link{port: port, rd: bufio.NewReader(port), log: logger}, nil
}

// ReadLine blocks for one line from the TFT, stripped of its trailing
// newline. A read failure surfaces as io.EOF-wrapped error so callers
// can trigger orderly shutdown (spec.md §4.A).
func (l *Link) ReadLine() (string, error) {
	line, err := l.rd.ReadString('\n')
	if err != nil {
		if line == "" {
			return "", fmt.Errorf("serial read: %w", io.EOF)
		}
		// Partial line followed by a broken pipe: still hand it back, the
		// caller's next read will observe the failure.
		return strings.TrimRight(line, "\r\n"), nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Write sends one logical reply block as a single atomic write, holding
// the writer mutex so no other writer (the Translator or the
// Auto-Report Scheduler) can interleave a partial reply (spec.md §4.A, §5).
func (l *Link) Write(lines ...string) {
	if len(lines) == 0 {
		return
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	payload := strings.Join(lines, "\n") + "\n"
	if _, err := l.port.Write([]byte(payload)); err != nil {
		l.log.Printf("write error: %v", err)
	}
}

// Close releases the underlying UART.
func (l *Link) Close() error {
	return l.port.Close()
}
