// skylinkcat - MAVLink serial telemetry dump
//
// Opens a serial link to a vehicle, loads a dialect, and prints every
// decoded message as it arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asgard/skylink/pkg/mavlink"
)

var (
	port       = flag.String("port", "", "serial port (e.g. /dev/ttyUSB0); omitted lists available ports")
	baud       = flag.Int("baud", 57600, "serial baud rate")
	dialectDir = flag.String("dialects", "dialects", "directory of MAVLink dialect XML files")
	version    = flag.String("version", "v1", "outgoing wire version: v1 or v2")
	sysID      = flag.Uint("sysid", 255, "our system id")
	compID     = flag.Uint("compid", 0, "our component id")
	only       = flag.String("only", "", "comma-separated message names to print (default: all)")
	logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	logOutput  = flag.String("log-output", "stdout", "log output: stdout or a file path")
)

func main() {
	flag.Parse()
	printBanner()

	if *port == "" {
		ports, err := mavlink.ListSerialPorts()
		if err != nil {
			log.Fatalf("list serial ports: %v", err)
		}
		fmt.Println("available ports:")
		for _, p := range ports {
			fmt.Println("  " + p)
		}
		return
	}

	schema, err := mavlink.LoadDir(*dialectDir)
	if err != nil {
		log.Fatalf("load dialects from %s: %v", *dialectDir, err)
	}
	log.Printf("loaded %d messages, %d enums from %s", len(schema.Messages), len(schema.Enums), *dialectDir)

	transport, err := mavlink.OpenSerial(*port, *baud)
	if err != nil {
		log.Fatalf("open %s: %v", *port, err)
	}

	wireVersion := mavlink.V1
	if *version == "v2" {
		wireVersion = mavlink.V2
	}

	wanted := parseOnly(*only)

	conn := mavlink.NewConnection(schema, transport, mavlink.Config{
		SystemID:    uint8(*sysID),
		ComponentID: uint8(*compID),
		Version:     wireVersion,
		WaitTimeout: 10 * time.Second,
		LogLevel:    *logLevel,
		LogOutput:   *logOutput,
		OnPacket:    printer(wanted),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run() }()

	select {
	case <-sigCh:
		log.Println("shutdown signal received, closing link")
	case err := <-runErr:
		log.Printf("link closed: %v", err)
	case <-ctx.Done():
	}

	if err := conn.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}

func printer(wanted map[string]bool) func(*mavlink.Packet) {
	return func(pkt *mavlink.Packet) {
		if len(wanted) > 0 && !wanted[pkt.Message.Name] {
			return
		}
		fmt.Printf("%-24s %v\n", pkt.Message.Name, pkt.Content)
	}
}

func parseOnly(csv string) map[string]bool {
	if csv == "" {
		return nil
	}
	out := make(map[string]bool)
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out[csv[start:i]] = true
			}
			start = i + 1
		}
	}
	return out
}

func printBanner() {
	fmt.Println(`
 _     _          _ _       _             _
| |   | |        | (_)     | |           | |
| |___| | _  _  _| |_ _ __ | | _____ __ _| |_
|  __/| |/ / |/ / | | '_ \| |/ / __/ _' | __|
| |___|   <|   <| | | | | |   < (_| (_| | |_
|______|\_\|_|\_\_|_|_| |_|_|\_\___\__,_|\__|

MAVLink serial telemetry dump`)
}
