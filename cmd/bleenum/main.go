// Command bleenum discovers every nearby BLE peripheral, then connects to
// each one in turn, prints its service and characteristic layout and
// disconnects. Devices that refuse the connection are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gmaggiotti/blescan"
)

const (
	scanDuration   = 5 * time.Second
	connectTimeout = 5 * time.Second
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "warn", "diagnostics level on stderr (debug, info, warn, error)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("invalid log level, using warn")
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nScan interrupted by user")
			os.Exit(0)
		}
		log.Fatal().Err(err).Msg("bulk enumeration failed")
	}
}

func run(ctx context.Context) error {
	adapter, err := blescan.NewAdapter()
	if err != nil {
		return err
	}
	defer adapter.Close()

	fmt.Println("Scanning for BLE devices...")
	set, err := adapter.Collect(ctx, scanDuration)
	if err != nil {
		return err
	}

	if set.Len() == 0 {
		fmt.Println("No BLE devices found")
		return nil
	}

	fmt.Printf("\nFound %d device(s):\n\n", set.Len())

	walker := blescan.NewWalker(adapter,
		blescan.WithConnectTimeout(connectTimeout),
		blescan.WithLogger(log.Logger),
	)

	return walker.IntrospectAll(ctx, set, printDevice)
}

func printDevice(rec blescan.AdvertisementRecord, tree *blescan.ServiceTree, err error) {
	name := rec.LocalName
	if name == "" {
		name = "Unknown"
	}
	fmt.Printf("Device: %s (%s)\n", name, rec.Address.String())

	if err != nil {
		fmt.Printf("  ✗ Skipping (device not available or cannot connect): %v\n\n", err)
		return
	}

	fmt.Println("  ✓ Connected: true")
	fmt.Printf("  Services found: %d\n", len(tree.Services))
	for _, svc := range tree.Services {
		fmt.Printf("    Service: %s\n", svc.UUID)
		for _, char := range svc.Characteristics {
			fmt.Printf("      Characteristic: %s (Properties: [%s])\n", char.UUID, strings.Join(char.Properties, ", "))
		}
	}
	fmt.Printf("  ✓ Disconnected from %s\n\n", rec.Address.String())
}
