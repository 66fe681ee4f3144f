// Command blescan discovers nearby BLE peripherals.
//
// Without flags it scans for a few seconds and reports every device whose
// signal strength clears the threshold. With -address it locates a single
// device, dumps its advertisement data and attempts a full
// service/characteristic/descriptor enumeration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gmaggiotti/blescan"
)

// The detail lookup scans longer than the default bulk scan so slow
// advertisers are not missed.
const locateDuration = 10 * time.Second

func main() {
	var (
		address  string
		scanTime int
		dbmMax   int
		logLevel string
	)

	flag.StringVar(&address, "address", "", "get detailed information for a specific device address (e.g. AA:BB:CC:DD:EE:FF)")
	flag.StringVar(&address, "a", "", "shorthand for -address")
	flag.IntVar(&scanTime, "scan-time", 5, "time in seconds to scan for devices")
	flag.IntVar(&scanTime, "t", 5, "shorthand for -scan-time")
	flag.IntVar(&dbmMax, "dbm-max", -80, "filter out devices with weak signal strength (strictly greater than wins)")
	flag.IntVar(&dbmMax, "d", -80, "shorthand for -dbm-max")
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

	if err := run(ctx, address, scanTime, dbmMax); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nScan interrupted by user")
			os.Exit(0)
		}
		log.Fatal().Err(err).Msg("scan failed")
	}
}

func run(ctx context.Context, address string, scanTime, dbmMax int) error {
	adapter, err := blescan.NewAdapter()
	if err != nil {
		return err
	}
	defer adapter.Close()

	if address != "" {
		return deviceInfo(ctx, adapter, address)
	}

	return scanAndReport(ctx, adapter, time.Duration(scanTime)*time.Second, dbmMax)
}

func scanAndReport(ctx context.Context, adapter *blescan.Adapter, duration time.Duration, dbmMax int) error {
	fmt.Printf("Starting BLE scan for %d seconds...\n", int(duration.Seconds()))

	set, err := adapter.Collect(ctx, duration)
	if err != nil {
		return err
	}

	blescan.RenderSummaries(os.Stdout, set, dbmMax)
	return nil
}

func deviceInfo(ctx context.Context, adapter *blescan.Adapter, address string) error {
	fmt.Printf("Getting detailed information for device: %s\n", address)
	fmt.Println("Scanning for device...")

	rec, err := adapter.Locate(ctx, address, locateDuration)
	if errors.Is(err, blescan.ErrNotFound) {
		fmt.Printf("Device with address %s not found during scan.\n", address)
		return nil
	}
	if err != nil {
		return err
	}

	blescan.RenderAdvertisement(os.Stdout, rec)

	fmt.Println("\n=== ATTEMPTING CONNECTION ===")
	walker := blescan.NewWalker(adapter, blescan.WithLogger(log.Logger))
	tree, err := walker.Introspect(ctx, rec.Address.String())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var connErr *blescan.ConnectError
		var enumErr *blescan.EnumerationError
		if errors.As(err, &connErr) || errors.As(err, &enumErr) {
			fmt.Printf("✗ Connection failed: %v\n", err)
			fmt.Println("  This is normal for many BLE devices that don't accept connections")
			return nil
		}
		return err
	}

	fmt.Println("✓ Successfully connected!")
	fmt.Println("\n=== SERVICES AND CHARACTERISTICS ===")
	blescan.RenderServiceTree(os.Stdout, tree)
	return nil
}
