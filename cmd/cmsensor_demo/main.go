// Command-line demo: connect to an OWL meter, show the history the device
// replays on connect, then print live readings until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/collector"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial device path")
	model := flag.String("model", "CM160", "device model")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sensor, err := collector.GetAsyncDataCollector(*model, *port)
	if err != nil {
		log.Fatal(err)
	}
	defer sensor.Close()

	if err := sensor.Connect(ctx); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}

	fmt.Printf("Connected to %s on %s, reading...\n", *model, *port)

	historyShown := false
	for {
		m, err := sensor.ReadData(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("\nStopped by user")
				return
			}
			log.Fatalf("Read failed: %v", err)
		}

		if sensor.HistoryComplete() && !historyShown {
			historyShown = true
			if history := sensor.HistoricalData(); len(history) > 0 {
				fmt.Printf("Device replayed %d history records, last: %s %.1fA\n",
					len(history),
					history[len(history)-1].Timestamp.Format(time.RFC3339),
					history[len(history)-1].Current)
			}
		}

		fmt.Printf("%s  %.1f A\n", time.Now().Format(time.RFC3339), m.Current)

		select {
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
			fmt.Println("\nStopped by user")
			return
		}
	}
}
