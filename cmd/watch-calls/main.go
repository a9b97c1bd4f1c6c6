package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchandrescuegg/firstaid/internal/pulsar"
)

func main() {
	var (
		pulsarURL    = flag.String("url", "pulsar://localhost:6650", "Pulsar service URL")
		topic        = flag.String("topic", "call-events", "Topic carrying call events")
		subscription = flag.String("subscription", "watch-calls", "Subscription name")
	)
	flag.Parse()

	client, err := pulsar.NewSubscriber(*pulsarURL, *topic, *subscription)
	if err != nil {
		log.Fatalf("Failed to create Pulsar subscriber: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s for call events\n", *topic)

	for {
		event, err := client.ReceiveCallEvent(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Printf("Failed to receive call event: %v", err)
			continue
		}

		jsonBytes, err := json.MarshalIndent(event, "", "  ")
		if err != nil {
			log.Printf("Failed to marshal call event: %v", err)
			continue
		}
		fmt.Println(string(jsonBytes))
	}
}
