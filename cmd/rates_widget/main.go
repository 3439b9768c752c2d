// Command rates_widget polls the rate service and prints the current
// gold and silver prices, the way a storefront widget would consume the
// client store.
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

	"github.com/langowen/metalrates/internal/rate_service/adapter/storage/redis"
	"github.com/langowen/metalrates/pkg/ratestore"
	redisPack "github.com/redis/go-redis/v9"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8082/rates", "rate service endpoint")
	interval := flag.Duration("interval", 5*time.Minute, "auto-refresh interval")
	redisAddr := flag.String("redis", "", "redis address for rate-update announcements (optional)")
	flag.Parse()

	store := ratestore.NewStore(*endpoint, ratestore.WithRefreshInterval(*interval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go store.Run(ctx)

	if *redisAddr != "" {
		listener, err := redis.InitStorage(ctx, &redisPack.Options{Addr: *redisAddr})
		if err != nil {
			log.Fatalln("Failed to initialize Redis listener", "error", err)
		}

		go store.RunOnUpdates(ctx, listener)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	printRates(store)

	for {
		select {
		case <-ticker.C:
			printRates(store)
		case <-done:
			return
		}
	}
}

func printRates(store *ratestore.Store) {
	view := store.State()

	if view.Err != "" {
		fmt.Printf("warning: %s (showing last known rates)\n", view.Err)
	}

	rates := view.Rates
	suffix := ""
	if view.IsFallback {
		suffix = " (fallback)"
	}

	fmt.Printf("[%s] %s gold 24k %.2f | 22k %.2f | 18k %.2f | silver/g %.2f | silver/kg %.2f%s\n",
		rates.Timestamp.Format(time.RFC3339),
		rates.Locality,
		rates.Gold24K,
		rates.Gold22K,
		rates.Gold18K,
		rates.SilverPerGram,
		rates.SilverPerKg,
		suffix,
	)
}
