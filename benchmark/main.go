// Command benchmark measures Client.Enqueue throughput and latency against
// a live Redis instance under concurrent load.
package main

import (
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relayq/relayq"
)

func main() {
	var (
		addr        = flag.String("redis-addr", "127.0.0.1:6379", "redis address")
		queue       = flag.String("queue", "benchmark", "queue name")
		concurrency = flag.Int("concurrency", 10, "number of concurrent enqueuing goroutines")
		total       = flag.Int("count", 10000, "total number of tasks to enqueue")
	)
	flag.Parse()

	client := relayq.NewClient(relayq.RedisClientOpt{Addr: *addr})
	defer client.Close()

	var (
		enqueued  int64
		failed    int64
		totalWait int64 // nanoseconds, summed via atomic.AddInt64
	)

	perWorker := *total / *concurrency
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := []byte(`{"greeting":"hello"}`)
			for j := 0; j < perWorker; j++ {
				t0 := time.Now()
				_, err := client.Enqueue(relayq.NewTask("bench:noop", payload), relayq.Queue(*queue))
				elapsed := time.Since(t0)
				atomic.AddInt64(&totalWait, int64(elapsed))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&enqueued, 1)
			}
		}()
	}
	wg.Wait()
	wall := time.Since(start)

	fmt.Printf("enqueued %d tasks (%d failed) in %s\n", enqueued, failed, wall)
	fmt.Printf("throughput: %.1f tasks/sec\n", float64(enqueued)/wall.Seconds())
	if enqueued > 0 {
		fmt.Printf("average enqueue latency: %s\n", time.Duration(totalWait/enqueued))
	}
}
