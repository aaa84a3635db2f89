package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Fires manual sync triggers at a running API and reports how many were
// accepted versus rejected because the job queue was full.
func main() {
	base := flag.String("url", "http://localhost:8080/api/v1", "API base URL")
	total := flag.Int("requests", 500, "number of triggers to send")
	concurrency := flag.Int("concurrency", 20, "concurrent requests")
	flag.Parse()

	fmt.Printf("Starting load test: %d triggers to %s with concurrency %d\n", *total, *base, *concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency) // Semaphore to limit concurrency

	var accepted, queueFull, failed int64
	client := &http.Client{Timeout: 10 * time.Second}
	startTime := time.Now()

	for i := 0; i < *total; i++ {
		wg.Add(1)
		sem <- struct{}{} // Acquire token

		// Alternate pulls of a single past day with pushes.
		url, payload := *base+"/sync/push", []byte(nil)
		if i%2 == 0 {
			day := time.Now().AddDate(0, 0, -(i%30)-1).Format("2006-01-02")
			url = *base + "/sync/pull"
			payload, _ = json.Marshal(map[string]string{"dateFrom": day, "dateTo": day})
		}

		go func() {
			defer wg.Done()
			defer func() { <-sem }() // Release token

			resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				atomic.AddInt64(&failed, 1)
				return
			}
			defer resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusAccepted:
				atomic.AddInt64(&accepted, 1)
			case resp.StatusCode == http.StatusServiceUnavailable:
				atomic.AddInt64(&queueFull, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}()
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", *total)
	fmt.Printf("Accepted:       %d\n", accepted)
	fmt.Printf("Queue full:     %d\n", queueFull)
	fmt.Printf("Failed:         %d\n", failed)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(*total)/duration.Seconds())
}
