package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Charged
	success200    uint64 // Bypass / idempotent replays
	fail402       uint64 // Insufficient balance
	fail409       uint64 // Idempotency conflicts
	failOther     uint64
)

var operations = []string{
	"script_generation", "image_generation", "video_generation",
	"thumbnail_generation", "title_analysis",
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 100, "Number of accounts to create and hammer")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	ids, err := createAccounts(accounts)
	if err != nil {
		log.Fatalf("Account setup failed: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, ids)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func createAccounts(n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		body, _ := json.Marshal(map[string]interface{}{
			"display_name":    fmt.Sprintf("bench-%04d", i),
			"initial_balance": 10000,
		})
		resp, err := http.Post(targetURL+"/api/v1/accounts", "application/json", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		var out struct {
			AccountID string `json:"account_id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil || out.AccountID == "" {
			return nil, fmt.Errorf("account creation returned status %d", resp.StatusCode)
		}
		ids = append(ids, out.AccountID)
	}
	return ids, nil
}

// pickAccount selects uniformly, or concentrates 90% of traffic on one hot
// account to stress the row lock.
func pickAccount(ids []string) string {
	if workload == "hotspot" && rand.Float64() < 0.9 {
		return ids[0]
	}
	return ids[rand.Intn(len(ids))]
}

func worker(wg *sync.WaitGroup, start time.Time, ids []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		payload, _ := json.Marshal(map[string]interface{}{
			"account_id": pickAccount(ids),
			"operation":  operations[rand.Intn(len(operations))],
		})

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/credits/deduct", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", fmt.Sprintf("bench-%d-%d", time.Now().UnixNano(), rand.Int63()))

		resp, err := client.Do(req)
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusPaymentRequired:
			atomic.AddUint64(&fail402, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Duration:         %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Throughput:       %.1f req/s\n", float64(total)/elapsed.Seconds())
	fmt.Printf("Charged (201):    %d\n", atomic.LoadUint64(&success201))
	fmt.Printf("Replay/Bypass:    %d\n", atomic.LoadUint64(&success200))
	fmt.Printf("Insufficient:     %d\n", atomic.LoadUint64(&fail402))
	fmt.Printf("Conflicts (409):  %d\n", atomic.LoadUint64(&fail409))
	fmt.Printf("Other Failures:   %d\n", atomic.LoadUint64(&failOther))

	if atomic.LoadUint64(&failOther) > 0 {
		os.Exit(1)
	}
}
