// Replay tool for exercising SmartWallet with recorded transactions.
//
// Usage:
//   go run ./cmd/replay -csv /path/to/transactions.csv -url http://localhost:3000
//
// This tool:
//   1. Reads transactions from a CSV file (optionally labelled with the expected card)
//   2. Sends each transaction to POST /api/recommendation
//   3. Compares the recommended card with the expected card when present
//   4. Reports match rate, top-card distribution, cache hits and latency
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Transaction is one CSV row.
type Transaction struct {
	Amount         float64
	Category       string
	Merchant       string
	MerchantApp    string
	Location       string
	Platform       string
	GPSUnavailable bool
	UsingOtherApp  bool
	ExpectedCard   string
}

// RecommendRequest is the SmartWallet API request format.
type RecommendRequest struct {
	Amount         float64 `json:"amount"`
	Category       string  `json:"category"`
	Merchant       string  `json:"merchant,omitempty"`
	MerchantApp    string  `json:"merchantApp,omitempty"`
	Location       string  `json:"location,omitempty"`
	GPSUnavailable bool    `json:"gpsUnavailable,omitempty"`
	UsingOtherApp  bool    `json:"usingOtherApp,omitempty"`
	Platform       string  `json:"platform,omitempty"`
}

// RecommendResponse is the subset of the API response the replay reads.
type RecommendResponse struct {
	ID             string `json:"recommendationId"`
	Cached         bool   `json:"cached"`
	Recommendation struct {
		TopChoice *struct {
			Card struct {
				ID string `json:"id"`
			} `json:"card"`
			Score float64 `json:"score"`
		} `json:"topChoice"`
		Warnings []string `json:"warnings"`
	} `json:"recommendation"`
}

// TopCardID returns the recommended card id, or "" when there is none.
func (r *RecommendResponse) TopCardID() string {
	if r.Recommendation.TopChoice == nil {
		return ""
	}
	return r.Recommendation.TopChoice.Card.ID
}

// Metrics tracks replay results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalCached    int64
	TotalWarnings  int64

	Labelled   int64
	Matches    int64
	Mismatches int64

	ProcessingTimeMs int64

	mu       sync.Mutex
	topCards map[string]int
}

func (m *Metrics) recordTopCard(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topCards == nil {
		m.topCards = make(map[string]int)
	}
	if id == "" {
		id = "(none)"
	}
	m.topCards[id]++
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to transactions CSV file")
	baseURL := flag.String("url", "http://localhost:3000", "SmartWallet base URL")
	limit := flag.Int("limit", 0, "Maximum transactions to replay (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/transactions.csv [-url http://localhost:3000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("SMARTWALLET REPLAY")
	fmt.Printf("\nCSV File:       %s\n", *csvPath)
	fmt.Printf("SmartWallet:    %s\n", *baseURL)
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Limit:          %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: SmartWallet not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure SmartWallet is running:")
		fmt.Println("  go run ./cmd/smartwallet")
		os.Exit(1)
	}
	fmt.Println("SmartWallet is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readTransactions(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions\n", len(transactions))

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runReplay(transactions, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readTransactions parses a CSV with a header row. amount and category are
// required columns; the rest are optional.
func readTransactions(r io.Reader, limit int) ([]Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"amount", "category"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var transactions []Transaction
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(field(record, "amount"), 64)
		if err != nil {
			continue
		}
		gpsUnavailable, _ := strconv.ParseBool(field(record, "gps_unavailable"))
		usingOtherApp, _ := strconv.ParseBool(field(record, "using_other_app"))

		transactions = append(transactions, Transaction{
			Amount:         amount,
			Category:       field(record, "category"),
			Merchant:       field(record, "merchant"),
			MerchantApp:    field(record, "merchant_app"),
			Location:       field(record, "location"),
			Platform:       field(record, "platform"),
			GPSUnavailable: gpsUnavailable,
			UsingOtherApp:  usingOtherApp,
			ExpectedCard:   field(record, "expected_card"),
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runReplay(transactions []Transaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	work := make(chan Transaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := recommend(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %.2f %s -> %v\n", tx.Amount, tx.Category, err)
					}
					continue
				}

				top := result.TopCardID()
				metrics.recordTopCard(top)
				if result.Cached {
					atomic.AddInt64(&metrics.TotalCached, 1)
				}
				if len(result.Recommendation.Warnings) > 0 {
					atomic.AddInt64(&metrics.TotalWarnings, 1)
				}

				status := " "
				if tx.ExpectedCard != "" {
					atomic.AddInt64(&metrics.Labelled, 1)
					if top == tx.ExpectedCard {
						atomic.AddInt64(&metrics.Matches, 1)
						status = "ok"
					} else {
						atomic.AddInt64(&metrics.Mismatches, 1)
						status = "x"
					}
				}

				if verbose {
					fmt.Printf("%-2s | Amount: $%10.2f | Category: %-10s | App: %-16s | Top: %-24s | Expected: %s\n",
						status,
						tx.Amount,
						tx.Category,
						tx.MerchantApp,
						top,
						tx.ExpectedCard,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func recommend(client *http.Client, baseURL string, tx Transaction) (*RecommendResponse, error) {
	req := RecommendRequest{
		Amount:         tx.Amount,
		Category:       tx.Category,
		Merchant:       tx.Merchant,
		MerchantApp:    tx.MerchantApp,
		Location:       tx.Location,
		GPSUnavailable: tx.GPSUnavailable,
		UsingOtherApp:  tx.UsingOtherApp,
		Platform:       tx.Platform,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/recommendation", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result RecommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nREPLAY RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Cached:           %d\n", m.TotalCached)
	fmt.Printf("   With Warnings:    %d\n", m.TotalWarnings)

	fmt.Printf("\nTOP CARDS\n")
	for _, entry := range m.distribution() {
		fmt.Printf("   %-28s %d\n", entry.card, entry.count)
	}

	if m.Labelled > 0 {
		fmt.Printf("\nEXPECTATIONS\n")
		fmt.Printf("   Labelled:   %d\n", m.Labelled)
		fmt.Printf("   Matches:    %d\n", m.Matches)
		fmt.Printf("   Mismatches: %d\n", m.Mismatches)
		fmt.Printf("   Match Rate: %.2f%%\n", m.MatchRate()*100)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}

// MatchRate is the share of labelled transactions whose top card matched.
func (m *Metrics) MatchRate() float64 {
	if m.Labelled == 0 {
		return 0
	}
	return float64(m.Matches) / float64(m.Labelled)
}

type cardCount struct {
	card  string
	count int
}

// distribution returns top cards ordered by count, then id.
func (m *Metrics) distribution() []cardCount {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]cardCount, 0, len(m.topCards))
	for card, count := range m.topCards {
		out = append(out, cardCount{card: card, count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].card < out[j].card
	})
	return out
}
