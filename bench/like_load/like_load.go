package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// TokenResp is returned by registration and login
type TokenResp struct {
	Token string `json:"token"`
}

type Like struct {
	User string `json:"user"`
}

type Post struct {
	ID    string `json:"_id"`
	Likes []Like `json:"likes"`
}

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var certFile, keyFile string

	flag.StringVar(&server, "server", "http://localhost:5000", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "like_latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.StringVar(&certFile, "cert", "", "client certificate for mTLS (optional)")
	flag.StringVar(&keyFile, "key", "", "client key for mTLS (optional)")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load cert/key: %v", err))
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		}
	}

	// --- Create users for each goroutine ---
	fmt.Printf("Registering %d users...\n", concurrency)
	tokens := make([]string, concurrency)
	run := time.Now().UnixNano()
	for i := 0; i < concurrency; i++ {
		payload := map[string]string{
			"name":     fmt.Sprintf("load-user-%d", i),
			"email":    fmt.Sprintf("load-%d-%d@bench.local", run, i),
			"password": "bench-password",
		}
		var tr TokenResp
		if err := call(client, http.MethodPost, server+"/api/users", "", payload, &tr); err != nil {
			panic(fmt.Sprintf("failed to register user: %v", err))
		}
		tokens[i] = tr.Token
	}

	// The first user owns the post everyone hammers
	var post Post
	if err := call(client, http.MethodPost, server+"/api/post", tokens[0], map[string]string{"text": "like load target"}, &post); err != nil {
		panic(fmt.Sprintf("failed to create post: %v", err))
	}
	fmt.Printf("Users registered, target post %s\n", post.ID)

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests int64
	var successes int64
	var errors4xx int64
	var errors5xx int64

	latencySlices := make([][]float64, concurrency)
	toggles := make([]int, concurrency) // successful toggles per user

	// --- Start concurrent goroutines for load test ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var localLatencies []float64

			// Keep toggling the like until the test duration ends
			for time.Now().Before(stopTime) {
				start := time.Now()
				req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server+"/api/post/like/"+post.ID, nil)
				req.Header.Set("x-auth-token", tokens[idx])

				resp, err := client.Do(req)
				lat := time.Since(start).Seconds() * 1000 // latency in ms
				localLatencies = append(localLatencies, lat)
				atomic.AddInt64(&requests, 1)

				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				// Count success/failure by status code
				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&successes, 1)
					toggles[idx]++
				case resp.StatusCode >= 400 && resp.StatusCode < 500:
					atomic.AddInt64(&errors4xx, 1)
				case resp.StatusCode >= 500:
					atomic.AddInt64(&errors5xx, 1)
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Verify the final like set ---
	expected := 0
	for _, n := range toggles {
		if n%2 == 1 {
			expected++
		}
	}
	var final Post
	if err := call(client, http.MethodGet, server+"/api/post/"+post.ID, tokens[0], nil, &final); err != nil {
		fmt.Printf("Failed to fetch final post: %v\n", err)
	} else {
		seen := map[string]bool{}
		dups := 0
		for _, l := range final.Likes {
			if seen[l.User] {
				dups++
			}
			seen[l.User] = true
		}
		fmt.Printf("Final likes: %d (expected %d, duplicates %d)\n", len(final.Likes), expected, dups)
	}

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	// --- Compute statistics ---
	trimmedMeanVal := trimmedMean(allLatencies, trimPercent)
	p50 := percentile(allLatencies, 50)
	p90 := percentile(allLatencies, 90)
	p99 := percentile(allLatencies, 99)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", trimmedMeanVal, p50, p90, p99)

	// --- Save latencies to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, d := range allLatencies {
		w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// call sends a JSON request and decodes a 2xx JSON response into out.
func call(client *http.Client, method, url, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// trimmedMean calculates mean latency after trimming top/bottom trimPercent values
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	trimmed := data[trim : len(data)-trim]
	if len(trimmed) == 0 {
		return 0
	}
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile calculates the p-th percentile from sorted data
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
