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
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// TokenResp is the server's response to registration.
type TokenResp struct {
	Token string `json:"token"`
}

type User struct {
	ID    string `json:"_id"`
	Token string `json:"-"`
}

type Post struct {
	ID       string `json:"_id"`
	AuthorID string `json:"user"`
}

type Activity struct {
	Kind    string `json:"kind"`
	ActorID string `json:"actor"`
	PostID  string `json:"post"`
}

// Measures how long a like takes to show up in the post owner's activity
// list: HTTP -> Kafka -> worker -> store -> HTTP.
func main() {
	var serverAddr string
	var U, L, concurrency int
	var pollTimeout int
	var certFile, keyFile string

	flag.StringVar(&serverAddr, "server", "http://localhost:5000", "server base URL")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&L, "likes", 200, "number of likes to send")
	flag.IntVar(&concurrency, "c", 20, "concurrency for liking")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for activity delivery")
	flag.StringVar(&certFile, "cert", "", "client certificate for mTLS (optional)")
	flag.StringVar(&keyFile, "key", "", "client key for mTLS (optional)")
	flag.Parse()

	ctx := context.Background()

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

	// --- 1) Register users and resolve their ids ---
	fmt.Printf("Registering %d users...\n", U)
	users := make([]User, 0, U)
	run := time.Now().UnixNano()
	for i := 0; i < U; i++ {
		payload := map[string]string{
			"name":     fmt.Sprintf("user-%d", i),
			"email":    fmt.Sprintf("e2e-%d-%d@bench.local", run, i),
			"password": "bench-password",
		}
		var tr TokenResp
		if err := call(ctx, client, http.MethodPost, serverAddr+"/api/users", "", payload, &tr); err != nil {
			fmt.Printf("register error: %v\n", err)
			os.Exit(1)
		}
		var u User
		if err := call(ctx, client, http.MethodGet, serverAddr+"/api/auth", tr.Token, nil, &u); err != nil {
			fmt.Printf("current user error: %v\n", err)
			os.Exit(1)
		}
		u.Token = tr.Token
		users = append(users, u)
	}
	tokenByID := make(map[string]string, len(users))
	for _, u := range users {
		tokenByID[u.ID] = u.Token
	}

	// --- 2) Every user publishes one post ---
	fmt.Println("Creating one post per user...")
	posts := make([]Post, 0, U)
	for _, u := range users {
		var p Post
		if err := call(ctx, client, http.MethodPost, serverAddr+"/api/post", u.Token, map[string]string{"text": "e2e target"}, &p); err != nil {
			fmt.Printf("post error: %v\n", err)
			os.Exit(1)
		}
		posts = append(posts, p)
	}

	// --- 3) Like random posts of other users concurrently ---
	fmt.Printf("Sending %d likes with concurrency %d...\n", L, concurrency)
	type likeRecord struct {
		PostID  string
		OwnerID string
		ActorID string
		Sent    time.Time
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	liked := make(map[[2]string]bool) // (actor, post) pairs already liked
	likesCh := make(chan likeRecord, L)

	for i := 0; i < L; i++ {
		actor := users[rand.Intn(len(users))]
		post := posts[rand.Intn(len(posts))]
		key := [2]string{actor.ID, post.ID}
		// A second toggle would unlike, so each pair is sent once
		if post.AuthorID == actor.ID || liked[key] {
			continue
		}
		liked[key] = true

		wg.Add(1)
		sem <- struct{}{}
		go func(actor User, post Post) {
			defer wg.Done()
			defer func() { <-sem }()

			sent := time.Now()
			var likes []map[string]string
			if err := call(ctx, client, http.MethodGet, serverAddr+"/api/post/like/"+post.ID, actor.Token, nil, &likes); err != nil {
				fmt.Printf("like error: %v\n", err)
				return
			}
			likesCh <- likeRecord{PostID: post.ID, OwnerID: post.AuthorID, ActorID: actor.ID, Sent: sent}
		}(actor, post)
	}

	wg.Wait()
	close(likesCh)

	// --- 4) Poll owners' activity until each like shows up ---
	fmt.Println("Checking activity delivery...")
	var latencies []float64
	var latMu sync.Mutex
	var failCount int64
	var checksWg sync.WaitGroup

	for lr := range likesCh {
		checksWg.Add(1)
		go func(lr likeRecord) {
			defer checksWg.Done()
			deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
			token := tokenByID[lr.OwnerID]

			for time.Now().Before(deadline) {
				var items []Activity
				if err := call(ctx, client, http.MethodGet, serverAddr+"/api/activity?limit=100", token, nil, &items); err != nil {
					time.Sleep(200 * time.Millisecond)
					continue
				}
				for _, a := range items {
					if a.Kind == "post_liked" && a.PostID == lr.PostID && a.ActorID == lr.ActorID {
						lat := time.Since(lr.Sent).Seconds() * 1000
						latMu.Lock()
						latencies = append(latencies, lat)
						latMu.Unlock()
						return
					}
				}
				time.Sleep(200 * time.Millisecond)
			}

			latMu.Lock()
			failCount++
			latMu.Unlock()
		}(lr)
	}

	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
		return
	}

	trimPercent := 1.0
	meanVal := trimmedMean(latencies, trimPercent)
	p50 := trimmedPercentile(latencies, 50, trimPercent)
	p90 := trimmedPercentile(latencies, 90, trimPercent)
	p99 := trimmedPercentile(latencies, 99, trimPercent)
	fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
		len(latencies), meanVal, p50, p90, p99, failCount)

	f, err := os.Create("activity_latencies.csv")
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	w := csv.NewWriter(f)
	w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	w.Flush()
	f.Close()
	fmt.Println("Saved activity_latencies.csv")
}

// call sends a JSON request and decodes a 2xx JSON response into out.
func call(ctx context.Context, client *http.Client, method, url, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
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

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	data = trimmed(data, trimPercent)
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	return percentile(trimmed(data, trimPercent), p)
}

func trimmed(data []float64, trimPercent float64) []float64 {
	if len(data) == 0 {
		return data
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	return data[trim : len(data)-trim]
}

// percentile calculates the requested percentile using linear interpolation.
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
