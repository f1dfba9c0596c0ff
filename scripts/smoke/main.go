// Command smoke exercises a running API instance end to end. Read checks run
// always; passing -room additionally generates a draft run, inspects its
// slots, and deletes it again. Exit code 1 signals at least one failure.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type check struct {
	Name     string
	Status   int
	Duration time.Duration
	Error    error
}

func main() {
	var (
		base    string
		prefix  string
		roomID  string
		timeout time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&roomID, "room", "", "room id for the write path (generate, inspect, delete)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	base = strings.TrimRight(base, "/")

	var results []check
	results = append(results, get(client, "health", base+"/health"))
	results = append(results, get(client, "ready", base+"/ready"))
	results = append(results, get(client, "metrics", base+"/metrics"))

	if roomID != "" {
		results = append(results, writePath(client, base+prefix, roomID)...)
	}

	failed := printReport(results)
	if failed > 0 {
		os.Exit(1)
	}
}

func writePath(client *http.Client, api, roomID string) []check {
	var results []check

	weekStart := nextMonday()
	payload, _ := json.Marshal(map[string]interface{}{
		"roomId":    roomID,
		"weekStart": weekStart.Format(time.RFC3339),
	})

	generated := request(client, "generate draft run", http.MethodPost, api+"/schedules/runs", payload)
	results = append(results, generated.check)
	if generated.check.Error != nil || generated.check.Status != http.StatusCreated {
		return results
	}

	var run struct {
		Data struct {
			RunID string `json:"runId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(generated.body, &run); err != nil || run.Data.RunID == "" {
		results = append(results, check{Name: "decode run id", Error: fmt.Errorf("unusable generate response: %v", err)})
		return results
	}

	results = append(results, get(client, "list runs", api+"/schedules/runs?roomId="+roomID))
	results = append(results, get(client, "run slots", api+"/schedules/runs/"+run.Data.RunID+"/slots"))
	results = append(results, request(client, "delete draft run", http.MethodDelete, api+"/schedules/runs/"+run.Data.RunID, nil).check)

	return results
}

type response struct {
	check check
	body  []byte
}

func get(client *http.Client, name, url string) check {
	return request(client, name, http.MethodGet, url, nil).check
}

func request(client *http.Client, name, method, url string, payload []byte) response {
	out := response{check: check{Name: name}}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		out.check.Error = err
		return out
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	out.check.Duration = time.Since(start)
	if err != nil {
		out.check.Error = err
		return out
	}
	defer resp.Body.Close()

	out.check.Status = resp.StatusCode
	out.body, err = io.ReadAll(resp.Body)
	if err != nil {
		out.check.Error = err
		return out
	}
	if resp.StatusCode >= http.StatusBadRequest {
		out.check.Error = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(out.body)))
	}
	return out
}

func nextMonday() time.Time {
	d := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func printReport(results []check) int {
	fmt.Println("Smoke Report")
	fmt.Println("============")
	failed := 0
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "FAIL"
			failed++
		}
		fmt.Printf("[%s] %s\n", status, res.Name)
		fmt.Printf("  Status: %d (%s)\n", res.Status, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
	fmt.Printf("Checks: %d, Failed: %d\n", len(results), failed)
	return failed
}
