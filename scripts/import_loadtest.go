//go:build ignore
// +build ignore

// Load test for the batch import API. Generates a synthetic CSV, then drives
// it through upload, mapping, validation and commit against a running
// server and reports the time spent in each step.
//
//	API_URL=http://localhost:8080 ROWS=50000 go run scripts/import_loadtest.go
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

var (
	apiURL   = getEnvOrDefault("API_URL", "http://localhost:8080")
	rows     = getEnvIntOrDefault("ROWS", 10000)
	dupEvery = getEnvIntOrDefault("DUPLICATE_EVERY", 100)
	policy   = getEnvOrDefault("POLICY", "UPDATE_EXISTING")
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		fmt.Sscanf(val, "%d", &i)
		if i > 0 {
			return i
		}
	}
	return defaultVal
}

// generateCSV writes rows synthetic contacts. Every dupEvery-th row reuses
// the previous email so the run exercises in-file duplicates.
func generateCSV(n int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	w.Write([]string{"Email", "First Name", "Last Name", "Phone", "Company", "Roles"})

	prev := ""
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load-%s@example.com", uuid.NewString()[:8])
		if dupEvery > 0 && i > 0 && i%dupEvery == 0 {
			email = prev
		}
		prev = email
		w.Write([]string{
			email,
			fmt.Sprintf("first%d", i),
			fmt.Sprintf("LAST%d", i),
			fmt.Sprintf("+1 650 253 %04d", i%10000),
			fmt.Sprintf("Company %d", i%500),
			"buyer,champion",
		})
	}
	w.Flush()
	return buf.Bytes()
}

func call(method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, apiURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, data)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func timed(step string, fn func() error) {
	start := time.Now()
	if err := fn(); err != nil {
		log.Fatalf("%s failed: %v", step, err)
	}
	log.Printf("  %-10s %v", step, time.Since(start).Round(time.Millisecond))
}

func main() {
	log.Printf("Import load test: %d rows against %s", rows, apiURL)
	content := generateCSV(rows)
	log.Printf("  generated %d bytes", len(content))

	var created struct {
		BatchID string `json:"batch_id"`
	}
	timed("upload", func() error {
		return call(http.MethodPost, "/api/import/batches", map[string]any{
			"content":  string(content),
			"filename": "loadtest.csv",
		}, &created)
	})
	base := "/api/import/batches/" + created.BatchID

	timed("mapping", func() error {
		return call(http.MethodPut, base+"/mapping", map[string]any{
			"mapping": []map[string]any{
				{"column": "Email", "target": "email", "is_primary": true},
				{"column": "First Name", "target": "first_name"},
				{"column": "Last Name", "target": "last_name"},
				{"column": "Phone", "target": "phone", "is_primary": true},
				{"column": "Company", "target": "company"},
				{"column": "Roles", "target": "roles", "separator": ","},
			},
			"config": map[string]any{"policy": policy},
		}, nil)
	})

	var report struct {
		Totals map[string]int `json:"totals"`
	}
	timed("validate", func() error { return call(http.MethodPost, base+"/validate", nil, &report) })
	log.Printf("  preview: %v", report.Totals)

	var outcome map[string]any
	timed("commit", func() error { return call(http.MethodPost, base+"/commit", nil, &outcome) })
	log.Printf("  outcome: created=%v updated=%v skipped=%v errors=%v",
		outcome["created"], outcome["updated"], outcome["skipped"], outcome["errors"])
}
