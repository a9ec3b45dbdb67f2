// Command legacy_parity replays read endpoints against the new API and the
// legacy MyIS API side by side and reports response differences. It is meant
// for parallel-run verification before legacy traffic is switched over.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type endpoint struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type plan struct {
	Endpoints []endpoint `json:"endpoints"`
	// IgnoreFields are JSON keys masked before comparison. Identifiers and
	// timestamps never match across the two systems.
	IgnoreFields []string `json:"ignoreFields"`
}

type result struct {
	Endpoint     endpoint
	NewStatus    int
	LegacyStatus int
	StatusMatch  bool
	BodyMatch    bool
	Err          error
	NewTook      time.Duration
	LegacyTook   time.Duration
}

func main() {
	var (
		newBase     string
		legacyBase  string
		newToken    string
		legacyToken string
		planPath    string
		timeout     time.Duration
	)

	flag.StringVar(&newBase, "new-base", "http://localhost:8080", "new API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:5000", "legacy MyIS API base URL")
	flag.StringVar(&newToken, "new-token", "", "bearer token for the new API")
	flag.StringVar(&legacyToken, "legacy-token", "", "bearer token for the legacy API")
	flag.StringVar(&planPath, "plan", filepath.Join("scripts", "legacy_parity", "plan.json"), "path to the comparison plan")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	p, err := loadPlan(planPath)
	if err != nil {
		log.Fatalf("failed to load plan: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var results []result
	var critical, minor int

	for _, ep := range p.Endpoints {
		res := compare(client, newBase, legacyBase, newToken, legacyToken, ep, p.IgnoreFields)
		if res.Err != nil || !res.StatusMatch || !res.BodyMatch {
			if ep.Critical {
				critical++
			} else {
				minor++
			}
		}
		results = append(results, res)
	}

	report(results)
	fmt.Printf("Critical diffs: %d, minor diffs: %d\n", critical, minor)
	if critical > 0 {
		os.Exit(1)
	}
}

func loadPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if len(p.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints defined in %s", path)
	}
	return &p, nil
}

func compare(client *http.Client, newBase, legacyBase, newToken, legacyToken string, ep endpoint, ignore []string) result {
	res := result{Endpoint: ep}

	newBody, newStatus, newTook, err := fetch(client, newBase, newToken, ep)
	if err != nil {
		res.Err = fmt.Errorf("new api: %w", err)
		return res
	}
	legacyBody, legacyStatus, legacyTook, err := fetch(client, legacyBase, legacyToken, ep)
	if err != nil {
		res.Err = fmt.Errorf("legacy api: %w", err)
		return res
	}

	res.NewStatus = newStatus
	res.LegacyStatus = legacyStatus
	res.NewTook = newTook
	res.LegacyTook = legacyTook
	res.StatusMatch = newStatus == legacyStatus
	res.BodyMatch = bodiesEqual(newBody, legacyBody, ignore)
	return res
}

func fetch(client *http.Client, base, token string, ep endpoint) ([]byte, int, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(ep.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := ep.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, err
	}
	return body, resp.StatusCode, time.Since(start), nil
}

func bodiesEqual(a, b []byte, ignore []string) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	masked := make(map[string]struct{}, len(ignore))
	for _, field := range ignore {
		masked[field] = struct{}{}
	}
	normalize(&aj, masked)
	normalize(&bj, masked)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}, masked map[string]struct{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			if _, skip := masked[k]; skip {
				val[k] = nil
				continue
			}
			normalize(&v2, masked)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2, masked)
			val[i] = v2
		}
	case float64:
		// Legacy serializes integers without a fraction, the new API may
		// not. Collapse whole floats so the two compare equal.
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func report(results []result) {
	fmt.Println("Legacy Parity Report")
	fmt.Println("====================")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Endpoint.Method, res.Endpoint.Path)
		if res.Err != nil {
			fmt.Printf("  error: %v\n", res.Err)
			continue
		}
		fmt.Printf("  new: %d (%s) | legacy: %d (%s)\n", res.NewStatus, res.NewTook, res.LegacyStatus, res.LegacyTook)
		fmt.Printf("  status match: %t | body match: %t | critical: %t\n", res.StatusMatch, res.BodyMatch, res.Endpoint.Critical)
	}
}
