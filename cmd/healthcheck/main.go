// Command healthcheck probes the relay's HTTP surface for container health
// gating. It targets the same HTTP_ADDR the relay serves on and exits
// non-zero on any failure. HEALTHCHECK_PATH selects the probe: /healthz
// (default, liveness) or /readyz to gate on a live chat connection.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// probeURL builds the probe target from the relay's HTTP_ADDR form
// (":8080" or "host:8080") and the probe path.
func probeURL(addr, path string) string {
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + addr + path
}

func main() {
	path := os.Getenv("HEALTHCHECK_PATH")
	if path == "" {
		path = "/healthz"
	}
	url := probeURL(os.Getenv("HTTP_ADDR"), path)

	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != 200 {
		os.Exit(1)
	}
}
