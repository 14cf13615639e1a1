package util

import (
	"net/http"
	"time"
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// HTTPClient returns the shared client for outbound requests
func HTTPClient() *http.Client {
	return httpClient
}
