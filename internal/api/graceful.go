package api

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// NewHTTPServer creates a configured HTTP server
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Exports call the CRM once per lead; a large batch needs headroom.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

// NewHTTPSServerWithConfig creates an HTTPS server serving certFile/keyFile
// with the given minimum TLS version ("1.2" or "1.3", default 1.3).
func NewHTTPSServerWithConfig(addr string, certFile, keyFile, minVersion string, handler http.Handler) (*http.Server, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if minVersion == "1.2" {
		tlsConfig.MinVersion = tls.VersionTLS12
	}

	srv := NewHTTPServer(addr, handler)
	srv.TLSConfig = tlsConfig
	return srv, nil
}

// SetupSignalHandler sets up OS signal handling for SIGINT and SIGTERM
func SetupSignalHandler() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

// WaitForSignal waits for termination signals and returns the received signal
func WaitForSignal(ch chan os.Signal) os.Signal {
	return <-ch
}
