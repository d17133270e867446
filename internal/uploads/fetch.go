package uploads

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Source is image bytes obtained from a URL.
type Source struct {
	Data        []byte
	ContentType string
}

// Resolve reads an image from a base64 data URI or an http(s) URL.
func (s *Store) Resolve(ctx context.Context, rawURL string) (Source, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURI(rawURL)
	}
	return s.fetchHTTP(ctx, rawURL)
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) (Source, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return Source{}, fmt.Errorf("uploads: invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return Source{}, fmt.Errorf("uploads: only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return Source{}, fmt.Errorf("uploads: invalid base64 data: %w", err)
		}
	}
	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return Source{Data: data, ContentType: mime}, nil
}

// fetchHTTP downloads an image with security checks.
func (s *Store) fetchHTTP(ctx context.Context, rawURL string) (Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, fmt.Errorf("uploads: invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Source{}, fmt.Errorf("uploads: unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return Source{}, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Source{}, fmt.Errorf("uploads: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("uploads: download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Source{}, fmt.Errorf("uploads: download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return Source{}, fmt.Errorf("uploads: read body failed: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return Source{}, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxBytes)
	}
	return Source{Data: data, ContentType: strings.Split(resp.Header.Get("Content-Type"), ";")[0]}, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("uploads: blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("uploads: blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("uploads: blocked host: cloud metadata address %s", host)
	}
	return nil
}
