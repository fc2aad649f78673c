package fetchers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// blockedIPRanges contains IP ranges that must never be fetched from.
// This prevents SSRF against internal services and cloud metadata.
var blockedIPRanges = []string{
	"127.0.0.0/8",        // Loopback
	"10.0.0.0/8",         // Private class A
	"172.16.0.0/12",      // Private class B
	"192.168.0.0/16",     // Private class C
	"169.254.0.0/16",     // Link-local (includes AWS metadata 169.254.169.254)
	"100.64.0.0/10",      // Carrier-grade NAT
	"0.0.0.0/8",          // "This" network
	"224.0.0.0/4",        // Multicast
	"240.0.0.0/4",        // Reserved
	"255.255.255.255/32", // Broadcast
	"::1/128",            // IPv6 loopback
	"fc00::/7",           // IPv6 unique local
	"fe80::/10",          // IPv6 link-local
}

var blockedCIDRs []*net.IPNet

func init() {
	for _, cidr := range blockedIPRanges {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err == nil {
			blockedCIDRs = append(blockedCIDRs, ipNet)
		}
	}
}

func isIPBlocked(ip net.IP) bool {
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// urlValidationResult pins the IPs resolved at validation time so the
// request dials the same addresses (prevents DNS rebinding).
type urlValidationResult struct {
	parsedURL   *url.URL
	resolvedIPs []net.IP
}

// validateURL checks that a URL is safe to fetch without returning the
// resolved addresses.
func validateURL(rawURL string) error {
	_, err := validateURLWithIPs(rawURL)
	return err
}

func validateURLWithIPs(rawURL string) (*urlValidationResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	hostname := strings.ToLower(parsed.Hostname())
	dangerousHosts := []string{
		"localhost",
		"metadata",
		"metadata.google.internal",
		"metadata.google",
		"169.254.169.254", // AWS/GCP/Azure metadata
	}
	for _, blocked := range dangerousHosts {
		if hostname == blocked {
			return nil, fmt.Errorf("blocked hostname: %s", hostname)
		}
	}

	ips, err := net.LookupIP(parsed.Hostname())
	if err != nil {
		// If DNS fails we cannot validate, so fail closed.
		return nil, fmt.Errorf("DNS lookup failed for %s: %w", parsed.Hostname(), err)
	}

	validIPs := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if isIPBlocked(ip) {
			return nil, fmt.Errorf("blocked IP address: %s resolves to %s", parsed.Hostname(), ip.String())
		}
		validIPs = append(validIPs, ip)
	}

	if len(validIPs) == 0 {
		return nil, fmt.Errorf("no valid IP addresses for %s", parsed.Hostname())
	}

	return &urlValidationResult{
		parsedURL:   parsed,
		resolvedIPs: validIPs,
	}, nil
}

// rootDomain normalizes a hostname to its registrable domain so that
// allowlists match subdomains too (docs.example.co.uk -> example.co.uk).
func rootDomain(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	hostname = strings.TrimSuffix(hostname, ".")

	etld1, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		parts := strings.Split(hostname, ".")
		if len(parts) >= 2 {
			return strings.Join(parts[len(parts)-2:], ".")
		}
		return hostname
	}
	return etld1
}

// URLFetcher downloads document content from public HTTP(S) URLs.
// Every fetch validates the target and pins DNS resolution before
// dialing. Safe for concurrent use.
type URLFetcher struct {
	maxFileSize  int64
	timeout      time.Duration
	allowedRoots map[string]struct{}
}

// NewURLFetcher creates a URL fetcher.
func NewURLFetcher(cfg Config) *URLFetcher {
	cfg = cfg.withDefaults()

	f := &URLFetcher{
		maxFileSize: cfg.MaxFileSize,
		timeout:     cfg.Timeout,
	}
	if len(cfg.AllowedRoots) > 0 {
		f.allowedRoots = make(map[string]struct{}, len(cfg.AllowedRoots))
		for _, root := range cfg.AllowedRoots {
			f.allowedRoots[rootDomain(root)] = struct{}{}
		}
	}
	return f
}

// Fetch downloads a single document from the URL. The response body is
// capped at the configured maximum size.
func (f *URLFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	validated, err := validateURLWithIPs(rawURL)
	if err != nil {
		return nil, fmt.Errorf("URL validation failed: %w", err)
	}

	if f.allowedRoots != nil {
		root := rootDomain(validated.parsedURL.Hostname())
		if _, ok := f.allowedRoots[root]; !ok {
			return nil, fmt.Errorf("domain not allowed: %s", root)
		}
	}

	client := f.newPinnedClient(validated)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.maxFileSize {
		return nil, fmt.Errorf("response exceeds size limit of %d bytes", f.maxFileSize)
	}

	return body, nil
}

// newPinnedClient builds an HTTP client whose dialer only connects to
// the IPs resolved during validation. Redirect targets are re-validated
// with a fresh DNS lookup.
func (f *URLFetcher) newPinnedClient(validated *urlValidationResult) *http.Client {
	pinnedIPs := validated.resolvedIPs
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}

			if host == validated.parsedURL.Hostname() {
				for _, ip := range pinnedIPs {
					if isIPBlocked(ip) {
						return nil, fmt.Errorf("blocked IP: %s", ip.String())
					}
				}
				addr = net.JoinHostPort(pinnedIPs[0].String(), port)
			} else {
				newIPs, err := net.LookupIP(host)
				if err != nil {
					return nil, fmt.Errorf("DNS lookup failed: %w", err)
				}
				for _, ip := range newIPs {
					if isIPBlocked(ip) {
						return nil, fmt.Errorf("redirect to blocked IP: %s", ip.String())
					}
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   f.timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects")
			}
			if err := validateURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
}
