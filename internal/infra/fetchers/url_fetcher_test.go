package fetchers

import (
	"net"
	"testing"
)

func TestValidateURL_SSRFPrevention(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		// Blocked schemes
		{
			name:    "ftp scheme blocked",
			url:     "ftp://example.com/doc.pdf",
			wantErr: true,
		},
		{
			name:    "file scheme blocked",
			url:     "file:///etc/passwd",
			wantErr: true,
		},
		{
			name:    "gopher scheme blocked",
			url:     "gopher://example.com/",
			wantErr: true,
		},

		// Loopback addresses (SSRF)
		{
			name:    "localhost blocked",
			url:     "http://localhost/admin",
			wantErr: true,
		},
		{
			name:    "127.0.0.1 blocked",
			url:     "http://127.0.0.1/internal",
			wantErr: true,
		},
		{
			name:    "127.x.x.x blocked",
			url:     "http://127.0.0.2/internal",
			wantErr: true,
		},

		// Private IP ranges (SSRF)
		{
			name:    "10.x.x.x blocked",
			url:     "http://10.0.0.1/internal",
			wantErr: true,
		},
		{
			name:    "172.16.x.x blocked",
			url:     "http://172.16.0.1/internal",
			wantErr: true,
		},
		{
			name:    "192.168.x.x blocked",
			url:     "http://192.168.1.1/admin",
			wantErr: true,
		},

		// Cloud metadata endpoints
		{
			name:    "AWS metadata IP blocked",
			url:     "http://169.254.169.254/latest/meta-data/",
			wantErr: true,
		},
		{
			name:    "GCP metadata hostname blocked",
			url:     "http://metadata.google.internal/computeMetadata/v1/",
			wantErr: true,
		},
		{
			name:    "link-local range blocked",
			url:     "http://169.254.1.1/",
			wantErr: true,
		},

		// Malformed
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "garbage URL",
			url:     "://not-a-url",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsIPBlocked(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.5.5", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"255.255.255.255", true},
		{"::1", true},
		{"fc00::1", true},
		{"fe80::1", true},

		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"93.184.216.34", false},
		{"172.32.0.1", false},
		{"2606:4700:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("invalid test IP: %s", tt.ip)
			}
			if got := isIPBlocked(ip); got != tt.blocked {
				t.Errorf("isIPBlocked(%s) = %v, want %v", tt.ip, got, tt.blocked)
			}
		})
	}
}

func TestRootDomain(t *testing.T) {
	tests := []struct {
		hostname string
		want     string
	}{
		{"example.com", "example.com"},
		{"docs.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"Example.COM.", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			if got := rootDomain(tt.hostname); got != tt.want {
				t.Errorf("rootDomain(%q) = %q, want %q", tt.hostname, got, tt.want)
			}
		})
	}
}

func TestParseGitRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    gitRef
		wantErr bool
	}{
		{
			name: "path only uses default branch",
			ref:  "https://github.com/org/repo.git#docs/guide.md",
			want: gitRef{URL: "https://github.com/org/repo.git", Branch: "main", Path: "docs/guide.md"},
		},
		{
			name: "explicit branch",
			ref:  "https://github.com/org/repo.git#release/v2:README.md",
			want: gitRef{URL: "https://github.com/org/repo.git", Branch: "release/v2", Path: "README.md"},
		},
		{
			name:    "missing fragment",
			ref:     "https://github.com/org/repo.git",
			wantErr: true,
		},
		{
			name:    "empty path",
			ref:     "https://github.com/org/repo.git#",
			wantErr: true,
		},
		{
			name:    "path traversal rejected",
			ref:     "https://github.com/org/repo.git#../../etc/passwd",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGitRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseGitRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseGitRef(%q) = %+v, want %+v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestNewURLFetcher_AllowedRoots(t *testing.T) {
	f := NewURLFetcher(Config{AllowedRoots: []string{"Docs.Example.com", "other.io"}})

	for _, root := range []string{"example.com", "other.io"} {
		if _, ok := f.allowedRoots[root]; !ok {
			t.Errorf("expected %q in allowed roots, got %v", root, f.allowedRoots)
		}
	}

	open := NewURLFetcher(Config{})
	if open.allowedRoots != nil {
		t.Errorf("expected nil allowed roots when unconfigured, got %v", open.allowedRoots)
	}
}
