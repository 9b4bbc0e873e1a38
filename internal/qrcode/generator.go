// Package qrcode renders the PNG codes members scan at the front desk.
package qrcode

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	// ContentType is the media type of generated images.
	ContentType = "image/png"

	defaultSize = 256
	minSize     = 64
	maxSize     = 2048
	checkInPath = "/checkin"
)

var (
	// ErrMissingBaseURL indicates the public base URL was not configured.
	ErrMissingBaseURL = errors.New("qrcode: public base url is required")
	// ErrMissingMemberID indicates an empty member identifier.
	ErrMissingMemberID = errors.New("qrcode: member id is required")
)

// GeneratorConfig configures the public URL printed into codes.
type GeneratorConfig struct {
	BaseURL string
	Size    int
}

// Generator encodes check-in URLs as PNG images.
type Generator struct {
	baseURL *url.URL
	size    int
}

// NewGenerator validates the base URL. Size is clamped to a printable range.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrMissingBaseURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("qrcode: invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("qrcode: base url must be http or https, got %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""

	size := cfg.Size
	switch {
	case size == 0:
		size = defaultSize
	case size < minSize:
		size = minSize
	case size > maxSize:
		size = maxSize
	}
	return &Generator{baseURL: parsed, size: size}, nil
}

// MasterCheckInURL is the shared desk URL that prompts for a member id.
func (g *Generator) MasterCheckInURL() string {
	target := *g.baseURL
	target.Path += checkInPath
	return target.String()
}

// MemberCheckInURL is the personal URL that checks memberID in or out when opened.
func (g *Generator) MemberCheckInURL(memberID string) (string, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return "", ErrMissingMemberID
	}
	target := *g.baseURL
	target.Path += checkInPath + "/" + url.PathEscape(memberID)
	return target.String(), nil
}

// MemberPNG renders the personal code for memberID.
func (g *Generator) MemberPNG(memberID string) ([]byte, error) {
	content, err := g.MemberCheckInURL(memberID)
	if err != nil {
		return nil, err
	}
	return g.encode(content)
}

// MasterPNG renders the shared desk code.
func (g *Generator) MasterPNG() ([]byte, error) {
	return g.encode(g.MasterCheckInURL())
}

func (g *Generator) encode(content string) ([]byte, error) {
	png, err := goqrcode.Encode(content, goqrcode.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: encode %q: %w", content, err)
	}
	return png, nil
}
