package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint is one candidate base address.
type Endpoint struct {
	Base  string `yaml:"base" json:"base"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Name returns the label, or the base address when unlabeled.
func (e Endpoint) Name() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Base
}

func (e Endpoint) validate() error {
	u, err := url.Parse(e.Base)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", e.Base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q: scheme must be http or https", e.Base)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q: missing host", e.Base)
	}
	return nil
}

// ParseEndpoints parses "base" or "label=base" entries, skipping blanks.
func ParseEndpoints(specs []string) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(specs))
	for _, raw := range specs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var ep Endpoint
		if label, base, ok := strings.Cut(raw, "="); ok && !strings.Contains(label, "://") {
			ep = Endpoint{Base: strings.TrimSpace(base), Label: strings.TrimSpace(label)}
		} else {
			ep = Endpoint{Base: raw}
		}
		if err := ep.validate(); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

// joinURL appends path (which may carry a query string) to base.
func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if ref.Path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	}
	if ref.RawQuery != "" {
		u.RawQuery = ref.RawQuery
	}
	return u.String(), nil
}
