package ga

import "strings"

// ReferrerInternal marks a site-internal referrer.
const ReferrerInternal = "0"

type Page struct {
	Path     string // utmp, must start with "/"
	Title    string // utmdt
	Charset  string // utmcs
	Referrer string // utmr

	loadTime    int
	hasLoadTime bool
}

func NewPage(path string) (*Page, error) {
	p := &Page{Path: path}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Page) Validate() error {
	if p.Path != "" && !strings.HasPrefix(p.Path, "/") {
		return invalid("page", `path should always start with a slash ("/"), got %q`, p.Path)
	}
	return nil
}

// SetLoadTime records the page load time in milliseconds.
func (p *Page) SetLoadTime(ms int) error {
	if ms < 0 {
		return invalid("page", "load time must not be negative, got %d", ms)
	}
	p.loadTime, p.hasLoadTime = ms, true
	return nil
}

// LoadTime returns the recorded load time in milliseconds.
func (p *Page) LoadTime() (int, bool) {
	return p.loadTime, p.hasLoadTime
}
