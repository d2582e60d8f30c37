package common

import (
	"io"
	"strings"
)

// CDN is a row of the patch server cdns table.
type CDN struct {
	Name  string
	Path  string
	Hosts []string
}

// URL returns the CDN root of the first host.
func (c CDN) URL() string {
	if len(c.Hosts) == 0 {
		return ""
	}
	return "http://" + c.Hosts[0] + "/" + strings.TrimPrefix(c.Path, "/")
}

// ParseCDNs parses the table served at NGDPCdnsURL.
func ParseCDNs(r io.Reader) ([]CDN, error) {
	const name = "cdns"
	t, err := ParseTable(name, r)
	if err != nil {
		return nil, err
	}
	if err := t.require(name, "Name", "Path", "Hosts"); err != nil {
		return nil, err
	}
	cdns := []CDN{}
	for _, row := range t.Maps() {
		hosts := strings.Fields(row["Hosts"])
		if len(hosts) == 0 {
			return nil, parseErrorf(name, "cdn %s has no hosts", row["Name"])
		}
		cdns = append(cdns, CDN{Name: row["Name"], Path: row["Path"], Hosts: hosts})
	}
	return cdns, nil
}

// FindCDN returns the CDN named name.
func FindCDN(cdns []CDN, name string) (CDN, bool) {
	for _, c := range cdns {
		if c.Name == name {
			return c, true
		}
	}
	return CDN{}, false
}
