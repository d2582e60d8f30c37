package common

import (
	"io"

	"github.com/pkg/errors"
)

// CDNConfig lists the archives of a build.
type CDNConfig struct {
	Archives     []Checksum
	ArchiveGroup Checksum
	Config       Config
}

// ParseCDNConfig parses a CDN config file.
func ParseCDNConfig(r io.Reader) (CDNConfig, error) {
	var cc CDNConfig
	cfg, err := ParseConfig(r)
	if err != nil {
		return cc, err
	}
	cc.Config = cfg
	if cc.Archives, err = cfg.Checksums("archives"); err != nil {
		return cc, errors.Wrap(err, "cdn config")
	}
	if len(cc.Archives) == 0 {
		return cc, parseErrorf("cdn config", "no archives")
	}
	if group, err := cfg.Checksums("archive-group"); err == nil && len(group) > 0 {
		cc.ArchiveGroup = group[0]
	}
	return cc, nil
}
