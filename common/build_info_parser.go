package common

import (
	"io"
	"strconv"
	"strings"
)

// BuildInfoHeader is the only .build.info layout supported.
const BuildInfoHeader = "Branch!STRING:0|Active!DEC:1|Build Key!HEX:16|CDN Key!HEX:16|Install Key!HEX:16|IM Size!DEC:4|CDN Path!STRING:0|CDN Hosts!STRING:0|Tags!STRING:0|Armadillo!STRING:0|Last Activated!STRING:0|Version!STRING:0"

// BuildInfo is the content of the .build.info file of an installation.
type BuildInfo struct {
	Region        string
	Active        bool
	BuildKey      Checksum
	CDNKey        Checksum
	InstallKey    Checksum // zero when empty
	IMSize        int
	CDNPath       string
	CDNHosts      []string
	Tags          []string
	Armadillo     string
	LastActivated string
	Version       string
	BuildNumber   int // last dot separated component of Version
}

// CDNURL returns the CDN root of the first host.
func (b BuildInfo) CDNURL() string {
	if len(b.CDNHosts) == 0 {
		return ""
	}
	return "http://" + b.CDNHosts[0] + "/" + strings.TrimPrefix(b.CDNPath, "/")
}

// ParseBuildInfo parses a .build.info file. The header must match
// BuildInfoHeader and exactly one data row must follow.
func ParseBuildInfo(r io.Reader) (BuildInfo, error) {
	const name = ".build.info"
	var bi BuildInfo
	t, err := ParseTable(name, r)
	if err != nil {
		return bi, err
	}
	if t.Header != BuildInfoHeader {
		return bi, parseErrorf(name, "unsupported header %q", t.Header)
	}
	if len(t.Rows) != 1 {
		return bi, parseErrorf(name, "%d data rows, need exactly one", len(t.Rows))
	}
	row := t.Rows[0]

	bi.Region = row[0]
	switch row[1] {
	case "1":
		bi.Active = true
	case "0":
	default:
		return bi, parseErrorf(name, "invalid Active %q", row[1])
	}
	if bi.BuildKey, err = buildInfoKey(name, "Build Key", row[2], true); err != nil {
		return bi, err
	}
	if bi.CDNKey, err = buildInfoKey(name, "CDN Key", row[3], true); err != nil {
		return bi, err
	}
	if bi.InstallKey, err = buildInfoKey(name, "Install Key", row[4], false); err != nil {
		return bi, err
	}
	if row[5] != "" {
		if bi.IMSize, err = strconv.Atoi(row[5]); err != nil {
			return bi, parseErrorf(name, "invalid IM Size %q", row[5])
		}
	}
	bi.CDNPath = row[6]
	bi.CDNHosts = strings.Fields(row[7])
	for _, tag := range strings.Split(row[8], "?") {
		if tag = strings.TrimSpace(tag); tag != "" {
			bi.Tags = append(bi.Tags, tag)
		}
	}
	bi.Armadillo = row[9]
	bi.LastActivated = row[10]
	bi.Version = row[11]
	if bi.BuildNumber, err = BuildNumber(bi.Version); err != nil {
		return bi, parseErrorf(name, "%v", err)
	}
	return bi, nil
}

// BuildNumber returns the integer after the last '.' of version.
func BuildNumber(version string) (int, error) {
	i := strings.LastIndexByte(version, '.')
	n, err := strconv.Atoi(version[i+1:])
	if i < 0 || err != nil {
		return 0, parseErrorf("", "no build number in version %q", version)
	}
	return n, nil
}

func buildInfoKey(name, column, value string, required bool) (Checksum, error) {
	if value == "" && !required {
		return Checksum{}, nil
	}
	c, err := ParseChecksum(value)
	if err != nil || c.Len() != ContentKeySize {
		return Checksum{}, parseErrorf(name, "invalid %s %q", column, value)
	}
	return c, nil
}
