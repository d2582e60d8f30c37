package common

import (
	"io"
	"strconv"
)

// Version is a row of the patch server versions table.
type Version struct {
	Region       string
	BuildConfig  Checksum
	CDNConfig    Checksum
	BuildID      int
	VersionsName string // i.e. A.B.C.XXXXX
}

// ParseVersions parses the table served at NGDPVersionsURL.
func ParseVersions(r io.Reader) ([]Version, error) {
	const name = "versions"
	t, err := ParseTable(name, r)
	if err != nil {
		return nil, err
	}
	if err := t.require(name, "Region", "BuildConfig", "CDNConfig", "VersionsName"); err != nil {
		return nil, err
	}
	versions := []Version{}
	for _, row := range t.Maps() {
		v := Version{Region: row["Region"], VersionsName: row["VersionsName"]}
		if v.BuildConfig, err = ParseChecksum(row["BuildConfig"]); err != nil {
			return nil, parseErrorf(name, "region %s: invalid BuildConfig %q", v.Region, row["BuildConfig"])
		}
		if v.CDNConfig, err = ParseChecksum(row["CDNConfig"]); err != nil {
			return nil, parseErrorf(name, "region %s: invalid CDNConfig %q", v.Region, row["CDNConfig"])
		}
		if id, ok := row["BuildId"]; ok && id != "" {
			if v.BuildID, err = strconv.Atoi(id); err != nil {
				return nil, parseErrorf(name, "region %s: invalid BuildId %q", v.Region, id)
			}
		} else {
			v.BuildID, _ = BuildNumber(v.VersionsName)
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// FindVersion returns the version of region.
func FindVersion(versions []Version, region string) (Version, bool) {
	for _, v := range versions {
		if v.Region == region {
			return v, true
		}
	}
	return Version{}, false
}
