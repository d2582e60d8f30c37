package common

import (
	"fmt"
	"path/filepath"
	"strings"
)

func ngdpHostURL(region string) string {
	return fmt.Sprintf("http://%s.patch.battle.net:1119", region)
}

// NGDPVersionsURL is the patch server versions table of product.
func NGDPVersionsURL(product, region string) string {
	return fmt.Sprintf("%s/%s/versions", ngdpHostURL(region), product)
}

// NGDPCdnsURL is the patch server cdns table of product.
func NGDPCdnsURL(product, region string) string {
	return fmt.Sprintf("%s/%s/cdns", ngdpHostURL(region), product)
}

const (
	PathTypeConfig = "config"
	PathTypeData   = "data"
)

// URL returns <cdnURL>/<pathType>/<xx>/<yy>/<hex>.
func URL(cdnURL, pathType string, key Checksum, suffix string) (string, error) {
	if key.Len() < 2 {
		return "", parseErrorf(cdnURL, "checksum %q too short for a CDN path", key)
	}
	h := key.Hex()
	return strings.TrimSuffix(cdnURL, "/") + "/" + pathType + "/" + h[0:2] + "/" + h[2:4] + "/" + h + suffix, nil
}

// CDNIndexURL returns the URL of the .index file of an archive.
func CDNIndexURL(cdnURL string, archive Checksum) (string, error) {
	if archive.Len() != ContentKeySize {
		return "", parseErrorf(cdnURL, "archive checksum of %d bytes, need %d", archive.Len(), ContentKeySize)
	}
	return URL(cdnURL, PathTypeData, archive, ".index")
}

// ConfigPath returns <installDir>/Data/config/<cc>/<dd>/<hex>.
func ConfigPath(installDir string, key Checksum) (string, error) {
	if key.Len() < 2 {
		return "", parseErrorf(installDir, "checksum %q too short for a config path", key)
	}
	h := key.Hex()
	return filepath.Join(installDir, "Data", "config", h[0:2], h[2:4], h), nil
}
