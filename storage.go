// Package casc reads World of Warcraft CASC storages, from an installation
// directory or from the CDN.
package casc

import (
	"context"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
)

// Regions codes
const (
	RegionUS = "us"
	RegionEU = "eu"
	RegionKR = "kr"
	RegionTW = "tw"
	RegionCN = "cn"
)

// Product codes
const (
	WorldOfWarcraft = "wow"
	WoWClassic      = "wow_classic"
	WoWBeta         = "wow_beta"
	WoWPTR          = "wowt"
)

// ErrNotFound is returned when a key, a content key or a file name is unknown.
var ErrNotFound = common.ErrNotFound

// Storage locates and opens encoded files by encoding key.
// Local and Online implement Storage.
type Storage interface {
	// Version is the version name of the build, i.e. A.B.C.XXXXX.
	Version() string
	BuildConfig() common.BuildConfig
	Index() *common.Index
	// Locate returns the index entry of key. Keys are trimmed to
	// common.FileKeySize bytes.
	Locate(key common.Checksum) (common.IndexEntry, error)
	// Open returns the encoded bytes of the file with encoding key key.
	Open(ctx context.Context, key common.Checksum) (*reader.Reader, error)
	Close() error
}
