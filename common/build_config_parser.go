package common

import (
	"io"

	"github.com/pkg/errors"
)

// BuildConfig holds the keys of a build config the storage needs.
type BuildConfig struct {
	Root                Checksum // content key
	Encoding            Checksum // content key
	EncodingKey         Checksum // encoding key, zero when absent
	EncodingSize        int64
	EncodingEncodedSize int64
	Install             Checksum
	BuildName           string
	Config              Config
}

// ParseBuildConfig parses a build config. root and encoding are required.
func ParseBuildConfig(r io.Reader) (BuildConfig, error) {
	var bc BuildConfig
	cfg, err := ParseConfig(r)
	if err != nil {
		return bc, err
	}
	bc.Config = cfg
	root, err := cfg.Checksums("root")
	if err != nil {
		return bc, errors.Wrap(err, "build config")
	}
	if len(root) == 0 {
		return bc, parseErrorf("build config", "empty root")
	}
	bc.Root = root[0]
	enc, err := cfg.Checksums("encoding")
	if err != nil {
		return bc, errors.Wrap(err, "build config")
	}
	if len(enc) == 0 {
		return bc, parseErrorf("build config", "empty encoding")
	}
	bc.Encoding = enc[0]
	if len(enc) > 1 {
		bc.EncodingKey = enc[1]
	}
	sizes, err := cfg.Ints("encoding-size")
	if err != nil {
		return bc, err
	}
	if len(sizes) > 0 {
		bc.EncodingSize = sizes[0]
	}
	if len(sizes) > 1 {
		bc.EncodingEncodedSize = sizes[1]
	}
	if install, err := cfg.Checksums("install"); err == nil && len(install) > 0 {
		bc.Install = install[0]
	}
	bc.BuildName, _ = cfg.Get("build-name")
	return bc, nil
}
