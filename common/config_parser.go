package common

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config is a "key = value" configuration file.
type Config map[string]string

// ParseConfig reads a key-value config. Comments start with "#".
func ParseConfig(r io.Reader) (Config, error) {
	cfg := Config{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		cfg[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

// Get returns the raw value of key.
func (c Config) Get(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

// Fields returns the space separated values of key.
func (c Config) Fields(key string) []string {
	return strings.Fields(c[key])
}

// Checksums decodes every value of key as hex.
func (c Config) Checksums(key string) ([]Checksum, error) {
	v, ok := c[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "config key %q", key)
	}
	var out []Checksum
	for _, s := range strings.Fields(v) {
		cs, err := ParseChecksum(s)
		if err != nil {
			return nil, errors.Wrapf(err, "config key %q", key)
		}
		out = append(out, cs)
	}
	return out, nil
}

// Ints decodes every value of key as a decimal integer.
func (c Config) Ints(key string) ([]int64, error) {
	var out []int64
	for _, s := range c.Fields(key) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, parseErrorf("", "config key %q: invalid integer %q", key, s)
		}
		out = append(out, n)
	}
	return out, nil
}
