/*
Inspect World of Warcraft CASC storages from the command-line.
Usage:

	casc (-dir <install-dir> | [-product <product>] [-region <region>] [-cdn <url> -build <key> -cdnkey <key>]) [-cache <dir>] [-v] <command> [args]

Commands:

	info                    print the build and index summary
	locate <ekey>           print the index entry of an encoding key
	cat <ekey>              write the encoded bytes of an encoding key to stdout
	hash <filename>         print the root name hash of a file name
	dbc <file> [<schema>]   dump a DBC/DB2 file from disk, e.g. "ID:int32 Directory:string"
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/jybp/wowcasc"
	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/dbc"
	"github.com/jybp/wowcasc/reader"
	"github.com/jybp/wowcasc/root/wow"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type logTransport struct{}

func (logTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if h := r.Header.Get("Range"); len(h) > 0 {
		common.Log.Debugf("%s (Range: %s) %s", r.Method, h, r.URL)
	} else {
		common.Log.Debugf("%s %s", r.Method, r.URL)
	}
	return http.DefaultTransport.RoundTrip(r)
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	var installDir, product, region, cdn, build, cdnKey, cacheDir string
	var verbose, trace bool
	flag.StringVar(&installDir, "dir", "", "game install directory")
	flag.StringVar(&product, "product", casc.WorldOfWarcraft, "product code")
	flag.StringVar(&region, "region", casc.RegionUS, "region code")
	flag.StringVar(&cdn, "cdn", "", "cdn url, skips the patch server with -build and -cdnkey")
	flag.StringVar(&build, "build", "", "build config key")
	flag.StringVar(&cdnKey, "cdnkey", "", "cdn config key")
	flag.StringVar(&cacheDir, "cache", "", "cache directory for downloaded files")
	flag.BoolVar(&verbose, "v", false, "verbose")
	flag.BoolVar(&trace, "vv", false, "very verbose")
	flag.Parse()

	common.Log.SetOutput(os.Stderr)
	switch {
	case trace:
		common.Log.SetLevel(logrus.TraceLevel)
	case verbose:
		common.Log.SetLevel(logrus.DebugLevel)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return nil
	}
	cmd, args := args[0], args[1:]

	// Commands without storage.
	switch cmd {
	case "hash":
		if len(args) != 1 {
			return errors.New("usage: hash <filename>")
		}
		fmt.Printf("%016x\n", wow.HashFilename(args[0]))
		return nil
	case "dbc":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: dbc <file> [<schema>]")
		}
		schema := ""
		if len(args) == 2 {
			schema = args[1]
		}
		return dumpDBC(args[0], schema)
	}

	ctx := context.Background()
	diag := &common.Diagnostics{}
	var storage casc.Storage
	if len(installDir) > 0 {
		l, err := casc.OpenLocal(installDir, casc.LocalOptions{Diagnostics: diag, SnapshotDir: cacheDir})
		if err != nil {
			return err
		}
		storage = l
	} else {
		opts := casc.OnlineOptions{
			Product:     product,
			Region:      region,
			CDNURL:      cdn,
			CacheDir:    cacheDir,
			Client:      &http.Client{Transport: logTransport{}},
			Diagnostics: diag,
		}
		if len(build) > 0 {
			var err error
			if opts.BuildConfig, err = common.ParseChecksum(build); err != nil {
				return err
			}
			if opts.CDNConfig, err = common.ParseChecksum(cdnKey); err != nil {
				return err
			}
		}
		o, err := casc.OpenOnline(ctx, opts)
		if err != nil {
			return err
		}
		storage = o
	}
	defer storage.Close()
	if n := diag.Len(); n > 0 {
		common.Log.Warnf("%d warnings while opening the storage", n)
	}

	switch cmd {
	case "info":
		bc := storage.BuildConfig()
		fmt.Printf("version:  %s\n", storage.Version())
		fmt.Printf("build:    %s\n", bc.BuildName)
		fmt.Printf("root:     %s\n", bc.Root)
		fmt.Printf("encoding: %s %s\n", bc.Encoding, bc.EncodingKey)
		fmt.Printf("index:    %d keys\n", storage.Index().Len())
		return nil
	case "locate", "cat":
		if len(args) != 1 {
			return errors.Errorf("usage: %s <ekey>", cmd)
		}
		key, err := common.ParseChecksum(args[0])
		if err != nil {
			return err
		}
		if cmd == "locate" {
			e, err := storage.Locate(key)
			if err != nil {
				return err
			}
			fmt.Printf("%s file=%d offset=%d size=%d\n", e.Key(), e.FileNumber(), e.Offset(), e.Size())
			return nil
		}
		r, err := storage.Open(ctx, key)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(os.Stdout, r)
		return errors.WithStack(err)
	}
	return errors.Errorf("unknown command %q", cmd)
}

func dumpDBC(path, schemaText string) error {
	r, err := reader.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	f, err := dbc.Parse(r)
	if err != nil {
		return err
	}
	h := f.Header
	fmt.Printf("%s: %d records, %d fields, %d bytes per record, %d strings\n",
		h.Magic, h.RecordCount, h.FieldCount, h.RecordSize, f.Strings.Len())
	if schemaText == "" {
		for _, off := range f.Strings.Offsets() {
			fmt.Printf("%d\t%q\n", off, f.Strings.Resolve(off))
		}
		return nil
	}

	schema, err := dbc.ParseSchema(path, schemaText)
	if err != nil {
		return err
	}
	diag := &common.Diagnostics{}
	rows, err := dbc.RowTable(schema).Decode(f, diag)
	if err != nil {
		return err
	}
	for _, w := range diag.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Source, w.Message)
	}
	columns := schema.Ordered()
	for _, row := range rows {
		fields := make([]string, 0, len(columns))
		for _, c := range columns {
			if v, ok := row[c.Name]; ok {
				fields = append(fields, fmt.Sprintf("%s=%v", c.Name, v))
			}
		}
		fmt.Println(strings.Join(fields, " "))
	}
	return nil
}
