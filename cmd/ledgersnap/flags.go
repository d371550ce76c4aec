package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/INLOpen/ledgersnap/config"
)

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// parseArgs loads the configuration file named by -config and applies the
// flags that were given on top of it.
func parseArgs(args []string, stderr io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("ledgersnap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ledgersnap [flags]\n\nBuilds a ledger snapshot of the given accounts and contracts from a history archive.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	var (
		configPath  = fs.String("config", "", "Path to a YAML configuration file")
		archiveURL  = fs.String("archive-url", "", "History archive URL (default: $STELLAR_ARCHIVE_URL, then the network's public archive)")
		network     = fs.String("network", "", "Network name: mainnet, testnet, futurenet or local")
		ledger      = fs.Uint("ledger", 0, "Checkpoint ledger to snapshot (default: latest)")
		output      = fs.String("output", "", "Snapshot output file")
		format      = fs.String("format", "", "Snapshot format (json)")
		compression = fs.String("compression", "", "Snapshot compression: none, gzip, zstd, lz4, snappy or xz")
		indent      = fs.Bool("indent", false, "Pretty-print the snapshot")
		cacheDir    = fs.String("cache-dir", "", "Bucket cache directory")
		workers     = fs.Int("workers", 0, "Concurrent bucket downloads")
		noVerify    = fs.Bool("no-verify", false, "Skip checking downloaded buckets against their hash")
		logLevel    = fs.String("log-level", "", "Log level: debug, info, warn or error")
		logFormat   = fs.String("log-format", "", "Log format: text or json")
		debug       = fs.Bool("debug", false, "Serve expvar, pprof and statsviz while the snapshot is built")
		addresses   stringList
		wasmHashes  stringList
	)
	fs.StringVar(output, "out", "", "Alias of -output")
	fs.Var(&addresses, "address", "Account (G...) or contract (C...) to include; repeatable")
	fs.Var(&wasmHashes, "wasm-hash", "Hex hash of contract code to include; repeatable")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg, err = config.Load(nil)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["archive-url"] {
		cfg.Archive.URL = *archiveURL
	}
	if set["network"] {
		cfg.Archive.Network = *network
		if !set["archive-url"] {
			// A file's archive belongs to the file's network.
			cfg.Archive.URL = ""
		}
	}
	if set["ledger"] {
		if *ledger > math.MaxUint32 {
			return nil, fmt.Errorf("ledger %d out of range", *ledger)
		}
		cfg.Snapshot.Ledger = uint32(*ledger)
	}
	if set["output"] || set["out"] {
		cfg.Snapshot.Out = *output
	}
	if set["format"] {
		cfg.Snapshot.Format = *format
	}
	if set["compression"] {
		cfg.Snapshot.Compression = *compression
	}
	if set["indent"] {
		cfg.Snapshot.Indent = *indent
	}
	if set["cache-dir"] {
		cfg.Cache.Dir = *cacheDir
	}
	if set["workers"] {
		cfg.Cache.Workers = *workers
	}
	if set["no-verify"] {
		cfg.Cache.VerifyHashes = !*noVerify
	}
	if set["log-level"] {
		cfg.Logging.Level = *logLevel
	}
	if set["log-format"] {
		cfg.Logging.Format = *logFormat
	}
	if set["debug"] {
		cfg.Debug.Enabled = *debug
	}
	if set["address"] {
		cfg.Filter.Addresses = addresses
	}
	if set["wasm-hash"] {
		cfg.Filter.WasmHashes = wasmHashes
	}
	return cfg, cfg.Validate()
}
