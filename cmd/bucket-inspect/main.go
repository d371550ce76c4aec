// Command bucket-inspect decodes a bucket file and prints how many records
// of each kind it holds.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/INLOpen/ledgersnap/bucket"
	"github.com/INLOpen/ledgersnap/compressors"
	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
)

type summary struct {
	records         int
	byRecordType    map[xdr.BucketEntryType]int
	byEntryType     map[xdr.LedgerEntryType]int
	protocolVersion uint32
}

// inspect reads every record of r. With verbose set each record is written
// to w as one JSON line.
func inspect(r io.Reader, w io.Writer, verbose bool) (*summary, error) {
	s := &summary{
		byRecordType: make(map[xdr.BucketEntryType]int),
		byEntryType:  make(map[xdr.LedgerEntryType]int),
	}
	enc := json.NewEncoder(w)
	br := bucket.NewReader(r)
	for {
		e, err := br.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		s.records++
		s.byRecordType[e.Type]++
		key, hasKey, err := core.EntryKey(e)
		if err != nil {
			return s, err
		}
		if e.Type == xdr.BucketEntryTypeMetaentry {
			s.protocolVersion = uint32(e.MetaEntry.LedgerVersion)
		} else if hasKey {
			s.byEntryType[key.Type]++
		}
		if verbose {
			line, err := recordLine(e, key, hasKey)
			if err != nil {
				return s, err
			}
			if err := enc.Encode(line); err != nil {
				return s, err
			}
		}
	}
}

// recordLine renders a record with its key and entry as base64 XDR.
func recordLine(e xdr.BucketEntry, key xdr.LedgerKey, hasKey bool) (map[string]any, error) {
	line := map[string]any{"type": core.RecordTypeName(e.Type)}
	if e.Type == xdr.BucketEntryTypeMetaentry {
		line["ledger_version"] = uint32(e.MetaEntry.LedgerVersion)
		return line, nil
	}
	if !hasKey {
		return line, nil
	}
	k, err := xdr.MarshalBase64(key)
	if err != nil {
		return nil, err
	}
	line["entry_type"] = core.EntryTypeName(key.Type)
	line["key"] = k
	if owner, ok := keyOwner(key); ok {
		line["owner"] = owner.String()
	}
	if e.LiveEntry != nil {
		entry, err := xdr.MarshalBase64(*e.LiveEntry)
		if err != nil {
			return nil, err
		}
		line["entry"] = entry
	}
	return line, nil
}

// keyOwner is the account or contract a key belongs to, where it has one.
func keyOwner(key xdr.LedgerKey) (core.Address, bool) {
	switch {
	case key.Account != nil:
		id, ok := core.AccountIDFromXDR(key.Account.AccountId)
		return core.AccountAddress(id), ok
	case key.TrustLine != nil:
		id, ok := core.AccountIDFromXDR(key.TrustLine.AccountId)
		return core.AccountAddress(id), ok
	case key.ContractData != nil:
		return core.AddressFromScAddress(key.ContractData.Contract)
	default:
		return core.Address{}, false
	}
}

func printSummary(w io.Writer, s *summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "Records:\t%d\n", s.records)
	if s.protocolVersion != 0 {
		fmt.Fprintf(tw, "Protocol version:\t%d\n", s.protocolVersion)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RECORD\tCOUNT")
	fmt.Fprintln(tw, "------\t-----")
	recordTypes := make([]xdr.BucketEntryType, 0, len(s.byRecordType))
	for t := range s.byRecordType {
		recordTypes = append(recordTypes, t)
	}
	sort.Slice(recordTypes, func(i, j int) bool { return recordTypes[i] < recordTypes[j] })
	for _, t := range recordTypes {
		fmt.Fprintf(tw, "%s\t%d\n", core.RecordTypeName(t), s.byRecordType[t])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ENTRY\tCOUNT")
	fmt.Fprintln(tw, "-----\t-----")
	entryTypes := make([]xdr.LedgerEntryType, 0, len(s.byEntryType))
	for t := range s.byEntryType {
		entryTypes = append(entryTypes, t)
	}
	sort.Slice(entryTypes, func(i, j int) bool { return entryTypes[i] < entryTypes[j] })
	for _, t := range entryTypes {
		fmt.Fprintf(tw, "%s\t%d\n", core.EntryTypeName(t), s.byEntryType[t])
	}
	tw.Flush()
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bucket-inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Print every record as a JSON line")
	compression := fs.String("compression", "none", "Compression of the file: none, gzip, zstd, lz4, snappy or xz")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: bucket-inspect [flags] <bucket file>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	codec, err := compressors.Parse(*compression)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer f.Close()
	r, err := codec.NewReader(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: opening %s stream: %v\n", *compression, err)
		return 1
	}
	defer r.Close()

	s, err := inspect(r, stdout, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Error after %d records: %v\n", s.records, err)
		return 1
	}
	if *verbose {
		fmt.Fprintln(stdout)
	}
	printSummary(stdout, s)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
