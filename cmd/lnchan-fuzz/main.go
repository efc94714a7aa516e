// Command lnchan-fuzz replays a corpus of raw wire messages through the
// lnwire decoder, the same decode path a peer connection would feed
// untrusted bytes into. It is a standalone stand-in for a go-fuzz run:
// point it at a directory of seed files (or let it generate some) and it
// reports any input that decodes successfully but panics on re-encode.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

func main() {
	corpusDir := flag.String("corpus", "", "directory of seed files to replay")
	seed := flag.Bool("seed", false, "write a small starter corpus to -corpus and exit")
	flag.Parse()

	if *corpusDir == "" {
		fmt.Fprintln(os.Stderr, "lnchan-fuzz: -corpus is required")
		os.Exit(1)
	}

	if *seed {
		if err := writeSeedCorpus(*corpusDir); err != nil {
			fatal(err)
		}
		return
	}

	entries, err := ioutil.ReadDir(*corpusDir)
	if err != nil {
		fatal(err)
	}

	var ran, decoded, crashed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(*corpusDir, entry.Name())
		data, err := ioutil.ReadFile(path)
		if err != nil {
			fatal(err)
		}

		ran++
		decodedOK, ok := runOne(path, data)
		switch {
		case !ok:
			crashed++
		case decodedOK:
			decoded++
		}
	}

	fmt.Printf("lnchan-fuzz: ran %d inputs, %d decoded cleanly, %d crashed\n",
		ran, decoded, crashed)
	if crashed > 0 {
		os.Exit(1)
	}
}

// runOne calls fuzzDecodeMessage and converts a panic into a reported
// crash rather than letting it take the whole run down, so one bad seed
// doesn't hide the result of the rest of the corpus. decodedOK reports
// whether the input decoded as a message; ok is false if it crashed.
func runOne(path string, data []byte) (decodedOK, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "lnchan-fuzz: CRASH on %s: %v\n", path, r)
			decodedOK, ok = false, false
		}
	}()
	return fuzzDecodeMessage(data) == 1, true
}

func writeSeedCorpus(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	seeds := map[string][]byte{
		"empty":          {},
		"short-header":   {0x00},
		"unknown-type":   {0xff, 0xff},
		"update-fee-hdr": {0x00, 0x86}, // type 134, update_fee
	}
	for name, data := range seeds {
		path := filepath.Join(dir, name)
		if err := ioutil.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "lnchan-fuzz: %v\n", err)
	os.Exit(1)
}
