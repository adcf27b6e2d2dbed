package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/voicetype/voicetype/internal/license"
)

// keygen mints license keys for out-of-band distribution. It reads the same
// LICENSE_ENCRYPTION_KEY the API runs under, so generated keys validate
// against a running deployment.
func main() {
	tierFlag := flag.String("tier", "pro", "entitlement tier to encode (free, basic, pro)")
	count := flag.Int("n", 1, "number of keys to generate")
	flag.Parse()

	tier := license.Tier(*tierFlag)
	if !tier.Valid() {
		fmt.Fprintf(os.Stderr, "unknown tier %q (want free, basic or pro)\n", *tierFlag)
		os.Exit(2)
	}
	if *count < 1 {
		fmt.Fprintln(os.Stderr, "-n must be at least 1")
		os.Exit(2)
	}

	raw := os.Getenv("LICENSE_ENCRYPTION_KEY")
	if len(raw) != 64 {
		fmt.Fprintln(os.Stderr, "LICENSE_ENCRYPTION_KEY must be a 64-char hex string (32 bytes)")
		os.Exit(1)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "LICENSE_ENCRYPTION_KEY is not valid hex: %v\n", err)
		os.Exit(1)
	}

	codec, err := license.NewCodec(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init codec: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < *count; i++ {
		licenseKey, err := codec.Encode(tier)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(licenseKey)
	}
}
