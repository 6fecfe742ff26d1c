// Command keytool encrypts an operator private key for use with the
// chain.encrypted_key_path setting, and can verify an encrypted key file
// decrypts correctly.
//
// Encrypt a key (reads the hex key and password from the environment so
// neither lands in shell history):
//
//	MARKETD_KEY=0xabc... MARKETD_KEY_PASSWORD=secret keytool -encrypt -out operator.key
//
// Verify an encrypted key file:
//
//	MARKETD_KEY_PASSWORD=secret keytool -verify -in operator.key
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/auctionhaus/marketd/internal/crypto"
)

func main() {
	encrypt := flag.Bool("encrypt", false, "encrypt MARKETD_KEY and write it to -out")
	verify := flag.Bool("verify", false, "decrypt -in and print the derived address")
	out := flag.String("out", "operator.key", "output path for the encrypted key")
	in := flag.String("in", "operator.key", "input path of the encrypted key")
	chainID := flag.Int64("chain-id", 1, "chain id used when deriving the address")
	flag.Parse()

	password := os.Getenv("MARKETD_KEY_PASSWORD")
	if password == "" {
		fatal("MARKETD_KEY_PASSWORD must be set")
	}

	switch {
	case *encrypt:
		key := os.Getenv("MARKETD_KEY")
		if key == "" {
			fatal("MARKETD_KEY must be set when encrypting")
		}
		blob, err := crypto.EncryptKey(key, password)
		if err != nil {
			fatal("encrypt: %v", err)
		}
		if err := os.WriteFile(*out, blob, 0o600); err != nil {
			fatal("write %s: %v", *out, err)
		}
		fmt.Printf("encrypted key written to %s\n", *out)

	case *verify:
		blob, err := os.ReadFile(*in)
		if err != nil {
			fatal("read %s: %v", *in, err)
		}
		key, err := crypto.DecryptKey(blob, password)
		if err != nil {
			fatal("decrypt: %v", err)
		}
		signer, err := crypto.NewSigner(key, *chainID)
		if err != nil {
			fatal("derive address: %v", err)
		}
		fmt.Printf("ok: operator address %s\n", signer.Address().Hex())

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "keytool: "+format+"\n", args...)
	os.Exit(1)
}
