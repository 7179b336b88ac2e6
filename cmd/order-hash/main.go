// order-hash derives the canonical order hash (and, optionally, the EIP-712
// signing digest) for a Seaport order given as JSON on stdin or as a file
// argument.
//
// Usage:
//
//	order-hash [-chain-id 1] [-contract 0x...] [-digest] [order.json]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/params"
	"github.com/seaportgossip/seaport-gossip/pkg/crypto"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

func main() {
	chainID := flag.Uint64("chain-id", 1, "chain id of the EIP-712 domain")
	contract := flag.String("contract", params.SeaportV11.Hex(), "settlement contract address")
	digest := flag.Bool("digest", false, "also print the EIP-712 signing digest")
	flag.Parse()

	var in io.Reader = os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		in = f
	}

	var j types.OrderJSON
	if err := json.NewDecoder(in).Decode(&j); err != nil {
		fatal(fmt.Errorf("decode order json: %w", err))
	}
	order, err := j.ToOrder()
	if err != nil {
		fatal(err)
	}

	hash := crypto.OrderHash(order)
	fmt.Printf("order hash: %s\n", hash.Hex())

	if *digest {
		domain := crypto.DomainSeparator(*chainID, common.HexToAddress(*contract))
		fmt.Printf("signing digest: %s\n", crypto.SignatureDigest(domain, hash).Hex())
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "order-hash: %v\n", err)
	os.Exit(1)
}
