package crypto

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	domainName    = "Seaport"
	domainVersion = "1.1"

	eip712DomainTypeString = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
)

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(eip712DomainTypeString))
	nameHash             = crypto.Keccak256Hash([]byte(domainName))
	versionHash          = crypto.Keccak256Hash([]byte(domainVersion))
)

// DomainSeparator derives the settlement contract's EIP-712 domain separator
// for the given chain and contract address.
func DomainSeparator(chainID uint64, contract common.Address) common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		eip712DomainTypeHash.Bytes(),
		nameHash.Bytes(),
		versionHash.Bytes(),
		padUint64(chainID),
		padAddr(contract),
	))
}

// SignatureDigest is the digest an offerer signs:
// keccak256("\x19\x01" ‖ domainSeparator ‖ orderHash).
func SignatureDigest(domainSeparator, orderHash common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		domainSeparator.Bytes(),
		orderHash.Bytes(),
	))
}

var ErrBadSignatureLength = errors.New("signature must be 64 or 65 bytes")

// RecoverSigner recovers the address that produced sig over digest. Both
// 65-byte (r,s,v) and 64-byte EIP-2098 compact (r,vs) encodings are accepted.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	var rsv [65]byte
	switch len(sig) {
	case 65:
		copy(rsv[:], sig)
		if rsv[64] >= 27 {
			rsv[64] -= 27
		}
	case 64:
		copy(rsv[:32], sig[:32])
		vs := new(big.Int).SetBytes(sig[32:])
		v := byte(vs.Bit(255))
		vs.SetBit(vs, 255, 0)
		vs.FillBytes(rsv[32:64])
		rsv[64] = v
	default:
		return common.Address{}, ErrBadSignatureLength
	}
	pub, err := crypto.SigToPub(digest.Bytes(), rsv[:])
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
