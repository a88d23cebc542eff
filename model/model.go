package model

import (
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsValidAccount reports whether account is a 20-byte hex address, with or without the 0x prefix.
func IsValidAccount(account string) bool {
	return common.IsHexAddress(strings.TrimSpace(account))
}

// NormalizeAccount returns the checksummed form of a valid account.
func NormalizeAccount(account string) string {
	return common.HexToAddress(strings.TrimSpace(account)).Hex()
}

// RecipientKey is the unique key of a recipient in the attempt ledger: the keccak256
// hash of the address bytes, so that differently-cased spellings of one address collide.
func RecipientKey(account string) string {
	addr := common.HexToAddress(strings.TrimSpace(account))
	return crypto.Keccak256Hash(addr.Bytes()).Hex()
}

// CleanIP reduces a raw client address, which may be a forwarded-for list or carry a
// port, to the bare address. It returns an empty string when nothing parses.
func CleanIP(raw string) string {
	first := strings.TrimSpace(strings.Split(raw, ",")[0])
	if host, _, err := net.SplitHostPort(first); err == nil {
		first = host
	}
	ip := net.ParseIP(strings.Trim(first, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// MaskIP keeps the network part of an address for audit and drops the host part:
// IPv4 addresses keep their /24, IPv6 addresses their /48.
func MaskIP(raw string) string {
	ip := net.ParseIP(CleanIP(raw))
	if ip == nil {
		return "unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
