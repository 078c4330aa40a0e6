package config

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// ValidatePayoutAddress sanity-checks a Base58Check-encoded payout
// address the way the reference solo-mining coinbase builder did
// (decode, drop the version byte and checksum, keep the hash160), but
// as a validation gate rather than a coinbase scriptPubKey builder:
// pool mining never needs the decoded hash160 itself.
func ValidatePayoutAddress(address string) error {
	if address == "" {
		return fmt.Errorf("config: payout address must not be empty")
	}

	decoded, version, err := base58.CheckDecode(address)
	if err != nil {
		return fmt.Errorf("config: invalid payout address %q: %w", address, err)
	}
	if len(decoded) != 20 {
		return fmt.Errorf("config: payout address %q decodes to %d bytes, want 20 (hash160)", address, len(decoded))
	}
	_ = version // pubkey-hash vs script-hash distinction is pool-specific, not validated here

	return nil
}
