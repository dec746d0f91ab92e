package tool

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// usdcDecimals is the number of fraction digits USDC supports on-chain.
const usdcDecimals = 6

// RequireField returns an error if the string value is empty after trimming.
func RequireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// ValidateRange checks that value is within [min, max]. Returns nil on success.
func ValidateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be %d-%d", name, min, max)
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
//
//	if err := ValidateAll(RequireField("amount", p.Amount), ValidateAmount("amount", p.Amount)); err != nil { ... }
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateAmount checks a USD amount string: a positive decimal with at most
// six fraction digits. An empty value is left to RequireField.
func ValidateAmount(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: not a decimal number", name, value)
	}
	if !d.IsPositive() {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	if d.Exponent() < -usdcDecimals && !d.Equal(d.Truncate(usdcDecimals)) {
		return fmt.Errorf("invalid %s %q: at most %d decimal places", name, value, usdcDecimals)
	}
	return nil
}

// ValidateNetwork checks a CAIP-2 chain id ("namespace:reference").
// An empty value is allowed.
func ValidateNetwork(name, value string) error {
	if value == "" {
		return nil
	}
	ns, ref, ok := strings.Cut(value, ":")
	if !ok || ns == "" || ref == "" {
		return fmt.Errorf("invalid %s %q: expected CAIP-2 id such as eip155:8453", name, value)
	}
	return nil
}

// ValidateRecipient checks the recipient address. On EVM networks it must be
// a 0x-prefixed 20-byte hex address; other namespaces only require a value.
func ValidateRecipient(name, value, network string) error {
	if !strings.HasPrefix(network, "eip155:") {
		return nil
	}
	if len(value) != 42 || !strings.HasPrefix(strings.ToLower(value), "0x") {
		return fmt.Errorf("invalid %s %q: expected a 0x-prefixed 40 hex character address", name, value)
	}
	if _, err := hex.DecodeString(value[2:]); err != nil {
		return fmt.Errorf("invalid %s %q: not hex", name, value)
	}
	return nil
}
