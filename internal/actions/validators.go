package actions

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var decimalPattern = regexp.MustCompile(`^[0-9]*\.?[0-9]+$`)

func EVMAddress(v any) error {
	s, _ := v.(string)
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return errors.New("invalid EVM address")
	}
	return nil
}

func SolanaAddress(v any) error {
	s, _ := v.(string)
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(s)); err != nil {
		return errors.New("invalid Solana address")
	}
	return nil
}

func PositiveDecimal(v any) error {
	d, err := ParseDecimal(v)
	if err != nil {
		return err
	}
	if !d.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	return nil
}

func NonNegativeDecimal(v any) error {
	_, err := ParseDecimal(v)
	return err
}

// ParseDecimal parses a plain, non-negative decimal string.
func ParseDecimal(v any) (decimal.Decimal, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return decimal.Zero, errors.New("amount must be a valid number")
	}
	return decimal.NewFromString(s)
}
