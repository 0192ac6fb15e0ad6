package eos

import (
	"fmt"
	"strconv"
	"strings"
)

const maxSymbolPrecision = 18

type Symbol struct {
	Precision uint8
	Code      string
}

// ParseSymbol reads the "4,EOS" form.
func ParseSymbol(s string) (Symbol, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Symbol{}, fmt.Errorf("invalid symbol %q", s)
	}
	p, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || p > maxSymbolPrecision {
		return Symbol{}, fmt.Errorf("invalid symbol precision in %q", s)
	}
	if _, err := symbolCodeValue(parts[1]); err != nil {
		return Symbol{}, err
	}
	return Symbol{Precision: uint8(p), Code: parts[1]}, nil
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

func (s Symbol) value() uint64 {
	code, _ := symbolCodeValue(s.Code)
	return code<<8 | uint64(s.Precision)
}

func symbolFromValue(v uint64) Symbol {
	return Symbol{Precision: uint8(v & 0xff), Code: symbolCodeString(v >> 8)}
}

func symbolCodeValue(code string) (uint64, error) {
	if code == "" || len(code) > 7 {
		return 0, fmt.Errorf("invalid symbol code %q", code)
	}
	var v uint64
	for i := len(code) - 1; i >= 0; i-- {
		c := code[i]
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("invalid symbol code %q", code)
		}
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func symbolCodeString(v uint64) string {
	var sb strings.Builder
	for v > 0 {
		sb.WriteByte(byte(v & 0xff))
		v >>= 8
	}
	return sb.String()
}

// Asset is a token quantity such as "1.0000 EOS".
type Asset struct {
	Amount int64
	Symbol Symbol
}

func ParseAsset(s string) (Asset, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) != 2 {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	amount, code := parts[0], parts[1]
	if _, err := symbolCodeValue(code); err != nil {
		return Asset{}, err
	}
	neg := strings.HasPrefix(amount, "-")
	amount = strings.TrimPrefix(amount, "-")

	precision := 0
	if dot := strings.IndexByte(amount, '.'); dot >= 0 {
		precision = len(amount) - dot - 1
		amount = amount[:dot] + amount[dot+1:]
	}
	if precision > maxSymbolPrecision {
		return Asset{}, fmt.Errorf("invalid asset precision in %q", s)
	}
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("invalid asset amount in %q: %w", s, err)
	}
	if neg {
		n = -n
	}
	return Asset{Amount: n, Symbol: Symbol{Precision: uint8(precision), Code: code}}, nil
}

func (a Asset) String() string {
	amount := a.Amount
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	p := int(a.Symbol.Precision)
	if p > 0 {
		if len(digits) <= p {
			digits = strings.Repeat("0", p-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-p] + "." + digits[len(digits)-p:]
	}
	return sign + digits + " " + a.Symbol.Code
}
