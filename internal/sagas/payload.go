package sagas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

// ErrUnrecognizedPayload is returned when a payload matches neither business schema.
var ErrUnrecognizedPayload = errors.New("unrecognized business payload")

// PayloadKind tags which business schema a payload was decoded as.
type PayloadKind string

const (
	PayloadKindBuyIn  PayloadKind = "buy_in"
	PayloadKindLegacy PayloadKind = "legacy"
	PayloadKindOpaque PayloadKind = "opaque"
)

var cashInputTypes = []string{"cash", "front_money"}

// BuyInPayload is the current buy-in request shape.
type BuyInPayload struct {
	Input    BuyInInput     `json:"input"`
	Output   BuyInOutput    `json:"output"`
	Currency enums.Currency `json:"currency"`
}

type BuyInInput struct {
	InputType   []string        `json:"inputType"`
	InputAmount decimal.Decimal `json:"inputAmount"`
}

type BuyInOutput struct {
	OutputType   []string        `json:"outputType"`
	OutputAmount decimal.Decimal `json:"outputAmount"`
}

// LegacyPayload is the single-input shape still sent by older callers.
type LegacyPayload struct {
	InputType string          `json:"inputType"`
	Currency  enums.Currency  `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
}

// Payload is a decoded business payload. Exactly one of BuyIn and Legacy is set
// unless Kind is opaque, in which case only Raw is meaningful.
type Payload struct {
	Kind   PayloadKind
	BuyIn  *BuyInPayload
	Legacy *LegacyPayload
	Raw    json.RawMessage
}

// DecodePayload decodes raw using the schema order implied by businessType. An
// unknown business type tries the current schema before the legacy one.
func DecodePayload(businessType enums.BusinessType, raw json.RawMessage) (Payload, error) {
	opaque := Payload{Kind: PayloadKindOpaque, Raw: raw}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return opaque, ErrUnrecognizedPayload
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return opaque, fmt.Errorf("%w: payload is not a JSON object: %w", ErrUnrecognizedPayload, err)
	}

	decoders := []func() (Payload, bool, error){
		func() (Payload, bool, error) { return decodeBuyIn(fields, trimmed) },
		func() (Payload, bool, error) { return decodeLegacy(fields, trimmed) },
	}
	if businessType == enums.BusinessTypeCashOut {
		decoders[0], decoders[1] = decoders[1], decoders[0]
	}

	var errs []error
	for _, decode := range decoders {
		p, matched, err := decode()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if matched {
			p.Raw = raw
			return p, nil
		}
	}
	if len(errs) > 0 {
		return opaque, errors.Join(append([]error{ErrUnrecognizedPayload}, errs...)...)
	}
	return opaque, ErrUnrecognizedPayload
}

func hasField(fields map[string]json.RawMessage, name string) bool {
	for key := range fields {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

func decodeBuyIn(fields map[string]json.RawMessage, raw []byte) (Payload, bool, error) {
	if !hasField(fields, "input") {
		return Payload{}, false, nil
	}
	var p BuyInPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, false, fmt.Errorf("buy-in payload: %w", err)
	}
	if p.Currency == "" {
		p.Currency = enums.CurrencyHKD
	}
	return Payload{Kind: PayloadKindBuyIn, BuyIn: &p}, true, nil
}

func decodeLegacy(fields map[string]json.RawMessage, raw []byte) (Payload, bool, error) {
	if !hasField(fields, "inputType") {
		return Payload{}, false, nil
	}
	var p LegacyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, false, fmt.Errorf("legacy payload: %w", err)
	}
	if p.Currency == "" {
		p.Currency = enums.CurrencyHKD
	}
	return Payload{Kind: PayloadKindLegacy, Legacy: &p}, true, nil
}

// Currency returns the declared currency, empty for opaque payloads.
func (p Payload) Currency() enums.Currency {
	switch p.Kind {
	case PayloadKindBuyIn:
		return p.BuyIn.Currency
	case PayloadKindLegacy:
		return p.Legacy.Currency
	default:
		return ""
	}
}

// InputTypes lists the declared input instruments.
func (p Payload) InputTypes() []string {
	switch p.Kind {
	case PayloadKindBuyIn:
		return p.BuyIn.Input.InputType
	case PayloadKindLegacy:
		if p.Legacy.InputType == "" {
			return nil
		}
		return []string{p.Legacy.InputType}
	default:
		return nil
	}
}

// IsLocalCash reports a house-currency cash movement, which the accounting
// participant settles alone.
func (p Payload) IsLocalCash() bool {
	if !p.Currency().Is(enums.CurrencyHKD) {
		return false
	}
	for _, input := range p.InputTypes() {
		for _, cash := range cashInputTypes {
			if strings.EqualFold(strings.TrimSpace(input), cash) {
				return true
			}
		}
	}
	return false
}
