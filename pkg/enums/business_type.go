package enums

import (
	"fmt"
	"strings"
)

// BusinessType discriminates the business operation that started a saga.
type BusinessType string

const (
	BusinessTypeBuyIn   BusinessType = "BuyIn"
	BusinessTypeCashOut BusinessType = "CashOut"
)

var validBusinessTypes = []BusinessType{
	BusinessTypeBuyIn,
	BusinessTypeCashOut,
}

// String implements fmt.Stringer.
func (b BusinessType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BusinessType.
func (b BusinessType) IsValid() bool {
	for _, candidate := range validBusinessTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBusinessType converts raw input into a BusinessType, ignoring case.
func ParseBusinessType(value string) (BusinessType, error) {
	for _, candidate := range validBusinessTypes {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid business type %q", value)
}

// SagaFlow names the orchestration flow a saga was started with, which decides
// participant routing and invocation paths.
type SagaFlow string

const (
	SagaFlowGeneric SagaFlow = "generic"
	SagaFlowBuyIn   SagaFlow = "buy_in"
	SagaFlowCashOut SagaFlow = "cash_out"
)

var validSagaFlows = []SagaFlow{
	SagaFlowGeneric,
	SagaFlowBuyIn,
	SagaFlowCashOut,
}

// IsValid reports whether the value is a known SagaFlow.
func (f SagaFlow) IsValid() bool {
	for _, candidate := range validSagaFlows {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseSagaFlow converts raw input into a SagaFlow.
func ParseSagaFlow(value string) (SagaFlow, error) {
	for _, candidate := range validSagaFlows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid saga flow %q", value)
}

// FlowForBusinessType maps a business discriminator onto its orchestration flow.
func FlowForBusinessType(b BusinessType) SagaFlow {
	switch b {
	case BusinessTypeBuyIn:
		return SagaFlowBuyIn
	case BusinessTypeCashOut:
		return SagaFlowCashOut
	default:
		return SagaFlowGeneric
	}
}
