package sagas

import (
	"strings"

	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

// Flow decides who takes part in a saga and which method each is called on.
// A non-nil error from Participants means the set fell back to the default.
type Flow interface {
	Name() enums.SagaFlow
	Participants(req TransactionRequest) ([]string, error)
	ForwardMethod(participant string) string
	CompensateMethod(participant string) string
}

func methodPath(participant, action string) string {
	return "api/" + strings.TrimPrefix(participant, "service-") + "/" + action
}

type genericFlow struct{}

// GenericFlow fans out to the three fixed participants.
func GenericFlow() Flow { return genericFlow{} }

func (genericFlow) Name() enums.SagaFlow { return enums.SagaFlowGeneric }

func (genericFlow) Participants(TransactionRequest) ([]string, error) {
	return []string{ParticipantCTA, ParticipantGenesis, ParticipantPerfectCage}, nil
}

func (genericFlow) ForwardMethod(p string) string    { return methodPath(p, "transaction") }
func (genericFlow) CompensateMethod(p string) string { return methodPath(p, "compensate") }

type routedFlow struct {
	name         enums.SagaFlow
	businessType enums.BusinessType
	action       string
}

// BuyInFlow routes deposits to accounting and, unless the deposit is local
// cash, to the gaming ledger.
func BuyInFlow() Flow {
	return routedFlow{name: enums.SagaFlowBuyIn, businessType: enums.BusinessTypeBuyIn, action: "deposit"}
}

// CashOutFlow is BuyInFlow for withdrawals.
func CashOutFlow() Flow {
	return routedFlow{name: enums.SagaFlowCashOut, businessType: enums.BusinessTypeCashOut, action: "withdraw"}
}

func (f routedFlow) Name() enums.SagaFlow { return f.name }

func (f routedFlow) Participants(req TransactionRequest) ([]string, error) {
	businessType := f.businessType
	if parsed, err := enums.ParseBusinessType(req.BusinessType); err == nil {
		businessType = parsed
	}
	payload, err := DecodePayload(businessType, req.Payload)
	if err != nil {
		return []string{ParticipantCTA}, err
	}
	if payload.IsLocalCash() {
		return []string{ParticipantCTA}, nil
	}
	return []string{ParticipantCTA, ParticipantGenesis}, nil
}

func (f routedFlow) ForwardMethod(p string) string    { return methodPath(p, f.action) }
func (f routedFlow) CompensateMethod(p string) string { return methodPath(p, "compensate") }

// DefaultFlows returns every flow the coordinator drives.
func DefaultFlows() []Flow {
	return []Flow{GenericFlow(), BuyInFlow(), CashOutFlow()}
}
