package outbox

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db/models"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
)

// TopicRegistry routes outbox messages that were written without a topic.
type TopicRegistry struct {
	byBusinessType map[enums.BusinessType]string
	fallback       string
}

// NewTopicRegistry builds the routing table from the configured topic names.
func NewTopicRegistry(cfg config.PubSubConfig) (*TopicRegistry, error) {
	if strings.TrimSpace(cfg.InitTopic) == "" {
		return nil, fmt.Errorf("init topic is required")
	}
	if strings.TrimSpace(cfg.BuyInInitTopic) == "" {
		return nil, fmt.Errorf("buy-in init topic is required")
	}
	if strings.TrimSpace(cfg.CashOutInitTopic) == "" {
		return nil, fmt.Errorf("cash-out init topic is required")
	}
	return &TopicRegistry{
		byBusinessType: map[enums.BusinessType]string{
			enums.BusinessTypeBuyIn:   cfg.BuyInInitTopic,
			enums.BusinessTypeCashOut: cfg.CashOutInitTopic,
		},
		fallback: cfg.InitTopic,
	}, nil
}

// Resolve returns the message's own topic when set, otherwise the topic for its
// business type, otherwise the generic init topic.
func (r *TopicRegistry) Resolve(msg models.OutboxMessage) string {
	if topic := strings.TrimSpace(msg.Topic); topic != "" {
		return topic
	}
	if topic, ok := r.byBusinessType[msg.BusinessType]; ok {
		return topic
	}
	return r.fallback
}
