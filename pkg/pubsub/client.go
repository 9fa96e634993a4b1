package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
)

// Client resolves the coordinator's topics and subscriptions inside one GCP
// project.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "gcp_project", projectID), "pubsub.connected")
	}
	return &Client{client: psClient, projectID: projectID, cfg: cfg}, nil
}

// clientOptions prefers inline credentials over a credentials file. With
// neither set the client uses application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// InitSubscriptions maps each saga flow to the subscription feeding its init
// consumer.
func InitSubscriptions(cfg config.PubSubConfig) map[enums.SagaFlow]string {
	return map[enums.SagaFlow]string{
		enums.SagaFlowGeneric: cfg.InitSubscription,
		enums.SagaFlowBuyIn:   cfg.BuyInInitSubscription,
		enums.SagaFlowCashOut: cfg.CashOutInitSubscription,
	}
}

// SubscriptionNames lists the non-empty subscriptions the coordinator consumes,
// status first.
func SubscriptionNames(cfg config.PubSubConfig) []string {
	candidates := []string{cfg.StatusSubscription, cfg.InitSubscription, cfg.BuyInInitSubscription, cfg.CashOutInitSubscription}
	names := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// EnsureSubscriptions fails unless every configured subscription exists.
func (c *Client) EnsureSubscriptions(ctx context.Context) error {
	names := SubscriptionNames(c.cfg)
	if len(names) == 0 {
		return errNoSubscriptions
	}
	for _, name := range names {
		err := c.checkExists(kindSubscription, name, func(full string) error {
			_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Ping looks up the status topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkExists(kindTopic, c.cfg.StatusTopic, func(full string) error {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		return err
	})
}

func (c *Client) checkExists(kind, name string, get func(fullName string) error) error {
	full := qualify(c.projectID, kind, name)
	if full == "" {
		return fmt.Errorf("%s %q not configured", strings.TrimSuffix(kind, "s"), name)
	}
	err := get(full)
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(kind, "s"), name)
	default:
		return fmt.Errorf("checking %s %q: %w", strings.TrimSuffix(kind, "s"), name, err)
	}
}

// Subscription returns a Subscriber for an ID or full resource name, or nil
// when the name is blank.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if full := qualify(c.projectID, kindSubscription, name); full != "" {
		return c.client.Subscriber(full)
	}
	return nil
}

// StatusSubscription feeds participant status events.
func (c *Client) StatusSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.StatusSubscription)
}

// InitSubscription feeds saga init requests for flow.
func (c *Client) InitSubscription(flow enums.SagaFlow) *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(InitSubscriptions(c.cfg)[flow])
}

// Publisher returns a publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if full := qualify(c.projectID, kindTopic, name); full != "" {
		return c.client.Publisher(full)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// qualify expands a bare ID to projects/<project>/<kind>/<id>. Names that
// are already qualified pass through.
func qualify(project, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + n
}
