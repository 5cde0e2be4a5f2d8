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

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/env"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// EnvEmulatorHost is read by the Pub/Sub SDK; when set, missing topics and
// subscriptions are created at startup.
const EnvEmulatorHost = "PUBSUB_EMULATOR_HOST"

const (
	topicsCollection        = "topics"
	subscriptionsCollection = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
	errNoTopic           = errors.New("pubsub domain topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection for the domain events topic and the
// subscriptions consuming it.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	provision bool
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
	c := &Client{
		client:    psClient,
		projectID: projectID,
		cfg:       cfg,
		provision: env.Get(EnvEmulatorHost, "") != "",
	}
	if err := c.ensureResources(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"pubsub_topic":    cfg.DomainTopic,
		"pubsub_emulator": c.provision,
		"pubsub_project":  projectID,
	}), "pubsub client initialized")
	return c, nil
}

// clientOptions picks inline credentials over a key file; with neither set the
// client falls back to application default credentials.
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

// ensureResources checks the domain topic and every configured subscription.
func (c *Client) ensureResources(ctx context.Context) error {
	topic := c.resource(topicsCollection, c.cfg.DomainTopic)
	if topic == "" {
		return errNoTopic
	}
	subs := subscriptionNames(c.cfg)
	if len(subs) == 0 {
		return errNoSubscriptions
	}

	if err := c.ensureTopic(ctx, topic); err != nil {
		return err
	}
	for _, name := range subs {
		if err := c.ensureSubscription(ctx, c.resource(subscriptionsCollection, name), topic); err != nil {
			return err
		}
	}
	return nil
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	var names []string
	if name := strings.TrimSpace(cfg.NotificationSubscription); name != "" {
		names = append(names, name)
	}
	return names
}

func (c *Client) ensureTopic(ctx context.Context, name string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	if status.Code(err) == codes.NotFound && c.provision {
		_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
	}
	return describe("topic", name, err)
}

func (c *Client) ensureSubscription(ctx context.Context, name, topic string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	if status.Code(err) == codes.NotFound && c.provision {
		_, err = c.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{Name: name, Topic: topic})
	}
	return describe("subscription", name, err)
}

func describe(kind, name string, err error) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Subscription returns a subscriber for a subscription id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if full := c.resource(subscriptionsCollection, name); full != "" {
		return c.client.Subscriber(full)
	}
	return nil
}

// NotificationSubscription returns the subscriber feeding in-app notifications.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	sub := c.Subscription(c.cfg.NotificationSubscription)
	if sub != nil && c.cfg.NotificationMaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.NotificationMaxOutstanding
	}
	return sub
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if full := c.resource(topicsCollection, name); full != "" {
		return c.client.Publisher(full)
	}
	return nil
}

// Ping re-checks that the topic and subscriptions are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.ensureResources(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) resource(collection, name string) string {
	if c == nil {
		return ""
	}
	return resourceName(c.projectID, collection, name)
}

// resourceName expands an id to projects/<project>/<collection>/<id>. Names
// that are already fully qualified pass through.
func resourceName(project, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + name
}
