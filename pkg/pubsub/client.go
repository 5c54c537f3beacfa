// Package pubsub wraps the Google Cloud Pub/Sub v2 client for the outbox
// relay and the event consumers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errNotConnected = errors.New("pubsub client not initialized")

// Client holds one connection plus a publisher per topic. Publishers batch
// in the background, so they are created once and stopped on Close.
type Client struct {
	api     *pubsub.Client
	project string
	cfg     config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and fails fast if a configured topic or subscription
// is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	api, err := pubsub.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	c := &Client{api: api, project: project, cfg: cfg, publishers: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project", project), "pubsub connected")
	}
	return c, nil
}

// Ping checks that every configured topic and subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errNotConnected
	}
	for _, name := range configured(c.cfg.SmsTopic, c.cfg.PaymentsTopic, c.cfg.AnalyticsTopic) {
		_, err := c.api.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.qualify("topics", name)})
		if err := lookupError("topic", name, err); err != nil {
			return err
		}
	}
	subs := configured(c.cfg.SmsSubscription, c.cfg.PaymentsSubscription, c.cfg.AnalyticsSubscription)
	if len(subs) == 0 {
		return errors.New("no pubsub subscriptions configured")
	}
	for _, name := range subs {
		_, err := c.api.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.qualify("subscriptions", name)})
		if err := lookupError("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

func lookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("look up pubsub %s %q: %w", kind, name, err)
	}
}

// Send publishes msg to topic and waits for the server ack.
func (c *Client) Send(ctx context.Context, topic string, msg *pubsub.Message) error {
	pub := c.publisher(topic)
	if pub == nil {
		return fmt.Errorf("no publisher for topic %q", topic)
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}

func (c *Client) publisher(topic string) *pubsub.Publisher {
	if c == nil || c.api == nil {
		return nil
	}
	name := c.qualify("topics", topic)
	if name == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[name]; ok {
		return pub
	}
	pub := c.api.Publisher(name)
	c.publishers[name] = pub
	return pub
}

// subscriber returns a handle with the configured receive parallelism.
func (c *Client) subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.api == nil {
		return nil
	}
	full := c.qualify("subscriptions", name)
	if full == "" {
		return nil
	}
	sub := c.api.Subscriber(full)
	if c.cfg.ReceiveGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = c.cfg.ReceiveGoroutines
	}
	return sub
}

// SmsSubscription carries sms_received events to the pipeline.
func (c *Client) SmsSubscription() *pubsub.Subscriber {
	return c.subscriber(c.cfg.SmsSubscription)
}

// PaymentsSubscription carries settlement events to payer notifications.
func (c *Client) PaymentsSubscription() *pubsub.Subscriber {
	return c.subscriber(c.cfg.PaymentsSubscription)
}

// AnalyticsSubscription carries reconciliation events to BigQuery.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.subscriber(c.cfg.AnalyticsSubscription)
}

// Close flushes and stops every publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.api.Close()
}

// qualify turns a bare ID into projects/<project>/<kind>/<id>. Names that
// are already fully qualified pass through.
func (c *Client) qualify(kind, name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + kind + "/" + name
}

func configured(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
