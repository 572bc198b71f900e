package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

// Client publishes operator alerts for payout runs that need attention
// (provider rejections, aborted runs). Alerts are optional: a nil *Client is
// safe to call and drops everything.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.AlertsConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("alerts topic is required")
)

// Alert is the payload published for operator attention.
type Alert struct {
	RunID      string    `json:"run_id"`
	Severity   string    `json:"severity"`
	Summary    string    `json:"summary"`
	BatchRef   string    `json:"batch_ref,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewClient creates a Pub/Sub v2 client and verifies the alerts topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.AlertsConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if !cfg.Enabled() {
		return nil, errTopicRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}

	if err := c.ensureTopicExists(ctx, cfg.Topic); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "pubsub alert client initialized")
	}

	return c, nil
}

// clientOptions maps the configured credentials onto the client. Inline JSON
// wins over a credentials file path; with neither set, application default
// credentials apply.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) ensureTopicExists(ctx context.Context, name string) error {
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}

	_, err := c.client.TopicAdminClient.GetTopic(
		ctx,
		&pubsubpb.GetTopicRequest{Topic: fullName},
	)
	if err != nil {
		// v2 uses gRPC errors; NotFound means the topic doesn't exist.
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", name)
		}
		return fmt.Errorf("checking topic %q: %w", name, err)
	}

	return nil
}

// PublishAlert sends one alert to the configured topic and waits for the
// server ack so callers learn about publish failures inside the run.
func (c *Client) PublishAlert(ctx context.Context, alert Alert) error {
	if c == nil || c.client == nil {
		return nil
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	publisher := c.client.Publisher(c.topicResourceName(c.cfg.Topic))
	if publisher == nil {
		return errTopicRequired
	}
	defer publisher.Stop()

	result := publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"severity": alert.Severity,
			"run_id":   alert.RunID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}

// Ping verifies Pub/Sub connectivity by checking the configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureTopicExists(ctx, c.cfg.Topic)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
