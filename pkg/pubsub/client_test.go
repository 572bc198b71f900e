package pubsub

import (
	"testing"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
)

func TestClientOptionsCredentialSelection(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("no credentials configured should mean default credentials, got %d options", len(got))
	}
	if got := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}); len(got) != 1 {
		t.Fatalf("inline credentials should produce one option, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{ApplicationCredentials: "/etc/gcp/creds.json"}); len(got) != 1 {
		t.Fatalf("credentials file should produce one option, got %d", len(got))
	}
	inlineWins := config.GCPConfig{
		CredentialsJSON:        `{"type":"service_account"}`,
		ApplicationCredentials: "/etc/gcp/creds.json",
	}
	if got := clientOptions(inlineWins); len(got) != 1 {
		t.Fatalf("inline credentials take precedence, got %d options", len(got))
	}
	if got := clientOptions(config.GCPConfig{CredentialsJSON: "   "}); len(got) != 0 {
		t.Fatalf("blank inline credentials should be ignored, got %d options", len(got))
	}
}

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "proj-1"}
	if got := c.topicResourceName("alerts"); got != "projects/proj-1/topics/alerts" {
		t.Fatalf("unexpected resource name %q", got)
	}
	full := "projects/other/topics/alerts"
	if got := c.topicResourceName(full); got != full {
		t.Fatalf("fully qualified names must pass through, got %q", got)
	}
	if got := c.topicResourceName(""); got != "" {
		t.Fatalf("empty topic should yield empty name, got %q", got)
	}
	var nilClient *Client
	if got := nilClient.topicResourceName("alerts"); got != "" {
		t.Fatalf("nil client should yield empty name, got %q", got)
	}
}
