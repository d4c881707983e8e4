package pubsub

import (
	"context"
	"testing"

	"github.com/beatvault/beatvault-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	if got := topicResourceName("proj", "events"); got != "projects/proj/topics/events" {
		t.Fatalf("unexpected topic name %q", got)
	}
	if got := topicResourceName("proj", "projects/other/topics/events"); got != "projects/other/topics/events" {
		t.Fatalf("full topic names should pass through, got %q", got)
	}
	if got := subscriptionResourceName("proj", " sub "); got != "projects/proj/subscriptions/sub" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	if got := topicResourceName("", "events"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
	if got := subscriptionResourceName("proj", ""); got != "" {
		t.Fatalf("expected empty name for blank subscription, got %q", got)
	}
}

func TestNewClientRequiresConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{EventsTopic: "events"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "proj"}, config.PubSubConfig{}, nil); err != errTopicRequired {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("events") != nil {
		t.Fatal("nil client should not return a publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
}
