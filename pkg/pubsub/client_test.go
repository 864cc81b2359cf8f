package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func TestTopicPath(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"market-prod", "", ""},
		{"market-prod", "  order-events ", "projects/market-prod/topics/order-events"},
		{"market-prod", "projects/other/topics/order-events", "projects/other/topics/order-events"},
		{"market-prod", "projects/other/subscriptions/x", "projects/market-prod/topics/projects/other/subscriptions/x"},
		{"", "orders", ""},
	}
	for _, tc := range cases {
		if got := TopicPath(tc.project, tc.name); got != tc.want {
			t.Errorf("TopicPath(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "  "}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	if !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatal("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, errClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
