package pubsub

import (
	"context"
	"testing"

	"github.com/carzavenue/backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{project: "carz-prod", name: "ledger-events", want: "projects/carz-prod/topics/ledger-events"},
		{project: "carz-prod", name: " projects/other/topics/x ", want: "projects/other/topics/x"},
		{project: "", name: "ledger-events", want: ""},
		{project: "carz-prod", name: "  ", want: ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{LedgerTopic: "t"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); err != errTopicRequired {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatal("nil client should not return publishers")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}
