package instance

import "testing"

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv("CARZ_INSTANCE_ID", "api-1")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "api-1" {
		t.Fatalf("expected api-1 got %s", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("CARZ_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.2")
	if got := GetID(); got != "web.2" {
		t.Fatalf("expected web.2 got %s", got)
	}

	t.Setenv("DYNO", "")
	if got := GetID(); got != "local" {
		t.Fatalf("expected local got %s", got)
	}
}
