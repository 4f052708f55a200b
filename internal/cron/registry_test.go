package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	if err := registry.Register(jobA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "same"}, nil, &stubJob{name: "same"}); err == nil {
		t.Fatal("expected duplicate job name to be rejected")
	}
}
