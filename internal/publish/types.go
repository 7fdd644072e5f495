package publish

import (
	"fmt"
	"time"
)

// ArtifactRef identifies a local build artifact. Immutable once constructed.
type ArtifactRef struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// NewArtifactRef creates an artifact reference.
func NewArtifactRef(name, version string) (ArtifactRef, error) {
	if name == "" {
		return ArtifactRef{}, fmt.Errorf("artifact name must not be empty")
	}
	if version == "" {
		return ArtifactRef{}, fmt.Errorf("artifact version must not be empty")
	}

	return ArtifactRef{Name: name, Version: version}, nil
}

// String returns the local image reference (name:version).
func (a ArtifactRef) String() string {
	return a.Name + ":" + a.Version
}

// PublishIntent is the ordered set of tags requested for one publish
// operation. Tags are unique within one intent; construction fails on
// duplicates.
type PublishIntent struct {
	tags []string
}

// NewPublishIntent validates that the requested tags are unique and
// preserves their order.
func NewPublishIntent(tags ...string) (PublishIntent, error) {
	if len(tags) == 0 {
		return PublishIntent{}, fmt.Errorf("publish intent requires at least one tag")
	}

	seen := make(map[string]bool, len(tags))
	ordered := make([]string, 0, len(tags))
	for _, tag := range tags {
		if seen[tag] {
			return PublishIntent{}, fmt.Errorf("duplicate tag in publish intent: %q", tag)
		}
		seen[tag] = true
		ordered = append(ordered, tag)
	}

	return PublishIntent{tags: ordered}, nil
}

// Tags returns the requested tags in insertion order.
func (i PublishIntent) Tags() []string {
	out := make([]string, len(i.tags))
	copy(out, i.tags)
	return out
}

// Target names where destination references point: a registry endpoint plus
// a namespace (project, org or user path) under it.
type Target struct {
	Registry  string
	Namespace string
}

// DestinationRef is a fully-qualified push target. It carries the full
// artifact identity so the same local artifact can be resolved against
// multiple intents without interference.
type DestinationRef struct {
	Registry  string `json:"registry" yaml:"registry"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Tag       string `json:"tag" yaml:"tag"`
}

// String returns the canonical registry/namespace/name:tag form.
func (d DestinationRef) String() string {
	return fmt.Sprintf("%s/%s/%s:%s", d.Registry, d.Namespace, d.Name, d.Tag)
}

// Status is the terminal state of one destination push.
type Status string

const (
	// StatusPushed means new content was uploaded.
	StatusPushed Status = "pushed"

	// StatusAlreadyExists means the destination already held identical
	// content; re-pushing is a safe no-op.
	StatusAlreadyExists Status = "already-exists"

	// StatusFailed means the push did not complete; Reason explains why.
	StatusFailed Status = "failed"
)

// Outcome is the per-destination result of a publish call.
type Outcome struct {
	Destination DestinationRef `json:"destination" yaml:"destination"`
	Status      Status         `json:"status" yaml:"status"`
	Reason      string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts    int            `json:"attempts" yaml:"attempts"`
	Duration    time.Duration  `json:"duration_ns" yaml:"duration_ns"`
}

// Report aggregates the outcomes of one publish call. Success is true iff no
// outcome failed; every destination yields exactly one outcome.
type Report struct {
	Artifact   ArtifactRef `json:"artifact" yaml:"artifact"`
	Outcomes   []Outcome   `json:"outcomes" yaml:"outcomes"`
	Success    bool        `json:"success" yaml:"success"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time   `json:"finished_at" yaml:"finished_at"`
}

// Failed returns the outcomes that did not succeed.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}
