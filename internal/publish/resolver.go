package publish

import (
	"fmt"
	"regexp"

	"github.com/distribution/reference"
)

// TagRegexp is unanchored; a stray substring match must not validate a tag.
var anchoredTagRegexp = regexp.MustCompile(`^` + reference.TagRegexp.String() + `$`)

// Resolve computes the ordered destination references for one artifact and
// intent. It is deterministic: the same (artifact, intent, target) always
// yields the same sequence, in the intent's insertion order.
//
// Each tag is validated against the distribution reference grammar before
// any network call; the first violation aborts resolution with
// InvalidTagError. No deduplication happens across artifacts — every
// DestinationRef carries the full artifact identity.
func Resolve(artifact ArtifactRef, intent PublishIntent, target Target) ([]DestinationRef, error) {
	if target.Registry == "" {
		return nil, fmt.Errorf("target registry must not be empty")
	}
	if target.Namespace == "" {
		return nil, fmt.Errorf("target namespace must not be empty")
	}

	repo := fmt.Sprintf("%s/%s/%s", target.Registry, target.Namespace, artifact.Name)
	named, err := reference.ParseNamed(repo)
	if err != nil {
		return nil, fmt.Errorf("invalid destination repository %q: %w", repo, err)
	}

	tags := intent.Tags()
	destinations := make([]DestinationRef, 0, len(tags))
	for _, tag := range tags {
		if !anchoredTagRegexp.MatchString(tag) {
			return nil, InvalidTagError{
				Tag:    tag,
				Reason: "must start with an alphanumeric or underscore and contain only alphanumerics, '.', '-' and '_' (max 128 chars)",
			}
		}

		if _, err := reference.WithTag(named, tag); err != nil {
			return nil, InvalidTagError{Tag: tag, Reason: err.Error()}
		}

		destinations = append(destinations, DestinationRef{
			Registry:  target.Registry,
			Namespace: target.Namespace,
			Name:      artifact.Name,
			Tag:       tag,
		})
	}

	return destinations, nil
}
