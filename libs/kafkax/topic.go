package kafkax

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrUnsupportedVersion is returned for events whose major version the consumer does not know.
var ErrUnsupportedVersion = errors.New("unsupported event version")

// Topic is a parsed `{domain}.{event}.v{major}` topic name.
type Topic struct {
	Domain string
	Event  string
	Major  uint64
}

func TopicName(domain, event string, major uint64) string {
	return fmt.Sprintf("%s.%s.v%d", domain, event, major)
}

func (t Topic) String() string { return TopicName(t.Domain, t.Event, t.Major) }

func ParseTopic(name string) (Topic, error) {
	first := strings.Index(name, ".")
	last := strings.LastIndex(name, ".")
	if first <= 0 || last <= first+1 || last == len(name)-1 {
		return Topic{}, fmt.Errorf("topic %q: want {domain}.{event}.v{major}", name)
	}
	suffix := name[last+1:]
	if !strings.HasPrefix(suffix, "v") {
		return Topic{}, fmt.Errorf("topic %q: missing version suffix", name)
	}
	major, err := strconv.ParseUint(suffix[1:], 10, 64)
	if err != nil {
		return Topic{}, fmt.Errorf("topic %q: bad major version: %w", name, err)
	}
	return Topic{Domain: name[:first], Event: name[first+1 : last], Major: major}, nil
}

// VersionGate accepts event schema versions matching a semver constraint such as "^1".
// Minor and patch bumps pass; unknown majors fail closed.
type VersionGate struct {
	constraint *semver.Constraints
}

func NewVersionGate(constraint string) (*VersionGate, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, err
	}
	return &VersionGate{constraint: c}, nil
}

// Check validates the schema_version header, falling back to the topic major when the
// header is absent.
func (g *VersionGate) Check(topic Topic, schemaVersion string) error {
	raw := schemaVersion
	if raw == "" {
		raw = strconv.FormatUint(topic.Major, 10)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, raw, err)
	}
	if v.Major() != topic.Major {
		return fmt.Errorf("%w: schema %s on topic %s", ErrUnsupportedVersion, v, topic)
	}
	if !g.constraint.Check(v) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
	return nil
}
