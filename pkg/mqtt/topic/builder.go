package topic

import (
	"strings"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
type Builder struct {
	// root is the base namespace for all topics (e.g., "gcs/v1").
	root string
}

// NewBuilder creates a new instance of Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Build returns {root}/{segment}/{id}, or {root}/{segment} when id is empty.
func (b *Builder) Build(segment, id string) string {
	if id == "" {
		return b.root + "/" + segment
	}
	return b.root + "/" + segment + "/" + id
}

// Wildcard returns the filter matching segment for every vehicle.
// Result: {root}/{segment}/+
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}

// Parse splits a topic built by this builder into its segment and id.
func (b *Builder) Parse(topic string) (segment, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.root+"/")
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "/")
	if i < 0 {
		return rest, "", true
	}
	return rest[:i], rest[i+1:], true
}
