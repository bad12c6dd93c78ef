package vectorstore

import (
	"fmt"
	"strings"
)

// Namespace is a disjoint partition of stored chunks.
type Namespace string

const (
	Reference      Namespace = "reference"
	IncidentSample Namespace = "incident-sample"
)

// Namespaces lists every known namespace.
var Namespaces = []Namespace{Reference, IncidentSample}

// Prefix is the key prefix the namespace occupies in the backing store.
func (n Namespace) Prefix() string {
	switch n {
	case Reference:
		return "sop"
	case IncidentSample:
		return "deviation"
	}
	return ""
}

func (n Namespace) Valid() bool { return n.Prefix() != "" }

// ParseNamespace accepts either the namespace name or its key prefix.
func ParseNamespace(s string) (Namespace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reference", "sop", "sops":
		return Reference, nil
	case "incident-sample", "incident_sample", "deviation", "deviations":
		return IncidentSample, nil
	}
	return "", &ValidationError{Field: "namespace", Reason: fmt.Sprintf("unknown namespace %q", s)}
}

// ValidationError rejects a request before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
