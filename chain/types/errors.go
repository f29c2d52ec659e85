package types

import "fmt"

// IntegrityViolation represents a broken core invariant (e.g. burned
// decreasing, or gpu_tasks > tasks). It is fatal: the node must halt and
// refuse to advance rather than swallow it. Every package that can detect
// one panics with this type rather than returning an ordinary error; the
// host (cmd/synapse-node) recovers at the top of its block loop only to
// log and exit non-zero, never to keep going.
type IntegrityViolation struct {
	Component string
	Detail    string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", e.Component, e.Detail)
}

// PanicIntegrity panics with an *IntegrityViolation built from component
// and detail. Centralized so every call site reads the same way.
func PanicIntegrity(component, detail string) {
	panic(&IntegrityViolation{Component: component, Detail: detail})
}
