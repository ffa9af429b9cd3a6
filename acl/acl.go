// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package acl implements the Appliance's authorization descriptor and
// the inheritance-chain evaluator used to turn an ACL plus a requesting
// identity into a permit/deny/indeterminate decision.
package acl

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/adaptorlib/docid"
)

// InheritanceType controls how a DocId's own permit/deny rules combine
// with its parent's decision when InheritFrom is set.
type InheritanceType int

const (
	// LeafDominates: the leaf's own decision wins; the parent is
	// consulted only if the leaf is indeterminate (no matching rule).
	LeafDominates InheritanceType = iota
	// ParentDominates: the parent's decision wins; the leaf is
	// consulted only if the parent is indeterminate.
	ParentDominates
	// AndBothPermit: both leaf and parent must permit.
	AndBothPermit
	// OrEitherPermit: either leaf or parent permitting is sufficient.
	OrEitherPermit
)

// String implements fmt.Stringer for logging.
func (t InheritanceType) String() string {
	switch t {
	case LeafDominates:
		return "leaf-dominates"
	case ParentDominates:
		return "parent-dominates"
	case AndBothPermit:
		return "and-both-permit"
	case OrEitherPermit:
		return "or-either-permit"
	default:
		return "unknown"
	}
}

// ACL is a structured authorization descriptor for one DocId. Empty
// slices mean "no rule on this dimension" — they neither permit nor
// deny.
type ACL struct {
	PermitUsers  []string
	DenyUsers    []string
	PermitGroups []string
	DenyGroups   []string

	// InheritFrom, if non-empty, names a parent DocId whose ACL is
	// consulted per InheritanceType. It must be resolvable by the
	// docid.Codec to a URL — callers should validate this at
	// construction time with Validate.
	InheritFrom     docid.ID
	InheritanceType InheritanceType
}

// NamedResource pairs a DocId with an ACL, pushed to the Appliance to
// propagate an inheritance root independent of any document content.
type NamedResource struct {
	ID  docid.ID
	ACL ACL
}

// ErrUnresolvableParent is returned by Validate when a non-empty
// InheritFrom is rejected by docid.New. docid.New accepts every
// non-empty string, so in practice Validate does not return it; an
// empty InheritFrom means "no parent" and is not checked.
var ErrUnresolvableParent = errors.New("acl: inherit-from parent is not a resolvable docid")

// Validate checks the structural invariant from the data model: a
// non-empty InheritFrom must be a valid DocId.
func (a ACL) Validate() error {
	if a.InheritFrom != "" {
		if _, err := docid.New(string(a.InheritFrom)); err != nil {
			return fmt.Errorf("%w: %v", ErrUnresolvableParent, err)
		}
	}
	return nil
}

// Decision is the outcome of evaluating an ACL (and its ancestors, if
// any) against a requesting identity.
type Decision int

const (
	Indeterminate Decision = iota
	Permit
	Deny
)

// String implements fmt.Stringer for logging.
func (d Decision) String() string {
	switch d {
	case Permit:
		return "permit"
	case Deny:
		return "deny"
	default:
		return "indeterminate"
	}
}

// Store resolves a DocId to its ACL, for walking InheritFrom chains.
// The document handler and the batch authz handler both obtain this
// from the embedding Adaptor (directly, or via a cache the Adaptor
// populates from the same records it pushes as NamedResources).
type Store interface {
	ACL(ctx context.Context, id docid.ID) (ACL, bool, error)
}

// ErrCycle is returned by Evaluate when an InheritFrom chain loops back
// on itself.
var ErrCycle = errors.New("acl: inheritance cycle detected")

// maxChainDepth bounds chain walks even when Store has a latent cycle
// bug that doesn't repeat a DocId exactly (defensive depth cap on top
// of the exact-cycle check).
const maxChainDepth = 64

// Evaluate walks the InheritFrom chain rooted at acl, combining each
// hop's own-rule decision with its ancestor's per InheritanceType, and
// returns the final Decision for (user, groups).
func Evaluate(ctx context.Context, store Store, start ACL, user string, groups []string) (Decision, error) {
	seen := map[docid.ID]struct{}{}
	return evaluate(ctx, store, start, user, groups, seen, 0)
}

func evaluate(ctx context.Context, store Store, a ACL, user string, groups []string, seen map[docid.ID]struct{}, depth int) (Decision, error) {
	own := ownDecision(a, user, groups)

	if a.InheritFrom == "" {
		return own, nil
	}
	if depth >= maxChainDepth {
		return Indeterminate, ErrCycle
	}
	if _, loop := seen[a.InheritFrom]; loop {
		return Indeterminate, ErrCycle
	}
	seen[a.InheritFrom] = struct{}{}

	parentACL, ok, err := store.ACL(ctx, a.InheritFrom)
	if err != nil {
		return Indeterminate, fmt.Errorf("acl: resolve parent %q: %w", a.InheritFrom, err)
	}
	if !ok {
		// Parent not found: fall back to the leaf's own decision, the
		// same way an unresolvable ancestor degrades gracefully rather
		// than failing the whole chain.
		return own, nil
	}

	parent, err := evaluate(ctx, store, parentACL, user, groups, seen, depth+1)
	if err != nil {
		return Indeterminate, err
	}

	return combine(a.InheritanceType, own, parent), nil
}

func combine(t InheritanceType, leaf, parent Decision) Decision {
	switch t {
	case ParentDominates:
		if parent != Indeterminate {
			return parent
		}
		return leaf
	case AndBothPermit:
		if leaf == Permit && parent == Permit {
			return Permit
		}
		if leaf == Deny || parent == Deny {
			return Deny
		}
		return Indeterminate
	case OrEitherPermit:
		if leaf == Permit || parent == Permit {
			return Permit
		}
		if leaf == Deny && parent == Deny {
			return Deny
		}
		return Indeterminate
	case LeafDominates:
		fallthrough
	default:
		if leaf != Indeterminate {
			return leaf
		}
		return parent
	}
}

// ownDecision evaluates only this ACL's own permit/deny sets, ignoring
// inheritance. Deny takes precedence over permit on the same dimension,
// matching the conservative default of the Appliance's own ACL model.
func ownDecision(a ACL, user string, groups []string) Decision {
	if contains(a.DenyUsers, user) {
		return Deny
	}
	for _, g := range groups {
		if contains(a.DenyGroups, g) {
			return Deny
		}
	}
	if contains(a.PermitUsers, user) {
		return Permit
	}
	for _, g := range groups {
		if contains(a.PermitGroups, g) {
			return Permit
		}
	}
	return Indeterminate
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
