// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package authz provides the coarse authorization gate in front of the
// operator-facing admin surface (manual full-listing push, feed
// status, coarse policy edits), using Casbin. This sits above, and is
// independent of, per-DocId ACL evaluation (internal/acl), which
// decides what an end user authenticated via internal/samlauth may
// see.
//
// # RBAC Model
//
// The embedded model (model.conf) is a plain RBAC ACL with role
// inheritance:
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
//
// # Policy Definition
//
// The embedded policy (policy.csv) defines three roles over three
// objects (push, policy, status):
//
//	p, admin, push, trigger
//	p, admin, policy, read
//	p, admin, policy, write
//	p, admin, status, read
//	p, operator, push, trigger
//	p, operator, status, read
//	p, viewer, status, read
//
// Operators assign roles to principals with g rows, either in a
// deployment-supplied policy file or at runtime via
// Enforcer.AddRoleForUser.
//
// # Usage Example
//
//	cfg := authz.DefaultEnforcerConfig()
//	cfg.ModelPath = securityCfg.Casbin.ModelPath
//	cfg.PolicyPath = securityCfg.Casbin.PolicyPath
//	enforcer, err := authz.NewEnforcer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer enforcer.Close()
//
//	allowed, err := enforcer.EnforceWithRoles("alice", []string{"operator"}, "push", "trigger")
//
// # Embedded Policies
//
// The package embeds a default model and policy for zero-configuration
// setup; EnforcerConfig.ModelPath/PolicyPath override them with
// deployment-supplied files.
//
// # Caching
//
// The enforcer includes an enforcement decision cache: key
// (subject, object, action), automatic invalidation on policy/role
// changes, configurable TTL with periodic cleanup.
//
// # Thread Safety
//
// All components are safe for concurrent use: Casbin's SyncedEnforcer
// provides built-in synchronization, the cache uses sync.RWMutex, and
// policy auto-reload runs in its own goroutine.
//
// # See Also
//
//   - internal/auth: issues the operator bearer tokens this package authorizes
//   - internal/acl: per-DocId end-user authorization
//   - github.com/casbin/casbin/v2: underlying authorization library
package authz
