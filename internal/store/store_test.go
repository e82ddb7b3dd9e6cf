package store

import (
	"testing"
	"time"
)

func TestInviteIsValidOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	revokedAt := now.Add(-time.Hour)
	revoked := &Invite{RevokedAt: &revokedAt, ExpiresAt: now.Add(time.Hour)}
	if revoked.IsValid(now) {
		t.Fatal("a revoked invite must never be valid, regardless of expiry/use count")
	}

	expired := &Invite{ExpiresAt: now.Add(-time.Minute)}
	if expired.IsValid(now) {
		t.Fatal("an expired invite must not be valid")
	}

	max := 1
	exhausted := &Invite{ExpiresAt: now.Add(time.Hour), MaxUses: &max, UseCount: 1}
	if exhausted.IsValid(now) {
		t.Fatal("an invite at its max use count must not be valid")
	}

	fresh := &Invite{ExpiresAt: now.Add(time.Hour), MaxUses: &max, UseCount: 0}
	if !fresh.IsValid(now) {
		t.Fatal("an unrevoked, unexpired, under-cap invite must be valid")
	}

	unlimited := &Invite{ExpiresAt: now.Add(time.Hour)}
	if !unlimited.IsValid(now) {
		t.Fatal("an invite with no MaxUses must be valid until expiry/revocation")
	}
}

func TestInviteIsValidExpiresAtBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	atBoundary := &Invite{ExpiresAt: now}
	if atBoundary.IsValid(now) {
		t.Fatal("an invite expiring exactly now must not be valid")
	}
}

func TestNormalizeRole(t *testing.T) {
	if NormalizeRole(RoleOwner) != RoleOwner {
		t.Fatal("owner must normalize to owner")
	}
	if NormalizeRole(RoleMember) != RoleMember {
		t.Fatal("member must normalize to member")
	}
	if NormalizeRole(MembershipRole("superadmin")) != RoleMember {
		t.Fatal("an unrecognized stored role must normalize to member, not a new role")
	}
}

func TestAdvisoryLockKeyDeterministic(t *testing.T) {
	id := newID()
	a := advisoryLockKey(id)
	b := advisoryLockKey(id)
	if a != b {
		t.Fatal("advisoryLockKey must be deterministic for the same conversation id")
	}

	other := newID()
	if advisoryLockKey(other) == a {
		t.Fatal("advisoryLockKey collided for two distinct conversation ids (statistically implausible, check the hash)")
	}
}
