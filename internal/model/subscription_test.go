package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allPlans = []string{PlanFree, PlanPro, PlanElite}

var allStatuses = []string{StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusExpired}

func TestSubscriptionAccessPredicates(t *testing.T) {
	t.Run("active elite has every access level", func(t *testing.T) {
		s := Subscription{Plan: PlanElite, Status: StatusActive}
		assert.True(t, s.IsActive())
		assert.True(t, s.HasProAccess())
		assert.True(t, s.HasEliteAccess())
	})

	t.Run("trialing pro has pro but not elite access", func(t *testing.T) {
		s := Subscription{Plan: PlanPro, Status: StatusTrialing}
		assert.True(t, s.IsActive())
		assert.True(t, s.HasProAccess())
		assert.False(t, s.HasEliteAccess())
	})

	t.Run("active free has no paid access", func(t *testing.T) {
		s := Subscription{Plan: PlanFree, Status: StatusActive}
		assert.True(t, s.IsActive())
		assert.False(t, s.HasProAccess())
		assert.False(t, s.HasEliteAccess())
	})

	t.Run("canceled elite has no access at all", func(t *testing.T) {
		s := Subscription{Plan: PlanElite, Status: StatusCanceled}
		assert.False(t, s.IsActive())
		assert.False(t, s.HasProAccess())
		assert.False(t, s.HasEliteAccess())
	})
}

// HasEliteAccess implies HasProAccess implies IsActive, for every
// reachable plan/status combination.
func TestAccessImplicationChain(t *testing.T) {
	for _, plan := range allPlans {
		for _, status := range allStatuses {
			s := Subscription{Plan: plan, Status: status}

			if s.HasEliteAccess() {
				assert.Truef(t, s.HasProAccess(), "plan=%s status=%s: elite access without pro access", plan, status)
			}
			if s.HasProAccess() {
				assert.Truef(t, s.IsActive(), "plan=%s status=%s: pro access on inactive subscription", plan, status)
			}
		}
	}
}
