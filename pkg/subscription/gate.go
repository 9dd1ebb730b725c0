package subscription

import (
	"errors"
	"time"

	"github.com/linqan85-spec/spendo-sub000/pkg/models"
)

// ErrSubscriptionRequired blocks paid features for tenants without an active plan or trial
var ErrSubscriptionRequired = errors.New("subscription required")

// Allowed reports whether the company may use paid features at now: an active subscription,
// or a trial that has not yet ended.
func Allowed(company *models.Company, now time.Time) bool {
	if company == nil {
		return false
	}
	switch company.SubscriptionStatus {
	case models.SubscriptionActive:
		return true
	case models.SubscriptionTrialing:
		return company.TrialEndsAt != nil && company.TrialEndsAt.After(now)
	default:
		return false
	}
}

// CheckAccess returns ErrSubscriptionRequired when Allowed is false
func CheckAccess(company *models.Company, now time.Time) error {
	if !Allowed(company, now) {
		return ErrSubscriptionRequired
	}
	return nil
}
