package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linqan85-spec/spendo-sub000/pkg/models"
)

func TestAllowed(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tomorrow := now.Add(24 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		company *models.Company
		want    bool
	}{
		{"active", &models.Company{SubscriptionStatus: models.SubscriptionActive}, true},
		{"active with expired trial", &models.Company{SubscriptionStatus: models.SubscriptionActive, TrialEndsAt: &yesterday}, true},
		{"trialing", &models.Company{SubscriptionStatus: models.SubscriptionTrialing, TrialEndsAt: &tomorrow}, true},
		{"trial ended yesterday", &models.Company{SubscriptionStatus: models.SubscriptionTrialing, TrialEndsAt: &yesterday}, false},
		{"trial ends now", &models.Company{SubscriptionStatus: models.SubscriptionTrialing, TrialEndsAt: &now}, false},
		{"trialing without end", &models.Company{SubscriptionStatus: models.SubscriptionTrialing}, false},
		{"canceled", &models.Company{SubscriptionStatus: models.SubscriptionCanceled}, false},
		{"canceled with future trial", &models.Company{SubscriptionStatus: models.SubscriptionCanceled, TrialEndsAt: &tomorrow}, false},
		{"past due", &models.Company{SubscriptionStatus: models.SubscriptionPastDue}, false},
		{"unpaid", &models.Company{SubscriptionStatus: models.SubscriptionUnpaid}, false},
		{"nil company", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.company, now))
		})
	}
}

func TestCheckAccess(t *testing.T) {
	now := time.Now()
	assert.ErrorIs(t, CheckAccess(&models.Company{SubscriptionStatus: models.SubscriptionCanceled}, now), ErrSubscriptionRequired)
	assert.NoError(t, CheckAccess(&models.Company{SubscriptionStatus: models.SubscriptionActive}, now))
}
