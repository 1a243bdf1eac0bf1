package contact

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы отправки формы.
const (
	outcomeSent    = "sent"
	outcomePartial = "partial"
	outcomeInvalid = "invalid"
	outcomeLimited = "rate_limited"
	outcomeFailed  = "failed"
	formContact    = "contact"
	formPLUi       = "plui"
)

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ccsa_form_submissions_total",
		Help: "Отправки публичных форм по исходу",
	},
	[]string{"form", "outcome"},
)
