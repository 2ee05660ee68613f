package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_transitions_total",
			Help: "Transition attempts by outcome.",
		},
		[]string{"outcome"},
	)

	statIncrementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_stat_increments_total",
			Help: "Stat increments applied by completed transitions.",
		},
		[]string{"stat"},
	)

	usersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_users_created_total",
		Help: "Players registered.",
	})

	dailyBonusesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_daily_bonuses_total",
		Help: "Daily bonuses granted.",
	})

	spentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_balance_spent_total",
		Help: "Currency debited by spend.",
	})
)

const (
	outcomeOK          = "ok"
	outcomeReplayed    = "replayed"
	outcomeInvalid     = "invalid_choice"
	outcomeBrokenStory = "scene_not_found"
	outcomeBusy        = "busy"
	outcomeError       = "error"
)
