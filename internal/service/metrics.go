package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	participantsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliberatelab_participants_created_total",
		Help: "Participants created across all experiments.",
	})
	stagesUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliberatelab_stages_unlocked_total",
		Help: "Cohort stage unlock events.",
	})
	transfersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliberatelab_transfers_accepted_total",
		Help: "Cohort transfers accepted by participants.",
	})
	agentActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deliberatelab_agent_actions_total",
		Help: "Automated participant actions by stage kind.",
	}, []string{"kind"})
)
