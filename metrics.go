package main

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Seednode/seekingsystems/games/network"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seekingsystems_sessions_active",
		Help: "Number of game sessions currently held in memory.",
	})

	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seekingsystems_clients_connected",
		Help: "Number of websocket clients currently attached to a game.",
	})

	intentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seekingsystems_intents_rejected_total",
		Help: "Total number of player intents rejected, labelled by intent type.",
	}, []string{"intent"})

	nodesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seekingsystems_nodes_created_total",
		Help: "Total number of nodes created, labelled by color and whether it was a cycle bonus.",
	}, []string{"color", "big"})

	nodesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seekingsystems_nodes_removed_total",
		Help: "Total number of nodes removed, labelled by cause.",
	}, []string{"cause"})

	edgesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seekingsystems_edges_created_total",
		Help: "Total number of connections made between nodes.",
	})

	cycleBonuses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seekingsystems_cycle_bonuses_total",
		Help: "Total number of monochrome cycle bonuses awarded.",
	})

	gamesWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seekingsystems_games_won_total",
		Help: "Total number of games that reached the resilience win condition.",
	})
)

// recordEvent is a session listener feeding the counters above.
func recordEvent(e network.Event) {
	switch e.Kind {
	case network.EventNodeCreated:
		if e.Node != nil {
			nodesCreated.WithLabelValues(e.Node.Color.String(), strconv.FormatBool(e.Node.BigNode)).Inc()
		}
	case network.EventNodeRemoved:
		nodesRemoved.WithLabelValues(e.Cause).Inc()
	case network.EventEdgeCreated:
		edgesCreated.Inc()
	case network.EventCycleBonus:
		cycleBonuses.Inc()
	case network.EventWon:
		gamesWon.Inc()
	}
}
