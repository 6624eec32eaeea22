package models

import "time"

type Status string

const (
	StatusPass    Status = "PASS"
	StatusAnomaly Status = "ANOMALY"
	StatusUnknown Status = "UNKNOWN"
)

// Reasons attached to a CheckResult detail.
const (
	ReasonNoPriorRide        = "no_prior_ride"
	ReasonAmbiguousPriorRide = "ambiguous_prior_ride"
	ReasonSameStation        = "same_station"
	ReasonFeasible           = "feasible"
	ReasonImpossibleTravel   = "impossible_travel"
	ReasonNoRoute            = "no_route"
)

// Anomaly is emitted when a card shows up somewhere it could not have
// reached since its previous swipe.
type Anomaly struct {
	CardID          int64     `json:"card_id"`
	FromStation     int64     `json:"from_station"`
	ToStation       int64     `json:"to_station"`
	Elapsed         float64   `json:"elapsed"`
	RequiredMinimum float64   `json:"required_minimum"`
	PrevTimestamp   time.Time `json:"prev_timestamp"`
	NewTimestamp    time.Time `json:"new_timestamp"`
}

type CheckDetail struct {
	Reason          string     `json:"reason"`
	CardID          int64      `json:"card_id"`
	FromStation     int64      `json:"from_station,omitempty"`
	ToStation       int64      `json:"to_station"`
	Elapsed         float64    `json:"elapsed,omitempty"`
	RequiredMinimum float64    `json:"required_minimum,omitempty"`
	PrevTimestamp   *time.Time `json:"prev_timestamp,omitempty"`
	NewTimestamp    time.Time  `json:"new_timestamp"`
}

type CheckResult struct {
	Status  Status      `json:"status"`
	Detail  CheckDetail `json:"detail"`
	Anomaly *Anomaly    `json:"anomaly,omitempty"`
	Ring    *Ring       `json:"ring,omitempty"`
}

// Node kinds and edge kinds of a suspect ring.
const (
	KindPerson  = "person"
	KindAddress = "address"
	KindCard    = "card"

	RelOwns    = "owns"
	RelResides = "resides"
)

type RingNode struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Suspect bool   `json:"suspect"`
}

type RingEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

// Ring is the node/edge graph consumed by the visualisation front end.
type Ring struct {
	Nodes []RingNode `json:"nodes"`
	Edges []RingEdge `json:"edges"`
}

func (r Ring) Empty() bool { return len(r.Nodes) == 0 }

// LinkedCard is another card held by the same owner as a seed card.
type LinkedCard struct {
	PersonID  int64  `json:"person_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CardID    int64  `json:"card_id"`
	IsSuspect bool   `json:"is_suspect"`
}
