package models

import "time"

type Station struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Edge is a directed hop between two stations. Time is in seconds.
type Edge struct {
	From     int64   `json:"from"`
	To       int64   `json:"to"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
}

// ShortestRoute is the minimum-time path between two stations. Distance and
// Hops describe that path; they are not minimised on their own.
type ShortestRoute struct {
	From     int64   `json:"from_station"`
	To       int64   `json:"to_station"`
	Hops     int     `json:"hops"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
}

type Card struct {
	ID           int64     `json:"id"`
	IssueDate    time.Time `json:"issue_date"`
	IssueStation int64     `json:"issue_station"`
	IsSuspect    bool      `json:"is_suspect"`
}

type Ride struct {
	ID        string    `json:"id"`
	CardID    int64     `json:"card_id"`
	StationID int64     `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RideView is a ride joined with its station name, as shown in card history.
type RideView struct {
	Ride
	StationName string `json:"station_name"`
}

type Person struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Age       int    `json:"age,omitempty"`
}

func (p Person) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type Address struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
}

type Owns struct {
	PersonID int64 `json:"person_id"`
	CardID   int64 `json:"card_id"`
}

type Resides struct {
	PersonID  int64 `json:"person_id"`
	AddressID int64 `json:"address_id"`
}

// Swipe is an incoming tap of a card at a station.
type Swipe struct {
	CardID    int64     `json:"card_id"`
	StationID int64     `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
}
