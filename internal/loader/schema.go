package loader

// Table enumerates the loadable tables. Each has a CSV file, a target table
// and an ordered column list; rows are built positionally from that list.
type Table int

const (
	Stations Table = iota
	Persons
	Addresses
	Cards
	Edges
	Owns
	Resides
	Rides
	ShortestRoutes
)

var AllTables = []Table{Stations, Persons, Addresses, Cards, Edges, Owns, Resides, Rides, ShortestRoutes}

type kind int

const (
	kindInt kind = iota
	kindFloat
	kindText
	kindTime
	kindBool
)

// Column maps one CSV header onto one table column.
type Column struct {
	Name     string
	Header   string
	kind     kind
	optional bool
	// generated columns are not read from the file
	generated bool
}

type schema struct {
	name    string
	file    string
	stage   int
	columns []Column
}

var schemas = map[Table]schema{
	Stations: {name: "stations", file: "station.csv", stage: 0, columns: []Column{
		{Name: "id", Header: "id", kind: kindInt},
		{Name: "name", Header: "station", kind: kindText},
		{Name: "latitude", Header: "latitude", kind: kindFloat},
		{Name: "longitude", Header: "longitude", kind: kindFloat},
	}},
	Persons: {name: "persons", file: "people.csv", stage: 0, columns: []Column{
		{Name: "id", Header: "id", kind: kindInt},
		{Name: "first_name", Header: "first_name", kind: kindText},
		{Name: "last_name", Header: "last_name", kind: kindText},
		{Name: "email", Header: "email", kind: kindText, optional: true},
		{Name: "phone", Header: "phone", kind: kindText, optional: true},
		{Name: "age", Header: "age", kind: kindInt, optional: true},
	}},
	Addresses: {name: "addresses", file: "addresses.csv", stage: 0, columns: []Column{
		{Name: "id", Header: "id", kind: kindInt},
		{Name: "address", Header: "address", kind: kindText},
	}},
	Cards: {name: "cards", file: "oysters.csv", stage: 0, columns: []Column{
		{Name: "id", Header: "id", kind: kindInt},
		{Name: "issue_date", Header: "issue_date", kind: kindTime, optional: true},
		{Name: "issue_station", Header: "issue_station", kind: kindInt, optional: true},
		{Name: "is_suspect", Header: "is_suspect", kind: kindBool, optional: true},
	}},
	Edges: {name: "edges", file: "transit_edge.csv", stage: 1, columns: []Column{
		{Name: "from_station", Header: "from", kind: kindInt},
		{Name: "to_station", Header: "to", kind: kindInt},
		{Name: "distance", Header: "distance", kind: kindFloat, optional: true},
		{Name: "time", Header: "time", kind: kindFloat, optional: true},
	}},
	Owns: {name: "owns", file: "has_oyster.csv", stage: 1, columns: []Column{
		{Name: "card_id", Header: "id", kind: kindInt},
		{Name: "person_id", Header: "to_person", kind: kindInt},
	}},
	Resides: {name: "resides", file: "inhabitants.csv", stage: 1, columns: []Column{
		{Name: "address_id", Header: "id", kind: kindInt},
		{Name: "person_id", Header: "to_person", kind: kindInt},
	}},
	Rides: {name: "rides", file: "rides.csv", stage: 1, columns: []Column{
		{Name: "id", kind: kindText, generated: true},
		{Name: "card_id", Header: "oyster_id", kind: kindInt},
		{Name: "station_id", Header: "ride_station", kind: kindInt},
		{Name: "ts", Header: "ride_date", kind: kindTime},
	}},
	ShortestRoutes: {name: "shortest_routes", file: "shortest_path.csv", stage: 1, columns: []Column{
		{Name: "from_station", Header: "start_id", kind: kindInt},
		{Name: "to_station", Header: "end_id", kind: kindInt},
		{Name: "hops", Header: "hops", kind: kindInt},
		{Name: "distance", Header: "distance", kind: kindFloat},
		{Name: "time", Header: "time", kind: kindFloat},
	}},
}

func (t Table) String() string { return schemas[t].name }

// File is the CSV file name the table is read from.
func (t Table) File() string { return schemas[t].file }

func (t Table) Columns() []Column { return schemas[t].columns }

// ColumnNames lists the target columns in row order.
func (t Table) ColumnNames() []string {
	cols := schemas[t].columns
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func (t Table) index(name string) int {
	for i, c := range schemas[t].columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}
