package gtfs

type Stop struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ParentID    string  `json:"parentId,omitempty"`
	StationCode string  `json:"stationCode,omitempty"` // 3-char live feed code, if any
}

type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
}

type ShapePoint struct {
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	Sequence           int     `json:"seq"`
	CumulativeDistance float64 `json:"dist"` // meters from shape start
}

type Shape struct {
	ID            string       `json:"id"`
	Points        []ShapePoint `json:"points"`
	TotalDistance float64      `json:"totalDistance"`
}

// RawShapePoint is a shapes.txt row as delivered by a loader.
type RawShapePoint struct {
	ShapeID  string   `json:"shapeId"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Sequence int      `json:"seq"`
	Distance *float64 `json:"dist,omitempty"` // nil when the feed has no shape_dist_traveled
}

type StopTime struct {
	StopID        string   `json:"stopId"`
	Sequence      int      `json:"seq"`
	ArrivalSec    int      `json:"arrival"`   // seconds since midnight (can exceed 24h)
	DepartureSec  int      `json:"departure"` // seconds since midnight (can exceed 24h)
	ShapeDistance *float64 `json:"shapeDist,omitempty"`
}

type Trip struct {
	ID            string     `json:"id"`
	RouteID       string     `json:"routeId"`
	ServiceID     string     `json:"serviceId"`
	ShapeID       string     `json:"shapeId,omitempty"`
	DirectionID   int        `json:"directionId"`
	ServiceNumber string     `json:"serviceNumber,omitempty"`
	StopTimes     []StopTime `json:"stopTimes"`
}

func (t *Trip) FirstStop() *StopTime {
	if len(t.StopTimes) == 0 {
		return nil
	}
	return &t.StopTimes[0]
}

func (t *Trip) LastStop() *StopTime {
	if len(t.StopTimes) == 0 {
		return nil
	}
	return &t.StopTimes[len(t.StopTimes)-1]
}

type CalendarEntry struct {
	ServiceID string  `json:"serviceId"`
	Days      [7]bool `json:"days"` // indexed by time.Weekday, Sunday first
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
}

type ExceptionType int

const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

type CalendarException struct {
	ServiceID string        `json:"serviceId"`
	Date      string        `json:"date"`
	Type      ExceptionType `json:"type"`
}

// Feed is the loader output: flat collections, before indexing.
type Feed struct {
	Stops       []Stop              `json:"stops"`
	Routes      []Route             `json:"routes"`
	Trips       []Trip              `json:"trips"`
	ShapePoints []RawShapePoint     `json:"shapePoints"`
	Calendar    []CalendarEntry     `json:"calendar"`
	Exceptions  []CalendarException `json:"calendarDates"`
}
