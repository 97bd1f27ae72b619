package gtfs

import (
	"math"
	"sort"
)

const EarthRadiusMeters = 6371000.0

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// BuildShapes groups raw points by shape id, sorts them by sequence and fills
// cumulative distances. Feed-supplied distances are used when the first point
// carries one; otherwise distances are summed with Haversine.
func BuildShapes(raw []RawShapePoint) map[string]*Shape {
	grouped := make(map[string][]RawShapePoint)
	for _, p := range raw {
		grouped[p.ShapeID] = append(grouped[p.ShapeID], p)
	}
	shapes := make(map[string]*Shape, len(grouped))
	for id, pts := range grouped {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
		s := &Shape{ID: id, Points: make([]ShapePoint, len(pts))}
		provided := pts[0].Distance != nil
		sum := 0.0
		for i, p := range pts {
			d := 0.0
			switch {
			case provided && p.Distance != nil:
				d = *p.Distance
			case provided:
				// feed skipped a row's distance; keep the previous value
				d = sum
			case i > 0:
				d = sum + Haversine(pts[i-1].Lat, pts[i-1].Lon, p.Lat, p.Lon)
			}
			if d < sum {
				d = sum
			}
			sum = d
			s.Points[i] = ShapePoint{Lat: p.Lat, Lon: p.Lon, Sequence: p.Sequence, CumulativeDistance: d}
		}
		s.TotalDistance = s.Points[len(s.Points)-1].CumulativeDistance
		shapes[id] = s
	}
	return shapes
}

// ProjectStop returns the cumulative distance of the shape point nearest to
// the stop. Linear scan over every point.
func ProjectStop(stop *Stop, shape *Shape) float64 {
	best := math.MaxFloat64
	along := 0.0
	for _, p := range shape.Points {
		d := Haversine(stop.Lat, stop.Lon, p.Lat, p.Lon)
		if d < best {
			best = d
			along = p.CumulativeDistance
		}
	}
	return along
}

// PointAtDistance interpolates a position along the shape at the given
// cumulative distance. Distances outside the shape clamp to its ends.
func (s *Shape) PointAtDistance(dist float64) (lat, lon float64) {
	n := len(s.Points)
	if n == 0 {
		return 0, 0
	}
	if dist <= s.Points[0].CumulativeDistance {
		return s.Points[0].Lat, s.Points[0].Lon
	}
	for j := 0; j+1 < n; j++ {
		a, b := s.Points[j], s.Points[j+1]
		if dist < a.CumulativeDistance || dist > b.CumulativeDistance {
			continue
		}
		span := b.CumulativeDistance - a.CumulativeDistance
		frac := 0.0
		if span > 0 {
			frac = (dist - a.CumulativeDistance) / span
		}
		return a.Lat + (b.Lat-a.Lat)*frac, a.Lon + (b.Lon-a.Lon)*frac
	}
	last := s.Points[n-1]
	return last.Lat, last.Lon
}

// Bearing returns the initial great-circle bearing from the first to the second point, in degrees.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	y := math.Sin(toRad(lon2-lon1)) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) - math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(toRad(lon2-lon1))
	brng := math.Atan2(y, x) * 180 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
