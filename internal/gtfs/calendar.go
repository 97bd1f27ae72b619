package gtfs

import "time"

// ActiveServices returns the service ids running on date (YYYYMMDD) for the
// given weekday. Base calendar entries whose range contains the date and whose
// weekday flag is set are added first; exceptions for that exact date then add
// or remove ids and always win.
func ActiveServices(calendar []CalendarEntry, exceptions []CalendarException, date string, day time.Weekday) map[string]struct{} {
	active := make(map[string]struct{})
	for _, c := range calendar {
		if !c.Days[day] {
			continue
		}
		// YYYYMMDD compares correctly as a string
		if date < c.StartDate || date > c.EndDate {
			continue
		}
		active[c.ServiceID] = struct{}{}
	}
	for _, e := range exceptions {
		if e.Date != date {
			continue
		}
		switch e.Type {
		case ExceptionAdded:
			active[e.ServiceID] = struct{}{}
		case ExceptionRemoved:
			delete(active, e.ServiceID)
		}
	}
	return active
}

// ActiveServicesOn is ActiveServices for the date of t.
func (s *Schedule) ActiveServicesOn(t time.Time) map[string]struct{} {
	return ActiveServices(s.Calendar, s.Exceptions, ServiceDate(t), t.Weekday())
}
