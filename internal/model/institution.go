package model

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Institution is one school record extracted from a directory detail page.
// Every field is independently optional.
type Institution struct {
	Name                      Field[string]  `json:"name"`
	StudentTotal              Field[int]     `json:"student_total"`
	InternationalStudentTotal Field[int]     `json:"international_student_total"`
	FacultyTotal              Field[int]     `json:"faculty_total"`
	Tuition                   Field[int]     `json:"tuition"`
	Street                    Field[string]  `json:"street"`
	City                      Field[string]  `json:"city"`
	State                     Field[string]  `json:"state"`
	Zipcode                   Field[string]  `json:"zipcode"`
	Locale                    Field[string]  `json:"locale"`
	Longitude                 Field[float64] `json:"longitude"`
	Latitude                  Field[float64] `json:"latitude"`

	SourceURL string `json:"source_url"`
	Region    string `json:"region"`
}

// Absences returns the absent fields keyed by column name, with the reason
// each one is missing.
func (i Institution) Absences() map[string]error {
	out := make(map[string]error)
	add := func(name string, reason error) {
		if reason != nil {
			out[name] = reason
		}
	}
	add("name", i.Name.Reason())
	add("student_total", i.StudentTotal.Reason())
	add("international_student_total", i.InternationalStudentTotal.Reason())
	add("faculty_total", i.FacultyTotal.Reason())
	add("tuition", i.Tuition.Reason())
	add("street", i.Street.Reason())
	add("city", i.City.Reason())
	add("state", i.State.Reason())
	add("zipcode", i.Zipcode.Reason())
	add("locale", i.Locale.Reason())
	add("longitude", i.Longitude.Reason())
	add("latitude", i.Latitude.Reason())
	return out
}

// Coordinate returns the record's location when both components are present.
func (i Institution) Coordinate() (Coordinate, bool) {
	lat, okLat := i.Latitude.Get()
	lng, okLng := i.Longitude.Get()
	if !okLat || !okLng {
		return Coordinate{}, false
	}
	return Coordinate{Latitude: lat, Longitude: lng}, true
}
