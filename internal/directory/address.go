package directory

import (
	"strings"

	"github.com/sells-group/school-atlas/internal/model"
)

// Address is the parsed "City, ST 12345-6789" line of a detail page.
type Address struct {
	City    model.Field[string]
	State   model.Field[string]
	Zipcode model.Field[string]
}

// ParseAddress splits a locality line. The city is the text before the first
// comma; the state and zipcode are the first two whitespace tokens after it,
// with the zipcode cut to five characters. When the second segment does not
// have that shape, state and zipcode are both malformed and the city stands.
func ParseAddress(line string) Address {
	line = strings.TrimSpace(line)
	if line == "" {
		return Address{
			City:    model.Absent[string](model.ErrMissing),
			State:   model.Absent[string](model.ErrMissing),
			Zipcode: model.Absent[string](model.ErrMissing),
		}
	}

	parts := strings.Split(line, ",")
	var a Address
	if city := strings.TrimSpace(parts[0]); city != "" {
		a.City = model.Some(city)
	} else {
		a.City = model.Absent[string](model.ErrMissing)
	}

	if len(parts) < 2 {
		a.State = model.Absent[string](model.ErrMalformed)
		a.Zipcode = model.Absent[string](model.ErrMalformed)
		return a
	}
	tokens := strings.Fields(parts[1])
	if len(tokens) < 2 {
		a.State = model.Absent[string](model.ErrMalformed)
		a.Zipcode = model.Absent[string](model.ErrMalformed)
		return a
	}

	zip := tokens[1]
	if len(zip) > 5 {
		zip = zip[:5]
	}
	a.State = model.Some(tokens[0])
	a.Zipcode = model.Some(zip)
	return a
}
