package model

// DetailPage references one institution's page on the directory site.
type DetailPage struct {
	URL  string `json:"url"`  // absolute
	Name string `json:"name"` // as shown on the listing card
}

// Region is one row of the census region reference list. Name drives the
// directory crawl; the rest is carried through to the states table.
type Region struct {
	Name     string `json:"state"`
	Code     string `json:"state_code"`
	Census   string `json:"region"`
	Division string `json:"division"`
}
