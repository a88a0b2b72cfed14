// Package districts holds the catalog of monitored districts. Each entry
// carries the imagery bounding box and the point used for weather lookups.
package districts

import (
	"sort"

	"krishisat/internal/risk"
)

// District is a monitored agricultural district.
type District struct {
	ID   int       `json:"id"`
	Name string    `json:"name"`
	BBox risk.BBox `json:"bbox"`
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Crop string    `json:"crop"`
}

// Catalog is an immutable, ID-indexed set of districts.
type Catalog struct {
	ordered []District
	byID    map[int]District
}

// NewCatalog indexes the given districts. Later entries with a duplicate ID
// replace earlier ones.
func NewCatalog(list []District) *Catalog {
	byID := make(map[int]District, len(list))
	for _, d := range list {
		byID[d.ID] = d
	}
	ordered := make([]District, 0, len(byID))
	for _, d := range byID {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Catalog{ordered: ordered, byID: byID}
}

// Default returns the built-in Maharashtra catalog.
func Default() *Catalog {
	return NewCatalog(maharashtra)
}

// List returns all districts ordered by ID. The slice is a copy.
func (c *Catalog) List() []District {
	out := make([]District, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Get looks up a district by ID.
func (c *Catalog) Get(id int) (District, bool) {
	d, ok := c.byID[id]
	return d, ok
}

var maharashtra = []District{
	{ID: 1, Name: "Nashik", BBox: risk.BBox{73.6, 19.9, 74.2, 20.4}, Lat: 20.0, Lon: 73.8, Crop: "Wheat, Onion"},
	{ID: 2, Name: "Pune", BBox: risk.BBox{73.7, 18.4, 74.0, 18.7}, Lat: 18.5, Lon: 73.9, Crop: "Sugarcane"},
	{ID: 3, Name: "Nagpur", BBox: risk.BBox{78.9, 21.0, 79.3, 21.3}, Lat: 21.1, Lon: 79.1, Crop: "Orange, Soybean"},
	{ID: 4, Name: "Solapur", BBox: risk.BBox{75.7, 17.5, 76.1, 17.9}, Lat: 17.7, Lon: 75.9, Crop: "Soybean, Jowar"},
	{ID: 5, Name: "Amravati", BBox: risk.BBox{77.6, 20.8, 77.9, 21.1}, Lat: 20.9, Lon: 77.8, Crop: "Cotton, Soybean"},
	{ID: 6, Name: "Aurangabad", BBox: risk.BBox{75.2, 19.7, 75.5, 20.0}, Lat: 19.9, Lon: 75.3, Crop: "Cotton, Soybean"},
	{ID: 7, Name: "Latur", BBox: risk.BBox{76.4, 18.2, 76.7, 18.5}, Lat: 18.4, Lon: 76.5, Crop: "Soybean, Tur"},
	{ID: 8, Name: "Kolhapur", BBox: risk.BBox{74.1, 16.5, 74.4, 16.8}, Lat: 16.7, Lon: 74.2, Crop: "Sugarcane, Rice"},
}
