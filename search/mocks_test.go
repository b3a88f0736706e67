package search

import (
	"github.com/arthur-debert/nanocache/types"
)

// entityList implements EntityProvider for testing
type entityList []types.Entity

func (l entityList) Snapshot() []types.Entity {
	return l
}

// sampleAddresses returns a small address book
func sampleAddresses() entityList {
	return entityList{
		{ID: "a1", IsDefault: types.Bool(true), Payload: types.Payload{"name": "Home", "street": "12 Rue des Lilas", "city": "Lyon", "zip": "69003"}},
		{ID: "a2", Payload: types.Payload{"name": "Work", "street": "5 Quai Perrache", "city": "Lyon", "zip": "69002"}},
		{ID: "a3", Payload: types.Payload{"name": "Parents", "street": "3 Chemin Vert", "city": "Annecy", "zip": "74000"}},
		{ID: "a4", Payload: types.Payload{"name": "Lyon Office", "floor": 3, "tags": []interface{}{"lyon"}}},
		{ID: "a5"},
	}
}
