// Package memory provides in-process repository implementations used by tests
// and by the server when no database is configured. Stored values are deep
// copied through BSON on the way in and out, so callers never alias stored
// state, mirroring what a round-trip through MongoDB gives them.
package memory

import (
	"go.mongodb.org/mongo-driver/bson"
)

func clone[T any](in *T) *T {
	b, err := bson.Marshal(in)
	if err != nil {
		panic("memory: marshal: " + err.Error())
	}
	var out T
	if err := bson.Unmarshal(b, &out); err != nil {
		panic("memory: unmarshal: " + err.Error())
	}
	return &out
}
