package repo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const fieldDeletedAt = "deleted_at"

type Filter func(bson.M)

func ByID(id string) Filter {
	return func(f bson.M) {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			f["_id"] = oid
			return
		}
		f["_id"] = id
	}
}

func ByField(field string, value any) Filter {
	return func(f bson.M) {
		f[field] = value
	}
}

// visibility selects documents by soft-delete state.
type visibility int

const (
	alive visibility = iota
	trashed
	everything
)

func buildFilter(v visibility, filters ...Filter) bson.M {
	f := bson.M{}
	for _, apply := range filters {
		apply(f)
	}

	// nil matches both a null stamp and a missing field
	switch v {
	case alive:
		f[fieldDeletedAt] = nil
	case trashed:
		f[fieldDeletedAt] = bson.M{"$ne": nil}
	}

	return f
}
