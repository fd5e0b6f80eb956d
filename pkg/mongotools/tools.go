package mongotools

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongounit/pkg/errors"
)

func SetAll(fieldKVs ...bson.M) bson.M {
	s := make(map[string]any, len(fieldKVs))
	for _, kv := range fieldKVs {
		for k, v := range kv {
			s[k] = v
		}
	}

	return bson.M{"$set": bson.M(s)}
}

func Unset(fields ...string) bson.M {
	u := make(map[string]any, len(fields))
	for _, f := range fields {
		u[f] = ""
	}

	return bson.M{"$unset": bson.M(u)}
}

func Inc(field string, by int64) bson.M {
	return bson.M{"$inc": bson.M{field: by}}
}

func All() bson.M {
	return bson.M{}
}

func ID(id any) bson.M {
	return bson.M{"_id": id}
}

func Path(fields ...string) string {
	return strings.Join(fields, ".")
}

func Field[T any](field string, value *T) bson.M {
	return bson.M{field: value}
}

func FilterFunc[T any](ctx context.Context, c *mongo.Cursor, filterFunc func(T) bool) ([]T, error) {
	defer c.Close(ctx)

	var filtered []T
	for c.Next(ctx) {
		var item T
		err := c.Decode(&item)
		if err != nil {
			return nil, errors.WrapFail(err, "decode item")
		}

		if filterFunc == nil || filterFunc(item) {
			filtered = append(filtered, item)
		}
	}

	return filtered, c.Err()
}
