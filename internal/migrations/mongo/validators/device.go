package validators

import "go.mongodb.org/mongo-driver/bson"

// SnapshotValidator only checks types. Counts are clamped by the writer.
var SnapshotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "available_count", "max_device_count"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":              bson.M{"bsonType": "string"},
			"brand":            bson.M{"bsonType": "string"},
			"model":            bson.M{"bsonType": "string"},
			"category":         bson.M{"bsonType": "string"},
			"available_count":  bson.M{"bsonType": integer, "minimum": 0},
			"max_device_count": bson.M{"bsonType": integer, "minimum": 0},
			"last_updated":     bson.M{"bsonType": "date"},
		},
	},
}

var DeviceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"brand", "model", "category", "available_count", "max_device_count", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":              bson.M{"bsonType": "objectId"},
			"brand":            bson.M{"bsonType": "string", "maxLength": 100},
			"model":            bson.M{"bsonType": "string", "maxLength": 100},
			"category":         bson.M{"bsonType": "string", "maxLength": 50},
			"description":      bson.M{"bsonType": "string", "maxLength": 2000},
			"available_count":  bson.M{"bsonType": integer, "minimum": 0},
			"max_device_count": bson.M{"bsonType": integer, "minimum": 0, "maximum": 10000},
			"image_url":        bson.M{"bsonType": "string"},
			"file_url":         bson.M{"bsonType": "string"},
			"created_at":       bson.M{"bsonType": "date"},
			"updated_at":       bson.M{"bsonType": "date"},
		},
	},
}
