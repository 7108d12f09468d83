package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = bson.A{"int", "long"}

var LoanValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "user_id", "device_id", "status", "start_date", "due_date", "created_at", "version"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":            bson.M{"bsonType": "string"},
			"user_id":        bson.M{"bsonType": "string", "maxLength": 128},
			"device_id":      bson.M{"bsonType": "string", "maxLength": 128},
			"reservation_id": bson.M{"bsonType": "string", "maxLength": 128},
			"status": bson.M{
				"enum": []string{"Waitlisted", "Pending", "Active", "Overdue", "Cancelled", "Returned"},
			},
			"start_date":    bson.M{"bsonType": "date"},
			"due_date":      bson.M{"bsonType": "date"},
			"created_at":    bson.M{"bsonType": "date"},
			"updated_at":    bson.M{"bsonType": "date"},
			"activated_at":  bson.M{"bsonType": "date"},
			"returned_at":   bson.M{"bsonType": "date"},
			"cancelled_at":  bson.M{"bsonType": "date"},
			"was_overdue":   bson.M{"bsonType": "bool"},
			"cancel_reason": bson.M{"bsonType": "string", "maxLength": 500},
			"notes":         bson.M{"bsonType": "string", "maxLength": 1000},
			"version":       bson.M{"bsonType": integer, "minimum": 1},
		},
	},
}
