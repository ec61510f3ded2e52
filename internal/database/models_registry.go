package database

import "kindkart/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Item{},
		&models.Request{},
		&models.StatusChange{},
		&models.RequestMessage{},
	}
}
