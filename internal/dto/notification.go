package dto

import "github.com/noah-isme/journal-api/internal/models"

// NotificationQuery filters the notification log.
type NotificationQuery struct {
	ArticleID string
	Status    models.NotificationStatus
	Limit     int
}
