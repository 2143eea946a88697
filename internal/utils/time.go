package utils

import (
	"time"
)

// DueDate is when a talent is expected to deliver a booking created at createdAt.
func DueDate(createdAt time.Time, responseTimeHours int) time.Time {
	return createdAt.Add(time.Duration(responseTimeHours) * time.Hour)
}

// UnixTimeToTime converts a Unix timestamp to a time.Time object
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0)
}
