package model

// Slot is a free, fixed-length interval offered for booking.
type Slot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Display   string `json:"display"`
}
