package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "active"
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentCanceled EnrollmentStatus = "canceled"
)

// Enrollment links a student to a paid course
type Enrollment struct {
	UserID    string           `json:"userId" bson:"userId"`
	CourseID  string           `json:"courseId" bson:"courseId"`
	Status    EnrollmentStatus `json:"status" bson:"status"`
	CreatedAt time.Time        `json:"createdAt" bson:"createdAt"`
}
