package repository

import (
	"context"
	"livesession/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnrollmentRepo answers who holds an active enrollment in a course
type EnrollmentRepo interface {
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
	EnrolledUserIDs(ctx context.Context, courseID string) ([]string, error)
	Enroll(ctx context.Context, enrollment *model.Enrollment) error
}

type enrollmentRepo struct {
	collection *mongo.Collection
}

// NewEnrollmentRepo creates a Mongo-backed enrollment lookup
func NewEnrollmentRepo(db *mongo.Database) EnrollmentRepo {
	return &enrollmentRepo{
		collection: db.Collection("enrollments"),
	}
}

func (r *enrollmentRepo) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"userId":   userID,
		"courseId": courseID,
		"status":   model.EnrollmentActive,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *enrollmentRepo) EnrolledUserIDs(ctx context.Context, courseID string) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "userId", bson.M{
		"courseId": courseID,
		"status":   model.EnrollmentActive,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (r *enrollmentRepo) Enroll(ctx context.Context, enrollment *model.Enrollment) error {
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, enrollment)
	return err
}
