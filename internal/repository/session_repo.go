package repository

import (
	"context"
	"errors"
	"livesession/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionRepo is the document store for session records
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// PutSession replaces the record only if its stored version equals expectedVersion.
	// On success session.Version is advanced.
	PutSession(ctx context.Context, session *model.Session, expectedVersion int64) error
	QueryAssignedSessions(ctx context.Context, userID string, kind model.SessionKind) ([]*model.Session, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewSessionRepo creates a Mongo-backed session repository
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) PutSession(ctx context.Context, session *model.Session, expectedVersion int64) error {
	next := *session
	next.Version = expectedVersion + 1

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID, "version": expectedVersion}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": session.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	session.Version = next.Version
	return nil
}

func (r *sessionRepo) QueryAssignedSessions(ctx context.Context, userID string, kind model.SessionKind) ([]*model.Session, error) {
	filter := bson.M{
		"kind": kind,
		"$or": bson.A{
			bson.M{"assignedUserIds": userID},
			bson.M{"hostId": userID},
		},
		"status": bson.M{"$in": bson.A{model.SessionScheduled, model.SessionLive}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
