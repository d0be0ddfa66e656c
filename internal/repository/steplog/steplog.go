package steplog

import (
	"context"
	"fmt"
	"log"
	"time"

	mg "movefines/internal/config/connections/mongo"
	"movefines/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const StepLogCollection = "task_step_log"

type Item struct {
	QueueElementID string    `bson:"queue_element_id" json:"queue_element_id"`
	Reference      string    `bson:"reference" json:"reference"`
	Milestone      string    `bson:"milestone" json:"milestone"`
	Status         string    `bson:"status" json:"status"`
	Errors         string    `bson:"errors" json:"errors"`
	StartedAt      time.Time `bson:"started_at" json:"started_at"`
	DurationMS     int64     `bson:"duration_ms" json:"duration_ms"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

type Journal struct {
	mg *mg.Mongo
}

func NewJournal(m *mg.Mongo) *Journal {
	return &Journal{mg: m}
}

func (j *Journal) collection() (*mongo.Collection, error) {
	if j == nil || j.mg == nil || j.mg.Database == nil {
		return nil, mongo.ErrClientDisconnected
	}
	return j.mg.Database.Collection(StepLogCollection), nil
}

func itemFromEntry(e models.StepEntry) Item {
	return Item{
		QueueElementID: e.QueueElementID,
		Reference:      e.Reference,
		Milestone:      string(e.Milestone),
		Status:         string(e.Status),
		Errors:         e.Errors,
		StartedAt:      e.StartedAt.UTC(),
		DurationMS:     e.Duration.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
}

func (j *Journal) Insert(ctx context.Context, e models.StepEntry) (*mongo.InsertOneResult, error) {
	coll, err := j.collection()
	if err != nil {
		return nil, err
	}
	item := itemFromEntry(e)

	doc := bson.D{
		{Key: "queue_element_id", Value: item.QueueElementID},
		{Key: "reference", Value: item.Reference},
		{Key: "milestone", Value: item.Milestone},
		{Key: "status", Value: item.Status},
		{Key: "errors", Value: item.Errors},
		{Key: "started_at", Value: item.StartedAt},
		{Key: "duration_ms", Value: item.DurationMS},
		{Key: "created_at", Value: item.CreatedAt},
	}

	return coll.InsertOne(ctx, doc, options.InsertOne())
}

// Record writes the entry and only logs a failure; the journal must
// never stop a step that already happened in an external system.
func (j *Journal) Record(ctx context.Context, e models.StepEntry) {
	if _, err := j.Insert(ctx, e); err != nil {
		log.Printf("[STEP][MONGO][ERR] qe=%s milestone=%s status=%s err=%v",
			e.QueueElementID, e.Milestone, e.Status, err)
	}
}

// History lists the attempts for one queue element, oldest first.
func (j *Journal) History(ctx context.Context, queueElementID string) ([]Item, error) {
	coll, err := j.collection()
	if err != nil {
		return nil, err
	}
	if queueElementID == "" {
		return nil, fmt.Errorf("empty queueElementID")
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	cur, err := coll.Find(ctx, bson.M{"queue_element_id": queueElementID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]Item, 0)
	for cur.Next(ctx) {
		var it Item
		if err := cur.Decode(&it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, cur.Err()
}

// EnsureIndexes keeps History lookups cheap.
func (j *Journal) EnsureIndexes(ctx context.Context) error {
	coll, err := j.collection()
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "queue_element_id", Value: 1}, {Key: "started_at", Value: 1}},
	})
	return err
}
