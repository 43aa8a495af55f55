package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/torqueops/dispatch/internal/model"
)

const opTimeout = 5 * time.Second

type MongoStore struct {
	jobs    *mongo.Collection
	bids    *mongo.Collection
	vendors *mongo.Collection
	charges *mongo.Collection
	outbox  *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		jobs:    db.Collection("jobs"),
		bids:    db.Collection("bids"),
		vendors: db.Collection("vendors"),
		charges: db.Collection("commission_charges"),
		outbox:  db.Collection("notification_outbox"),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "vendor_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "customer_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}

	// One bid per vendor per job.
	_, err = s.bids.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "job_id", Value: 1}, {Key: "vendor_phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	// One settlement row per job.
	_, err = s.charges.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "job_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.outbox.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Jobs

func (s *MongoStore) CreateJob(ctx context.Context, job model.Job) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.jobs.InsertOne(ctx, job)
	return err
}

func (s *MongoStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	return s.findJob(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetJobByVendorToken(ctx context.Context, token string) (model.Job, error) {
	if token == "" {
		return model.Job{}, ErrNotFound
	}
	return s.findJob(ctx, bson.M{"vendor_token": token})
}

func (s *MongoStore) GetJobByCustomerToken(ctx context.Context, token string) (model.Job, error) {
	if token == "" {
		return model.Job{}, ErrNotFound
	}
	return s.findJob(ctx, bson.M{"customer_token": token})
}

func (s *MongoStore) findJob(ctx context.Context, filter bson.M) (model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var job model.Job
	err := s.jobs.FindOne(ctx, filter).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Job{}, ErrNotFound
		}
		return model.Job{}, err
	}
	return job, nil
}

func (s *MongoStore) UpdateJob(ctx context.Context, job model.Job) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimBidSelection is the conditional write that closes the selection
// race: the update only matches when the job has no selected bid yet or
// already carries this exact bid id.
func (s *MongoStore) ClaimBidSelection(ctx context.Context, jobID, bidID string) (model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"_id": jobID,
		"$or": []bson.M{
			{"selected_bid_id": bson.M{"$exists": false}},
			{"selected_bid_id": ""},
			{"selected_bid_id": bidID},
		},
	}
	update := bson.M{"$set": bson.M{
		"selected_bid_id": bidID,
		"bidding_open":    false,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var job model.Job
	err := s.jobs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return model.Job{}, err
	}

	// Distinguish "missing job" from "lost the race".
	if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
		return model.Job{}, getErr
	}
	return model.Job{}, ErrSelectionConflict
}

func (s *MongoStore) ListOpenJobs(ctx context.Context) ([]model.Job, error) {
	filter := bson.M{
		"status":    bson.M{"$ne": model.JobCompleted},
		"cancelled": bson.M{"$ne": true},
	}
	return s.listJobs(ctx, filter)
}

func (s *MongoStore) ListJobsSince(ctx context.Context, since time.Time) ([]model.Job, error) {
	return s.listJobs(ctx, bson.M{"created_at": bson.M{"$gte": since}})
}

func (s *MongoStore) listJobs(ctx context.Context, filter bson.M) ([]model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.jobs.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.Job
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Bids

func (s *MongoStore) UpsertBid(ctx context.Context, bid model.Bid) (model.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"job_id": bid.JobID, "vendor_phone": bid.VendorPhone}
	update := bson.M{
		"$set": bson.M{
			"vendor_id":   bid.VendorID,
			"vendor_name": bid.VendorName,
			"eta_minutes": bid.ETAMinutes,
			"price":       bid.Price,
			"updated_at":  bid.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":          bid.ID,
			"job_id":       bid.JobID,
			"vendor_phone": bid.VendorPhone,
			"created_at":   bid.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out model.Bid
	if err := s.bids.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return model.Bid{}, err
	}
	return out, nil
}

func (s *MongoStore) GetBid(ctx context.Context, id string) (model.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var bid model.Bid
	err := s.bids.FindOne(ctx, bson.M{"_id": id}).Decode(&bid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Bid{}, ErrNotFound
		}
		return model.Bid{}, err
	}
	return bid, nil
}

func (s *MongoStore) ListBidsByJob(ctx context.Context, jobID string) ([]model.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.bids.Find(ctx, bson.M{"job_id": jobID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.Bid
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Vendors

func (s *MongoStore) PutVendor(ctx context.Context, vendor model.Vendor) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.vendors.ReplaceOne(ctx, bson.M{"_id": vendor.ID}, vendor, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetVendor(ctx context.Context, id string) (model.Vendor, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var vendor model.Vendor
	err := s.vendors.FindOne(ctx, bson.M{"_id": id}).Decode(&vendor)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Vendor{}, ErrNotFound
		}
		return model.Vendor{}, err
	}
	return vendor, nil
}

func (s *MongoStore) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.vendors.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.Vendor
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Charges

func (s *MongoStore) UpsertChargeByJob(ctx context.Context, charge model.CommissionCharge) (model.CommissionCharge, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"job_id": charge.JobID}
	update := bson.M{
		"$set": bson.M{
			"vendor_id":         charge.VendorID,
			"reported_amount":   charge.ReportedAmount,
			"commission_rate":   charge.CommissionRate,
			"commission_amount": charge.CommissionAmount,
			"status":            charge.Status,
			"processor":         charge.Processor,
			"processor_ref":     charge.ProcessorRef,
			"failure_reason":    charge.FailureReason,
			"processed_at":      charge.ProcessedAt,
		},
		"$setOnInsert": bson.M{
			"_id":          charge.ID,
			"job_id":       charge.JobID,
			"requested_at": charge.RequestedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out model.CommissionCharge
	if err := s.charges.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return model.CommissionCharge{}, err
	}
	return out, nil
}

func (s *MongoStore) GetChargeByJob(ctx context.Context, jobID string) (model.CommissionCharge, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var charge model.CommissionCharge
	err := s.charges.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&charge)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.CommissionCharge{}, ErrNotFound
		}
		return model.CommissionCharge{}, err
	}
	return charge, nil
}

// Outbox

func (s *MongoStore) AppendOutbox(ctx context.Context, entry model.OutboxEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.outbox.InsertOne(ctx, entry)
	return err
}

func (s *MongoStore) ListOutbox(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.outbox.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.OutboxEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
