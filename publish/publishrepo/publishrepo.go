package publishrepo

import (
	"context"
	"errors"
	"time"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lumilearn/lumilearn-publish-server/db"
	"github.com/lumilearn/lumilearn-publish-server/domain"
	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
)

const CName = "publish.repo"

func New() SnapshotRepo {
	return new(snapshotRepo)
}

// SnapshotRepo is the keyed snapshot store: exactly one record per
// token, token is the sole lookup key. All operations are single-doc
// atomic; concurrent writes to the same token are last-write-wins.
type SnapshotRepo interface {
	SnapshotReplace(ctx context.Context, snapshot domain.Snapshot) (prev domain.Snapshot, existed bool, err error)
	GetSnapshot(ctx context.Context, token string) (snapshot domain.Snapshot, err error)
	SetEnabled(ctx context.Context, token string, enabled bool) (snapshot domain.Snapshot, err error)
	IterateOutdated(ctx context.Context, before time.Time, do func(snapshot domain.Snapshot) error) error
	DeleteSnapshot(ctx context.Context, token string) (err error)
	app.ComponentRunnable
}

var snapshotIndexes = []mongo.IndexModel{
	{
		Keys: bson.D{
			{"updatedTimestamp", 1},
		},
	},
}

type snapshotRepo struct {
	db           db.Database
	snapshotColl *mongo.Collection
}

func (r *snapshotRepo) Name() (name string) {
	return CName
}

func (r *snapshotRepo) Init(a *app.App) (err error) {
	r.db = a.MustComponent(db.CName).(db.Database)
	r.snapshotColl = r.db.Db().Collection("snapshot")
	return
}

func (r *snapshotRepo) Run(ctx context.Context) (err error) {
	return ensureIndexes(ctx, r.snapshotColl, snapshotIndexes...)
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, indexes ...mongo.IndexModel) (err error) {
	existingIndexes, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return
	}
	if len(existingIndexes) <= 1 {
		_, err = coll.Indexes().CreateMany(ctx, indexes)
	}
	return
}

// SnapshotReplace inserts or fully replaces the record at the token.
// The previous record, when there was one, is returned so the caller
// can drop its payload from the object store.
func (r *snapshotRepo) SnapshotReplace(ctx context.Context, snapshot domain.Snapshot) (prev domain.Snapshot, existed bool, err error) {
	opts := options.FindOneAndReplace().SetUpsert(true).SetReturnDocument(options.Before)
	err = r.snapshotColl.FindOneAndReplace(ctx, bson.D{{"_id", snapshot.Token}}, snapshot, opts).Decode(&prev)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Snapshot{}, false, nil
		}
		return
	}
	return prev, true, nil
}

func (r *snapshotRepo) GetSnapshot(ctx context.Context, token string) (snapshot domain.Snapshot, err error) {
	if err = r.snapshotColl.FindOne(ctx, bson.D{{"_id", token}}).Decode(&snapshot); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Snapshot{}, shareapi.ErrNotFound
		}
		return
	}
	return
}

// SetEnabled flips only the enabled flag, refreshing the timestamp;
// courses and hero config stay untouched.
func (r *snapshotRepo) SetEnabled(ctx context.Context, token string, enabled bool) (snapshot domain.Snapshot, err error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = r.snapshotColl.FindOneAndUpdate(
		ctx,
		bson.D{{"_id", token}},
		bson.D{{"$set", bson.D{
			{"enabled", enabled},
			{"updatedTimestamp", time.Now().Unix()},
		}}},
		opts,
	).Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Snapshot{}, shareapi.ErrNotFound
		}
		return
	}
	return
}

func (r *snapshotRepo) IterateOutdated(ctx context.Context, before time.Time, do func(snapshot domain.Snapshot) error) error {
	cur, err := r.snapshotColl.Find(ctx, bson.D{
		{"updatedTimestamp", bson.D{
			{"$lt", before.Unix()},
		}},
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = cur.Close(context.Background())
	}()
	for cur.Next(ctx) {
		var snapshot domain.Snapshot
		if err = cur.Decode(&snapshot); err != nil {
			return err
		}
		if err = do(snapshot); err != nil {
			return err
		}
	}
	return nil
}

func (r *snapshotRepo) DeleteSnapshot(ctx context.Context, token string) (err error) {
	_, err = r.snapshotColl.DeleteOne(ctx, bson.D{{"_id", token}})
	return
}

func (r *snapshotRepo) Close(ctx context.Context) (err error) {
	return
}
