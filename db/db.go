package db

import (
	"context"

	"github.com/anyproto/any-sync/app"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CName = "db"

func New() Database {
	return new(database)
}

type Mongo struct {
	Connect  string `yaml:"connect"`
	Database string `yaml:"database"`
}

type configGetter interface {
	GetMongo() Mongo
}

type Database interface {
	Db() *mongo.Database
	app.ComponentRunnable
}

type database struct {
	conf   Mongo
	client *mongo.Client
	db     *mongo.Database
}

func (d *database) Init(a *app.App) (err error) {
	d.conf = a.MustComponent("config").(configGetter).GetMongo()
	// Connect is lazy, the handle is usable by dependent components at Init time.
	if d.client, err = mongo.Connect(context.Background(), options.Client().ApplyURI(d.conf.Connect)); err != nil {
		return
	}
	d.db = d.client.Database(d.conf.Database)
	return
}

func (d *database) Name() (name string) {
	return CName
}

func (d *database) Run(ctx context.Context) (err error) {
	return d.client.Ping(ctx, nil)
}

func (d *database) Db() *mongo.Database {
	return d.db
}

func (d *database) Close(ctx context.Context) (err error) {
	if d.client != nil {
		return d.client.Disconnect(ctx)
	}
	return
}
