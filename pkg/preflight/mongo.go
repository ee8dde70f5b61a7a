package preflight

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// mongoChecker pings a MongoDB deployment. This is the store the bot has
// run against historically, so it is the scheme most configs use.
type mongoChecker struct {
	uri     string
	timeout time.Duration
}

func newMongoChecker(uri string, timeout time.Duration) *mongoChecker {
	return &mongoChecker{uri: uri, timeout: timeout}
}

func (c *mongoChecker) Name() string {
	return "mongodb"
}

func (c *mongoChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(c.uri).
		SetServerSelectionTimeout(c.timeout).
		SetConnectTimeout(c.timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return wrap(Redact(c.uri), err)
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
	}()

	// Ping against the primary confirms both reachability and auth,
	// same as `admin.command('ping')` in the driver shell.
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return wrap(Redact(c.uri), err)
	}

	return nil
}
