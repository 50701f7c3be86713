package mongo

import "errors"

var (
	ErrFailedToConnect   = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed = errors.New("mongo healthcheck failed")
	ErrCreateIndexes     = errors.New("failed to create mongo indexes")
)
