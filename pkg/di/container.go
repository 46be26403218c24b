// Package di wires the shared pieces of the data-access stack: logger,
// error classifier, cache store, and key serializer. Repository factories
// are package-level functions because methods cannot carry type parameters.
package di

import (
	"github.com/goliatone/go-repository-core/cache"
	"github.com/goliatone/go-repository-core/dberr"
	"github.com/goliatone/go-repository-core/pkg/logging"
	"github.com/goliatone/go-repository-core/repository"
	"github.com/goliatone/go-repository-core/repositorycache"
)

// Config configures the container.
type Config struct {
	// Cache sizes the in-process cache store.
	Cache cache.Config

	// Production switches the classifier to generic client-safe messages and
	// the logger to JSON output.
	Production bool
}

// DefaultConfig returns the container defaults for development use.
func DefaultConfig() Config {
	return Config{Cache: cache.DefaultConfig()}
}

// Container holds singleton instances of the cross-cutting services every
// repository shares.
type Container struct {
	config        Config
	logger        *logging.Logger
	classifier    *dberr.Classifier
	store         cache.Store
	keySerializer cache.KeySerializer
}

// NewContainer builds a container from the given configuration.
func NewContainer(config Config) (*Container, error) {
	logger, err := logging.New(config.Production)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(config.Cache)
	if err != nil {
		return nil, err
	}

	classifier := dberr.New(
		dberr.WithProduction(config.Production),
		dberr.WithLogger(logger),
	)

	return &Container{
		config:        config,
		logger:        logger,
		classifier:    classifier,
		store:         store,
		keySerializer: cache.NewDefaultKeySerializer(),
	}, nil
}

// NewContainerWithDefaults builds a container with default configuration.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(DefaultConfig())
}

// Logger returns the shared logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Classifier returns the shared error classifier.
func (c *Container) Classifier() *dberr.Classifier {
	return c.classifier
}

// Store returns the shared cache store.
func (c *Container) Store() cache.Store {
	return c.store
}

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration the container was built with.
func (c *Container) Config() Config {
	return c.config
}

// NewRepository builds a SQL repository wired with the container's logger and
// classifier.
//
// Example: NewRepository[User](container, pool, userDefinition)
func NewRepository[T any](c *Container, pool repository.Pool, def repository.Definition[T], opts ...repository.Option[T]) (*repository.SQLRepository[T], error) {
	wired := append([]repository.Option[T]{
		repository.WithLogger[T](c.logger),
		repository.WithClassifier[T](c.classifier),
	}, opts...)
	return repository.New(pool, def, wired...)
}

// NewCachedRepository wraps a repository with the container's cache store and
// key serializer, TTLs taken from the cache configuration.
//
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](c *Container, base repositorycache.Base[T], opts ...repositorycache.Option[T]) (*repositorycache.CachedRepository[T], error) {
	wired := append([]repositorycache.Option[T]{
		repositorycache.WithKeySerializer[T](c.keySerializer),
		repositorycache.WithLogger[T](c.logger),
		repositorycache.WithRecordTTL[T](c.config.Cache.RecordTTL),
		repositorycache.WithCountTTL[T](c.config.Cache.CountTTL),
	}, opts...)
	return repositorycache.New(base, c.store, wired...)
}
