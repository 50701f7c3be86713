package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu       sync.Mutex
	cache    = make(map[reflect.Type]any)
	dotenvMu sync.Once
)

// Load parses environment variables into v according to its `env` tags.
// The first call loads an optional .env file from the working directory.
// Each config type is parsed once; later calls copy the cached value.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvMu.Do(func() { _ = godotenv.Load() })

	key := reflect.TypeFor[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[key] = parsed
	*v = parsed
	return nil
}

// MustLoad is Load for settings the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// LoadEnv loads the given dotenv files into the process environment.
// Later files override earlier ones. Cached configs are dropped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	Reset()
	return nil
}

// Reset drops every cached config so the next Load re-reads the environment.
func Reset() {
	mu.Lock()
	clear(cache)
	mu.Unlock()
}
