package config

// ConfigBackend abstracts persisted config storage. The default is a
// flat JSON file in the user config dir; tests substitute an in-memory
// implementation. Secrets never pass through a backend.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
