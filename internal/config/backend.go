package config

// ConfigBackend abstracts persistent config storage. The default is a flat
// JSON file under XDG_CONFIG_HOME; tests substitute their own.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	Set(key string, val any) error
}
