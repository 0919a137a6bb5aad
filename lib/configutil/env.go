package configutil

import (
	"github.com/caarlos0/env/v6"
)

// OverlayEnv sets the fields of out tagged with `env:"NAME"` from the
// environment. Variables that are not set leave the value from the config
// files alone.
func OverlayEnv[T any](out *T) error {
	return env.Parse(out)
}

// ReadWithEnv is ReadRecursively followed by OverlayEnv. A missing config file
// is not an error, the result then only holds what the environment provides.
func ReadWithEnv[T any](name string) (T, error) {
	out, err := ReadRecursively[T](name)
	if err != nil && !isNotExist(err) {
		return out, err
	}
	err = OverlayEnv(&out)
	return out, err
}
