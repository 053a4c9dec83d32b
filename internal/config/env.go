package config

import "reflect"

// replaceEnvKeys walks data (a pointer to a struct) and replaces any
// string field whose value starts with "$" with the named environment
// variable's value, the way cmd/dex/config_env_replacer.go lets a
// config file say "$SALITAD_DATA_PASSPHRASE" instead of embedding a
// secret directly.
func replaceEnvKeys(data interface{}, getenv func(string) string) error {
	val := reflect.ValueOf(data)

	if val.Kind() != reflect.Interface && val.Kind() != reflect.Ptr {
		return nil
	}

	s := val.Elem()
	if !s.CanSet() {
		return nil
	}

	if s.Kind() == reflect.String {
		value := s.Interface().(string)
		if len(value) > 1 && value[0] == '$' {
			s.SetString(getenv(value[1:]))
		}
		return nil
	}

	if s.Kind() == reflect.Struct {
		for i := 0; i < s.NumField(); i++ {
			if err := replaceEnvKeys(s.Field(i).Addr().Interface(), getenv); err != nil {
				return err
			}
		}
		return nil
	}

	if s.Kind() == reflect.Slice {
		for i := 0; i < s.Len(); i++ {
			if err := replaceEnvKeys(s.Index(i).Addr().Interface(), getenv); err != nil {
				return err
			}
		}
		return nil
	}

	return nil
}
