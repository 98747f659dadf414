package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// EnvLoader loads configuration from environment variables named after the
// yaml keys of each field
type EnvLoader struct {
	prefix string
}

// NewEnvLoader creates a new environment loader
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix: prefix,
	}
}

// Load overrides fields of config that have a matching environment variable
func (el *EnvLoader) Load(config *Config) error {
	return el.loadStruct(reflect.ValueOf(config).Elem(), el.prefix)
}

// loadStruct recursively loads a struct from environment variables
func (el *EnvLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envName := el.buildEnvName(prefix, yamlName(fieldType))

		var err error
		switch field.Kind() {
		case reflect.Struct:
			err = el.loadStruct(field, envName)
		case reflect.Slice:
			err = el.loadSlice(field, envName)
		case reflect.Map:
			err = el.loadMap(field, envName)
		default:
			err = el.loadField(field, envName)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// loadField loads a single field from environment variable
func (el *EnvLoader) loadField(field reflect.Value, envName string) error {
	value, ok := os.LookupEnv(envName)
	if !ok || value == "" {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", envName, err)
			}
			field.SetInt(int64(duration))
			return nil
		}
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", envName, err)
		}
		field.SetInt(intVal)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", envName, err)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type %s for %s", field.Kind(), envName)
	}

	return nil
}

// loadSlice loads a comma separated list of strings
func (el *EnvLoader) loadSlice(field reflect.Value, envName string) error {
	value := os.Getenv(envName)
	if value == "" {
		return nil
	}
	if field.Type().Elem().Kind() != reflect.String {
		return fmt.Errorf("unsupported slice element type %s for %s", field.Type().Elem().Kind(), envName)
	}

	parts := strings.Split(value, ",")
	slice := reflect.MakeSlice(field.Type(), 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		slice = reflect.Append(slice, reflect.ValueOf(part).Convert(field.Type().Elem()))
	}

	field.Set(slice)
	return nil
}

// loadMap sets one map entry per variable sharing the field's prefix,
// e.g. MATE_LOGGING_INITIAL_FIELDS_REGION=eu
func (el *EnvLoader) loadMap(field reflect.Value, envPrefix string) error {
	if field.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("only string keys are supported for maps in env vars")
	}

	prefix := envPrefix + "_"
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}

		mapValue := reflect.New(field.Type().Elem()).Elem()
		switch mapValue.Kind() {
		case reflect.String:
			mapValue.SetString(value)
		case reflect.Interface:
			mapValue.Set(reflect.ValueOf(value))
		default:
			return fmt.Errorf("unsupported map value type %s for %s", mapValue.Kind(), key)
		}

		if field.IsNil() {
			field.Set(reflect.MakeMap(field.Type()))
		}
		mapKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		field.SetMapIndex(reflect.ValueOf(mapKey), mapValue)
	}

	return nil
}

// buildEnvName builds environment variable name from prefix and field name
func (el *EnvLoader) buildEnvName(prefix, fieldName string) string {
	envName := strings.ToUpper(fieldName)
	envName = strings.ReplaceAll(envName, "-", "_")
	envName = strings.ReplaceAll(envName, ".", "_")

	if prefix != "" {
		return prefix + "_" + envName
	}
	return envName
}

func yamlName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}
