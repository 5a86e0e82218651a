package config

import (
	"fmt"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/vodarr/pkg/bytesize"
	"github.com/jmylchreest/vodarr/pkg/duration"
)

// DumpYAML renders the config as YAML with durations and sizes in their
// human-readable forms, suitable for use as a config file template.
func (c *Config) DumpYAML() (string, error) {
	data, err := yaml.Marshal(toMap(c))
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(data), nil
}

// toMap converts a struct to a map keyed by mapstructure tags, formatting
// durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch value := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(value)
		case ByteSize:
			result[key] = bytesize.Format(bytesize.Size(value))
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}
