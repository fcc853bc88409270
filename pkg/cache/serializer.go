package cache

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/yvasiyarov/php_session_decoder/php_serialize"
)

// Serializer encodes values into opaque payloads and back.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dst any) error
}

// SerializerFor returns the serializer registered under name.
func SerializerFor(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSONSerializer{}, nil
	case "php":
		return PHPSerializer{}, nil
	default:
		return nil, fmt.Errorf("cache: unsupported serializer: %s", name)
	}
}

// JSONSerializer stores values as JSON documents.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

// PHPSerializer stores values in PHP serialize() format, so entries can be
// shared with a Laravel application reading the same store.
type PHPSerializer struct{}

func (PHPSerializer) Marshal(v any) ([]byte, error) {
	encoded, err := php_serialize.NewSerializer().Encode(toPHP(v))
	if err != nil {
		return nil, err
	}
	return []byte(encoded), nil
}

// Unmarshal decodes data into dst, which must be *any or a pointer to the
// exact Go type the PHP value decodes to (string, int, bool, float64).
func (PHPSerializer) Unmarshal(data []byte, dst any) error {
	value, err := php_serialize.UnSerialize(string(data))
	if err != nil {
		return err
	}
	return assign(dst, value)
}

func toPHP(v any) php_serialize.PhpValue {
	switch t := v.(type) {
	case map[string]any:
		arr := make(php_serialize.PhpArray, len(t))
		for k, item := range t {
			arr[k] = toPHP(item)
		}
		return arr
	case []any:
		arr := make(php_serialize.PhpArray, len(t))
		for i, item := range t {
			arr[i] = toPHP(item)
		}
		return arr
	case []string:
		arr := make(php_serialize.PhpArray, len(t))
		for i, item := range t {
			arr[i] = item
		}
		return arr
	default:
		return v
	}
}

func assign(dst any, value any) error {
	if p, ok := dst.(*any); ok {
		*p = value
		return nil
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("cache: destination must be a non-nil pointer, got %T", dst)
	}
	if value == nil {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	val := reflect.ValueOf(value)
	if !val.Type().AssignableTo(rv.Elem().Type()) {
		return fmt.Errorf("cache: cannot decode %T into %T", value, dst)
	}
	rv.Elem().Set(val)
	return nil
}
