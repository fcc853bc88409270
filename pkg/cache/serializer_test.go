package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializerFor(t *testing.T) {
	s, err := SerializerFor("")
	require.NoError(t, err)
	assert.IsType(t, JSONSerializer{}, s)

	s, err = SerializerFor("php")
	require.NoError(t, err)
	assert.IsType(t, PHPSerializer{}, s)

	_, err = SerializerFor("xml")
	assert.Error(t, err)
}

func TestJSONSerializer(t *testing.T) {
	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	data, err := JSONSerializer{}.Marshal(user{Name: "Ada", Age: 36})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","age":36}`, string(data))

	var got user
	require.NoError(t, JSONSerializer{}.Unmarshal(data, &got))
	assert.Equal(t, user{Name: "Ada", Age: 36}, got)
}

func TestPHPSerializer_Scalars(t *testing.T) {
	s := PHPSerializer{}

	data, err := s.Marshal("hello")
	require.NoError(t, err)
	assert.Equal(t, `s:5:"hello";`, string(data))

	var str string
	require.NoError(t, s.Unmarshal(data, &str))
	assert.Equal(t, "hello", str)

	data, err = s.Marshal(42)
	require.NoError(t, err)
	assert.Equal(t, `i:42;`, string(data))

	var n any
	require.NoError(t, s.Unmarshal(data, &n))
	assert.EqualValues(t, 42, n)
}

func TestPHPSerializer_Array(t *testing.T) {
	s := PHPSerializer{}

	data, err := s.Marshal(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, `a:1:{s:4:"name";s:3:"Ada";}`, string(data))

	var v any
	require.NoError(t, s.Unmarshal(data, &v))
	assert.NotNil(t, v)
}

func TestPHPSerializer_TypeMismatch(t *testing.T) {
	var n float64
	err := PHPSerializer{}.Unmarshal([]byte(`s:5:"hello";`), &n)
	assert.Error(t, err)

	err = PHPSerializer{}.Unmarshal([]byte(`s:5:"hello";`), n)
	assert.Error(t, err)
}
