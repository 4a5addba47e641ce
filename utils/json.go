package utils

import (
	"bytes"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/saiset-co/sai-shop/types"
)

type JSONBufferPool struct {
	pool sync.Pool
}

func (p *JSONBufferPool) Get() *bytes.Buffer {
	if buf := p.pool.Get(); buf != nil {
		return buf.(*bytes.Buffer)
	}
	return bytes.NewBuffer(make([]byte, 0, 1024))
}

func (p *JSONBufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	if buf.Cap() < 16*1024 {
		p.pool.Put(buf)
	}
}

var jsonPool = &JSONBufferPool{}

// documentAPI keeps whole numbers as int64 so timestamps survive a map round trip.
var documentAPI = sonic.Config{UseInt64: true}.Froze()

func MarshalToBuffer(data interface{}, buf *bytes.Buffer) error {
	buf.Reset()
	encoder := sonic.ConfigDefault.NewEncoder(buf)
	return encoder.Encode(data)
}

func Marshal(data interface{}) ([]byte, error) {
	buf := jsonPool.Get()
	defer jsonPool.Put(buf)

	if err := MarshalToBuffer(data, buf); err != nil {
		return nil, err
	}

	encoded := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(encoded))
	copy(result, encoded)
	return result, nil
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}

func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}

	configBytes, err := sonic.ConfigDefault.Marshal(config)
	if err != nil {
		return err
	}

	return sonic.ConfigDefault.Unmarshal(configBytes, target)
}

// ToMap converts a struct into the generic document shape stored by the database layer.
func ToMap(value interface{}) (map[string]interface{}, error) {
	data, err := documentAPI.Marshal(value)
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{})
	if err := documentAPI.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// FromMap is the inverse of ToMap.
func FromMap[T any](doc map[string]interface{}, target *T) error {
	data, err := documentAPI.Marshal(doc)
	if err != nil {
		return err
	}

	return documentAPI.Unmarshal(data, target)
}
