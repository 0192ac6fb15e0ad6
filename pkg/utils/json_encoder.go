package utils

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// JsonBody encodes payload as a request body.
func JsonBody(payload any) (io.Reader, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode json body")
	}
	return bytes.NewReader(data), nil
}

func JsonDecode[T any](body io.Reader) (T, error) {
	var value T
	err := json.NewDecoder(body).Decode(&value)
	return value, errors.Wrap(err, "decode json body")
}

func JsonDecodeByteStream[T any](data []byte) (*T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errors.Wrap(err, "decode json message")
	}
	return &value, nil
}
