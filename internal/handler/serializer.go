package handler

import (
	"encoding/json"
	"io"
)

// Serializer reads login requests and writes authentication responses.
type Serializer interface {
	ContentType() string
	Decode(r io.Reader, v interface{}) error
	Encode(w io.Writer, v interface{}) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) ContentType() string {
	return "application/json;charset=UTF-8"
}

func (JSONSerializer) Decode(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

func (JSONSerializer) Encode(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}
