package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// ResponseBuffer captures a response so a handler's outcome can be inspected
// before anything reaches the client.
type ResponseBuffer interface {
	http.ResponseWriter
	Status() int
	Decode(v any) error
	Flush(w http.ResponseWriter) error
}

type responseBuffer struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func NewResponseBuffer() ResponseBuffer {
	return &responseBuffer{}
}

// Status returns the written status, 200 if the handler wrote a body
// without one.
func (resp *responseBuffer) Status() int {
	if resp.status == 0 && resp.body.Len() > 0 {
		return http.StatusOK
	}
	return resp.status
}

func (resp *responseBuffer) Header() http.Header {
	if resp.header == nil {
		resp.header = http.Header{}
	}
	return resp.header
}

// Decode unmarshals the captured body as JSON.
func (resp *responseBuffer) Decode(v any) error {
	return json.Unmarshal(resp.body.Bytes(), v)
}

func (resp *responseBuffer) Write(body []byte) (int, error) {
	return resp.body.Write(body)
}

func (resp *responseBuffer) WriteHeader(statusCode int) {
	if resp.status == 0 {
		resp.status = statusCode
	}
}

func (resp *responseBuffer) Flush(w http.ResponseWriter) error {
	header := w.Header()
	for key, value := range resp.header {
		header[key] = value
	}
	if resp.status != 0 {
		w.WriteHeader(resp.status)
	}
	if resp.body.Len() > 0 {
		_, err := w.Write(resp.body.Bytes())
		return err
	}
	return nil
}
