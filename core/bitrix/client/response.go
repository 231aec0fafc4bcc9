package client

import (
	"github.com/tidwall/gjson"
)

// Response is a parsed REST reply.
type Response struct {
	raw []byte
}

func parseResponse(raw []byte) (*Response, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, false
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return nil, false
	}
	return &Response{raw: raw}, true
}

// Result returns the "result" member.
func (r *Response) Result() gjson.Result {
	return r.Get("result")
}

// ResultInt returns "result" as an integer, e.g. the id of a new message.
func (r *Response) ResultInt() int64 {
	return r.Result().Int()
}

// ResultBool reports whether "result" is true.
func (r *Response) ResultBool() bool {
	return r.Result().Bool()
}

// Get queries the reply with a gjson path.
func (r *Response) Get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.raw, path)
}

// Raw returns the reply body.
func (r *Response) Raw() []byte {
	if r == nil {
		return nil
	}
	return r.raw
}

func (r *Response) apiError() (code, description string, ok bool) {
	errField := r.Get("error")
	if !errField.Exists() || errField.Type == gjson.Null {
		return "", "", false
	}
	return errField.String(), r.Get("error_description").String(), true
}
