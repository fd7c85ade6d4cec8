package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gorilla/schema"
	"github.com/willemschots/webauth/internal/errorz"
)

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type mapper[IN, OUT any] struct {
	s      *Server
	req    func(*http.Request) (IN, error)
	target func(context.Context, IN) (OUT, error)
	res    func(result[IN, OUT]) error
}

// result is the result of a succesful request.
// it contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	s   *Server
	r   *http.Request
	w   http.ResponseWriter
	in  IN
	out OUT
}

// mapJSON creates a HTTP Handler that:
// 1. Decodes and validates the JSON request body to a value of type IN.
// 2. Calls the target func with that value.
// 3. Writes the output of type OUT as JSON with status 200.
//
// Errors are written using the server error handler.
func mapJSON[IN, OUT any](s *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s: s,
		req: func(r *http.Request) (IN, error) {
			return jsonRequest[IN](r)
		},
		target: targetFunc,
		res: func(r result[IN, OUT]) error {
			return writeJSON(r.w, http.StatusOK, r.out)
		},
	}
}

// mapQuery is like mapJSON, but decodes IN from the query parameters.
func mapQuery[IN, OUT any](s *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	m := mapJSON(s, targetFunc)
	m.req = func(r *http.Request) (IN, error) {
		return queryRequest[IN](s, r)
	}
	return m
}

func (e *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, err := e.req(r)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}

	out, err := e.target(r.Context(), in)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}

	result := result[IN, OUT]{
		s:   e.s,
		r:   r,
		w:   w,
		in:  in,
		out: out,
	}

	err = e.res(result)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}
}

// jsonRequest decodes the request body into IN and validates it.
func jsonRequest[IN any](r *http.Request) (IN, error) {
	var in IN

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&in)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return in, err
		}
		return in, errorz.InvalidInput{fmt.Errorf("invalid json body: %w", err)}
	}

	return in, validate(in)
}

// queryRequest decodes the query parameters into IN and validates it.
func queryRequest[IN any](s *Server, r *http.Request) (IN, error) {
	var in IN

	err := s.decoder.Decode(&in, r.URL.Query())
	if err != nil {
		return in, decodeError(err)
	}

	return in, validate(in)
}

func validate(in any) error {
	v, ok := in.(validation.Validatable)
	if !ok {
		return nil
	}

	return errorz.FromValidation(v.Validate())
}

func decodeError(err error) error {
	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.FieldError{
				Field: key,
				Err:   e,
			})
		}

		return invalidInput
	}

	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
