package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/docforge/docforge/internal/apierr"
)

// Validatable lets request types reject bad input before the handler runs.
type Validatable interface {
	Validate() error
}

// Wrap adapts a typed handler function to an http.Handler.
// The function must have signature: func(context.Context, In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters are extracted into fields tagged `path:"name"`, query
// parameters into fields tagged `query:"name"`.
//
// Example:
//
//	type getDocRequest struct {
//	    Slug string `path:"slug"`
//	}
//
//	func (h *Handler) GetDoc(ctx context.Context, req getDocRequest) (*DocResponse, error)
func Wrap[In any, Out any](fn func(context.Context, In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(r.Body)
		if err2 := r.Body.Close(); err == nil {
			err = err2
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read request body", "err", err)
			writeError(w, apierr.BadRequest("failed to read request body"))
			return
		}
		var input In
		if len(body) > 0 {
			d := json.NewDecoder(bytes.NewReader(body))
			d.DisallowUnknownFields()
			if err := d.Decode(&input); err != nil {
				slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
				writeError(w, apierr.BadRequest("invalid request body"))
				return
			}
		}

		populatePathParams(r, &input)
		populateQueryParams(r, &input)

		if v, ok := any(&input).(Validatable); ok {
			if err := v.Validate(); err != nil {
				writeError(w, apierr.BadRequest(err.Error()))
				return
			}
		}

		output, err := fn(ctx, input)
		if err != nil {
			apiErr := toAPIError(err)
			slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", apiErr.StatusCode(), "code", apiErr.Code())
			writeError(w, apiErr)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(output); err != nil {
			slog.ErrorContext(ctx, "Failed to encode response", "err", err)
		}
	})
}

func toAPIError(err error) apierr.ErrorWithStatus {
	var ews apierr.ErrorWithStatus
	if errors.As(err, &ews) {
		return ews
	}
	return apierr.Internal("internal error", err)
}

// populatePathParams fills struct fields tagged `path:"paramName"` from the
// request's matched route.
func populatePathParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Ptr {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			elem.Field(i).SetString(paramValue)
		}
	}
}

// populateQueryParams fills struct fields tagged `query:"paramName"` from the
// URL query. String, int and bool fields are supported.
func populateQueryParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Ptr {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}
		//nolint:exhaustive // Only string, int and bool query params exist.
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(paramValue)
		case reflect.Int:
			if intVal, err := strconv.Atoi(paramValue); err == nil {
				elem.Field(i).SetInt(int64(intVal))
			}
		case reflect.Bool:
			if boolVal, err := strconv.ParseBool(paramValue); err == nil {
				elem.Field(i).SetBool(boolVal)
			}
		}
	}
}

// writeError writes a structured error response as JSON.
func writeError(w http.ResponseWriter, err apierr.ErrorWithStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	response := map[string]any{
		"error": map[string]any{
			"code":    err.Code(),
			"message": err.Error(),
		},
	}
	if d := err.Details(); len(d) > 0 {
		response["details"] = d
	}
	_ = json.NewEncoder(w).Encode(response)
}
