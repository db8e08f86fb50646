package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 16

var errBadRequest = errors.New("bad request")

// ibanPattern is a loose IBAN shape check: country, check digits, up to 30
// alphanumerics.
var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}$`)

// pathID parses a positive int64 URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return id, nil
}

// decodeJSON reads a single JSON object from the request body, rejecting
// unknown fields and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

// setIBANRequest sets or clears the IBAN of a project or subproject. A
// null or empty iban clears it.
type setIBANRequest struct {
	IBAN     *string `json:"iban"`
	IBANName string  `json:"iban_name"`
}

// normalize upper-cases the IBAN, strips spaces and validates its shape.
func (req setIBANRequest) normalize() (*string, string, error) {
	name := sanitizeInput(req.IBANName)
	if req.IBAN == nil {
		return nil, name, nil
	}
	iban := strings.ToUpper(strings.Join(strings.Fields(*req.IBAN), ""))
	if iban == "" {
		return nil, name, nil
	}
	if !ibanPattern.MatchString(iban) {
		return nil, "", fmt.Errorf("%w: invalid IBAN %q", errBadRequest, *req.IBAN)
	}
	return &iban, name, nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
