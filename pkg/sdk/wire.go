package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-ledger/pkg/apperr"
)

// Error kinds of the line protocol. A failed command is answered with
// "ERR <KIND> <detail>".
const (
	KindValidation      = "VALIDATION"
	KindNotFound        = "NOT_FOUND"
	KindUnknownResource = "UNKNOWN_RESOURCE"
	KindBadRequest      = "BAD_REQUEST"
	KindInternal        = "INTERNAL"
)

// ErrBadRequest is returned for commands the server could not parse.
var ErrBadRequest = errors.New("bad request")

// EncodeError renders err as the detail of an ERR reply. The boolean is false
// for unexpected errors, whose text is not sent to the peer.
func EncodeError(err error) (string, bool) {
	var (
		ve *apperr.ValidationError
		ur *apperr.UnknownResourceError
		nf *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return reply(KindValidation, ve), true
	case errors.As(err, &ur):
		return reply(KindUnknownResource, ur), true
	case errors.As(err, &nf):
		return reply(KindNotFound, nf), true
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest + " " + strings.TrimPrefix(err.Error(), ErrBadRequest.Error()+": "), true
	}
	return KindInternal + " internal error", false
}

func reply(kind string, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return KindInternal + " internal error"
	}
	return kind + " " + string(b)
}

// DecodeError turns the detail of an ERR reply back into the matching error.
func DecodeError(detail string) error {
	kind, body, _ := strings.Cut(detail, " ")
	switch kind {
	case KindValidation:
		var ve apperr.ValidationError
		if err := json.Unmarshal([]byte(body), &ve); err == nil {
			return &ve
		}
	case KindUnknownResource:
		var ur apperr.UnknownResourceError
		if err := json.Unmarshal([]byte(body), &ur); err == nil {
			return &ur
		}
	case KindNotFound:
		var nf apperr.NotFoundError
		if err := json.Unmarshal([]byte(body), &nf); err == nil {
			return &nf
		}
	case KindBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, body)
	}
	return fmt.Errorf("server error: %s", detail)
}
