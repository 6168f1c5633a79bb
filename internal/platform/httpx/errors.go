package httpx

import (
	"net/http"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindUnbalancedEntry:
		return http.StatusBadRequest
	case shared.KindDuplicatePosting, shared.KindConcurrentUpdate:
		return http.StatusConflict
	case shared.KindInsufficientStock, shared.KindIncompleteInventory, shared.KindInvalidState:
		return http.StatusUnprocessableEntity
	case shared.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as problem details. Foreign errors hide their message.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := shared.KindOf(err)
	if kind == "" {
		Problem(w, status, http.StatusText(status), "", "")
		return
	}
	Problem(w, status, string(kind), err.Error(), shared.CodeOf(err))
}
