package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
)

const MaxReferenceLen = 200

var ErrInvalidReference = errors.New("invalid external reference")

// ValidateReference rejects references that cannot safely name a storage slot.
func ValidateReference(ref string) error {
	var reason string
	switch {
	case ref == "":
		reason = "empty"
	case len(ref) > MaxReferenceLen:
		reason = fmt.Sprintf("longer than %d bytes", MaxReferenceLen)
	case strings.HasPrefix(ref, "."):
		reason = "leading dot"
	case strings.ContainsAny(ref, "/\\"):
		reason = "path separator"
	case strings.ContainsRune(ref, 0):
		reason = "nul byte"
	}
	if reason == "" {
		return nil
	}
	return errors.Join(db.ErrInvalid, fmt.Errorf("%w %q: %s", ErrInvalidReference, ref, reason))
}

// validateStored checks a decoded record against the slot it was read from.
func validateStored(slot string, rec *PaymentRecord) error {
	if rec.ExternalReference == "" {
		return errors.Join(db.ErrInvalid, errors.New("missing externalReference"))
	}
	if rec.ExternalReference != slot {
		return errors.Join(db.ErrInvalid, fmt.Errorf("externalReference %q does not match slot %q", rec.ExternalReference, slot))
	}
	return nil
}
