package classify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

// Reason explains a rejection.
type Reason string

// Rejection reasons.
const (
	ReasonNone            Reason = ""
	ReasonEncrypted       Reason = "encrypted"
	ReasonCopyright       Reason = "copyright"
	ReasonUnparseable     Reason = "unparseable"
	ReasonUnsupportedType Reason = "unsupported_type"
)

// Decision is the outcome of ShouldAccept.
type Decision struct {
	Accept bool
	Reason Reason
	// Kind is the sniffed signature, which may disagree with the declared type.
	Kind Kind
}

// ValidationError reports rejected content.
type ValidationError struct {
	URL    string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rejected %s: %s", e.URL, e.Reason)
}

// Validator applies the archive acceptance rules.
type Validator struct {
	logger *zap.Logger
}

// NewValidator builds a Validator.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger.Named("classify")}
}

// ShouldAccept decides whether body may be archived.
//
// A declared PDF is parsed and rejected when encrypted, unparseable or
// carrying a copyright marker in its first pages. Every body must then have
// a declared type in SupportedTypes. The declared type stays authoritative
// even when Kind disagrees with it.
func (v *Validator) ShouldAccept(url, declaredType string, body []byte) Decision {
	d := v.decide(url, declaredType, body)
	if !d.Accept {
		metrics.ObserveRejection(string(d.Reason))
	}
	return d
}

func (v *Validator) decide(url, declaredType string, body []byte) Decision {
	kind := SniffType(body)
	mediaType := MediaType(declaredType)

	if mediaType == "application/pdf" {
		info, err := InspectPDF(body)
		switch {
		case err != nil:
			v.logger.Warn("pdf could not be parsed", zap.String("url", url), zap.Error(err))
			return Decision{Reason: ReasonUnparseable, Kind: kind}
		case info.Encrypted:
			return Decision{Reason: ReasonEncrypted, Kind: kind}
		case ContainsCopyright(info.Text):
			return Decision{Reason: ReasonCopyright, Kind: kind}
		}
	}

	if !IsSupportedType(declaredType) {
		return Decision{Reason: ReasonUnsupportedType, Kind: kind}
	}
	if kind != KindUnknown && string(kind) != kindOfMediaType(mediaType) {
		v.logger.Debug("declared type disagrees with signature",
			zap.String("url", url),
			zap.String("declared", mediaType),
			zap.String("sniffed", string(kind)))
	}
	return Decision{Accept: true, Kind: kind}
}

// Err converts a rejection into a *ValidationError.
func (d Decision) Err(url string) error {
	if d.Accept {
		return nil
	}
	return &ValidationError{URL: url, Reason: d.Reason}
}

func kindOfMediaType(mediaType string) string {
	switch mediaType {
	case "application/pdf":
		return string(KindPDF)
	case "text/xml", "application/xml":
		return string(KindXML)
	case "text/html":
		return string(KindHTML)
	}
	return ""
}
