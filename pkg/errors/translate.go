package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Translated is the user-facing rendering of a failure: a stable kind tag
// and a single-line message.
type Translated struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// MessageTemplate returns the message template for kind. Templates take the
// error subject as their only verb.
func MessageTemplate(kind Kind) string {
	switch kind {
	case KindFormatNotFound:
		return "Unknown schematic format: %s"
	case KindPathEscape:
		return "Filename '%s' is not allowed: it points outside the schematic folder"
	case KindNotFound:
		return "Schematic %s does not exist!"
	case KindDirectoryCreateFailed:
		return "Could not create the save folder %s"
	case KindDecode:
		return "Schematic %s could not be read"
	case KindEncode:
		return "Schematic %s could not be written"
	case KindDeleteFailed:
		return "Deletion of %s failed! Maybe it is read only?"
	case KindUnknownFormat:
		return "Could not determine the format of %s"
	case KindInvalidFilename:
		return "Filename '%s' is invalid"
	case KindEmptyClipboard:
		return "Your clipboard is empty. Load a schematic first."
	case KindInvariant:
		return "Internal error: %s"
	default:
		return "Operation failed: %s"
	}
}

// Translate maps err to its user-facing message. Domain errors render their
// kind's template; anything else becomes a generic failure carrying the
// original message.
func Translate(err error) Translated {
	if err == nil {
		return Translated{Kind: KindGeneric}
	}

	var e *Error
	if !stderrors.As(err, &e) || e.Kind == KindGeneric {
		return Translated{Kind: KindGeneric, Message: fmt.Sprintf(MessageTemplate(KindGeneric), err.Error())}
	}

	msg := render(MessageTemplate(e.Kind), e.Subject)
	switch e.Kind {
	case KindDecode, KindEncode, KindDirectoryCreateFailed:
		if e.Underlying != nil {
			msg += ": " + e.Underlying.Error()
		}
	case KindInvalidFilename:
		msg += ": " + reasonOf(e)
	}
	return Translated{Kind: e.Kind, Message: msg}
}

func render(template, subject string) string {
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, subject)
}

func reasonOf(e *Error) string {
	prefix := fmt.Sprintf("invalid filename %q: ", e.Subject)
	return strings.TrimPrefix(e.Message, prefix)
}
