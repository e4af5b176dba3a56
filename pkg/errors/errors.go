package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"schemctl/pkg/logger"

	"github.com/fatih/color"
)

type ExitCode int

const (
	ExitCodeSuccess       ExitCode = 0
	ExitCodeGeneral       ExitCode = 1
	ExitCodeConfig        ExitCode = 2
	ExitCodeInvalidInput  ExitCode = 3
	ExitCodeNotFound      ExitCode = 4
	ExitCodeFormat        ExitCode = 5
	ExitCodeSandbox       ExitCode = 6
	ExitCodeFileOperation ExitCode = 7
	ExitCodeCodec         ExitCode = 8
	ExitCodeCancellation  ExitCode = 9
	ExitCodeInternal      ExitCode = 10
)

// Kind tags a domain failure. Every Kind except KindGeneric has exactly one
// translation in Translate.
type Kind int

const (
	KindGeneric Kind = iota
	KindFormatNotFound
	KindPathEscape
	KindNotFound
	KindDirectoryCreateFailed
	KindDecode
	KindEncode
	KindDeleteFailed
	KindUnknownFormat
	KindInvalidFilename
	KindEmptyClipboard
	KindInvariant
)

// Kinds lists every domain kind in declaration order.
var Kinds = []Kind{
	KindFormatNotFound,
	KindPathEscape,
	KindNotFound,
	KindDirectoryCreateFailed,
	KindDecode,
	KindEncode,
	KindDeleteFailed,
	KindUnknownFormat,
	KindInvalidFilename,
	KindEmptyClipboard,
	KindInvariant,
}

func (k Kind) String() string {
	switch k {
	case KindFormatNotFound:
		return "format_not_found"
	case KindPathEscape:
		return "path_escape"
	case KindNotFound:
		return "not_found"
	case KindDirectoryCreateFailed:
		return "directory_create_failed"
	case KindDecode:
		return "decode_error"
	case KindEncode:
		return "encode_error"
	case KindDeleteFailed:
		return "delete_failed"
	case KindUnknownFormat:
		return "unknown_format"
	case KindInvalidFilename:
		return "invalid_filename"
	case KindEmptyClipboard:
		return "empty_clipboard"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "generic"
	}
}

// ExitCode returns the process exit code used when a failure of this kind
// ends a one-shot command.
func (k Kind) ExitCode() ExitCode {
	switch k {
	case KindFormatNotFound, KindUnknownFormat:
		return ExitCodeFormat
	case KindPathEscape:
		return ExitCodeSandbox
	case KindNotFound:
		return ExitCodeNotFound
	case KindDirectoryCreateFailed, KindDeleteFailed:
		return ExitCodeFileOperation
	case KindDecode, KindEncode:
		return ExitCodeCodec
	case KindInvalidFilename, KindEmptyClipboard:
		return ExitCodeInvalidInput
	case KindInvariant:
		return ExitCodeInternal
	default:
		return ExitCodeGeneral
	}
}

type Error struct {
	Kind       Kind
	Code       ExitCode
	Subject    string
	Message    string
	Underlying error
	Suggestion string
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func New(code ExitCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func NewWithError(code ExitCode, message string, err error) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
	}
}

func NewWithSuggestion(code ExitCode, message string, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// NewKind builds a domain error of the given kind about subject.
func NewKind(kind Kind, subject string, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Code:       kind.ExitCode(),
		Subject:    subject,
		Message:    message,
		Underlying: cause,
	}
}

func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	var wrapped *Error
	if stderrors.As(err, &wrapped) {
		return &Error{
			Kind:       wrapped.Kind,
			Code:       wrapped.Code,
			Subject:    wrapped.Subject,
			Message:    message + ": " + wrapped.Message,
			Underlying: wrapped.Underlying,
			Suggestion: wrapped.Suggestion,
		}
	}

	return &Error{
		Code:       ExitCodeGeneral,
		Message:    message,
		Underlying: err,
	}
}

func WrapWithCode(err error, code ExitCode, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message + ": " + err.Error(),
		Underlying: err,
	}
}

// KindOf reports the domain kind carried anywhere in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}

func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

func IsExitCode(err error, code ExitCode) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}

	return false
}

// Report prints the translated single-line message for err to w and returns
// the matching exit code. The underlying cause goes to the log, not to w.
func Report(w io.Writer, err error) ExitCode {
	if err == nil {
		return ExitCodeSuccess
	}

	exitCode := ExitCodeGeneral
	var suggestion string

	var e *Error
	if stderrors.As(err, &e) {
		exitCode = e.Code
		suggestion = e.Suggestion
		event := logger.Error().Str("kind", e.Kind.String())
		if e.Subject != "" {
			event = event.Str("subject", e.Subject)
		}
		if e.Underlying != nil {
			event = event.Err(e.Underlying)
		}
		event.Msg(e.Message)
	} else {
		logger.Error().Err(err).Msg("operation failed")
	}
	if exitCode == ExitCodeSuccess {
		exitCode = ExitCodeGeneral
	}

	translated := Translate(err)

	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	_, _ = red.Fprint(w, "Error: ")
	fmt.Fprintln(w, translated.Message)

	if suggestion != "" {
		_, _ = yellow.Fprint(w, "Suggestion: ")
		lines := strings.Split(suggestion, "\n")
		for i, line := range lines {
			if i == 0 {
				fmt.Fprintln(w, line)
			} else if strings.HasPrefix(line, "  -") {
				_, _ = cyan.Fprintln(w, line)
			} else {
				fmt.Fprintln(w, "           "+line)
			}
		}
	}

	return exitCode
}

// HandleReturn processes an error and returns the appropriate exit code.
// It does not call os.Exit; the caller is responsible for exiting.
func HandleReturn(err error) ExitCode {
	if err == nil {
		return ExitCodeSuccess
	}
	fmt.Fprintln(os.Stderr)
	code := Report(os.Stderr, err)
	fmt.Fprintln(os.Stderr)
	return code
}

func ConfigError(message string) *Error {
	return &Error{
		Code:       ExitCodeConfig,
		Message:    message,
		Suggestion: "Check your configuration file or set the required environment variables.",
	}
}

func ValidationError(message string) *Error {
	return &Error{
		Code:    ExitCodeInvalidInput,
		Message: message,
	}
}

func CancelledError(operation string) *Error {
	return &Error{
		Code:       ExitCodeCancellation,
		Message:    fmt.Sprintf("Operation cancelled: %s", operation),
		Suggestion: "The operation was interrupted. No changes were made.",
	}
}

func FormatNotFound(name string) *Error {
	e := NewKind(KindFormatNotFound, name, fmt.Sprintf("unknown schematic format %q", name), nil)
	e.Suggestion = "Use 'schemctl formats' to list the available formats."
	return e
}

func PathEscape(filename string) *Error {
	return NewKind(KindPathEscape, filename, fmt.Sprintf("path %q escapes the schematic directory", filename), nil)
}

func NotFound(filename string) *Error {
	return NewKind(KindNotFound, filename, fmt.Sprintf("schematic %q not found", filename), nil)
}

func DirectoryCreateFailed(dir string, cause error) *Error {
	return NewKind(KindDirectoryCreateFailed, dir, fmt.Sprintf("failed to create directory %q", dir), cause)
}

func DecodeError(filename, format string, cause error) *Error {
	return NewKind(KindDecode, filename, fmt.Sprintf("failed to decode %q as %s", filename, format), cause)
}

func EncodeError(filename, format string, cause error) *Error {
	return NewKind(KindEncode, filename, fmt.Sprintf("failed to encode %q as %s", filename, format), cause)
}

func DeleteFailed(filename string, cause error) *Error {
	return NewKind(KindDeleteFailed, filename, fmt.Sprintf("failed to delete %q", filename), cause)
}

func UnknownFormat(filename string) *Error {
	e := NewKind(KindUnknownFormat, filename, fmt.Sprintf("could not detect the format of %q", filename), nil)
	e.Suggestion = "Name the format explicitly, e.g. 'load sponge <name>'."
	return e
}

func InvalidFilename(filename, reason string) *Error {
	return NewKind(KindInvalidFilename, filename, fmt.Sprintf("invalid filename %q: %s", filename, reason), nil)
}

func EmptyClipboard() *Error {
	return NewKind(KindEmptyClipboard, "", "clipboard is empty", nil)
}

// Invariant builds the value Bake panics with when an internal invariant
// breaks. It is never returned for bad user input.
func Invariant(format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return NewKind(KindInvariant, msg, "invariant violated: "+msg, nil)
}
