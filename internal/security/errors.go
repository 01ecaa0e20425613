package security

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// FileError is returned when the ssh config, its backup or the metadata
// sidecar cannot be written. UserSafe is what the CLI and dashboard show; the
// path and cause stay available to logs and to errors.Is/As.
type FileError struct {
	UserSafe string
	Op       string
	Path     string
	Err      error
}

func (e *FileError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.UserSafe) == "" {
		return "operation failed"
	}
	return e.UserSafe
}

func (e *FileError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Detail renders "op path: cause".
func (e *FileError) Detail() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// NewFileError wraps err from op on path.
func NewFileError(userSafe, op, path string, err error) error {
	return &FileError{UserSafe: userSafe, Op: op, Path: path, Err: err}
}

// UserMessage returns a message safe to show in the CLI and dashboard. A
// FileError caused by missing permissions gets a hint naming the file.
func UserMessage(err error, redact bool) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var fe *FileError
	if errors.As(err, &fe) {
		msg = fe.Error()
		if errors.Is(fe.Err, fs.ErrPermission) && fe.Path != "" {
			msg += " (permission denied on " + fe.Path + ")"
		}
	}
	if redact {
		return RedactMessage(msg)
	}
	return msg
}

// DebugMessage returns detailed error text for logs.
func DebugMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FileError
	if errors.As(err, &fe) {
		if d := fe.Detail(); d != "" {
			return d
		}
	}
	return err.Error()
}

var identityName = regexp.MustCompile(`\bid_[A-Za-z0-9_.-]+`)

// RedactMessage shortens the home directory to ~ and hides identity file
// names.
func RedactMessage(msg string) string {
	if msg == "" {
		return msg
	}
	out := msg
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		out = strings.ReplaceAll(out, home, "~")
	}
	return identityName.ReplaceAllString(out, "[identity]")
}
