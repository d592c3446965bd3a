package addon

import "errors"

var (
	// ErrUnreachable covers transport failures and non-2xx responses from a provider.
	ErrUnreachable = errors.New("addon unreachable")
	// ErrInvalidSchema is returned when a manifest is not JSON or lacks id/name.
	ErrInvalidSchema = errors.New("invalid addon manifest")
	// ErrDuplicateID is returned by Install when the id is already registered and replace is false.
	ErrDuplicateID = errors.New("addon already installed")
)
