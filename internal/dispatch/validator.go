package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// ErrExtensionNotFound matches every ExtensionError.
var ErrExtensionNotFound = errors.New("extension not found")

// ExtensionError names the extensions a command needed but this device lacks.
type ExtensionError struct {
	ExtensionID string
	Missing     []string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("Extension '%s' not installed on this device", e.ExtensionID)
}

// Is reports whether target is ErrExtensionNotFound.
func (e *ExtensionError) Is(target error) bool {
	return target == ErrExtensionNotFound
}

// Message converts the error into the protocol Error sent to the peer.
func (e *ExtensionError) Message() remote.Error {
	return remote.ErrorMessage(remote.ErrorExtensionNotFound, e.Error(), "Missing extensions: "+strings.Join(e.Missing, ", "))
}

// Compatibility summarises the extension overlap of two devices.
type Compatibility struct {
	Common          []string `json:"common"`
	MissingOnLocal  []string `json:"missingOnLocal"`
	MissingOnRemote []string `json:"missingOnRemote"`
	Compatible      bool     `json:"compatible"`
}

// CheckCompatibility compares local and remote extension lists. Order
// follows the input lists.
func CheckCompatibility(local []string, remoteIDs []string) Compatibility {
	localSet := toSet(local)
	remoteSet := toSet(remoteIDs)

	out := Compatibility{}
	for _, id := range local {
		if _, ok := remoteSet[id]; ok {
			out.Common = appendUnique(out.Common, id)
		} else {
			out.MissingOnRemote = appendUnique(out.MissingOnRemote, id)
		}
	}
	for _, id := range remoteIDs {
		if _, ok := localSet[id]; !ok {
			out.MissingOnLocal = appendUnique(out.MissingOnLocal, id)
		}
	}
	out.Compatible = len(out.Common) > 0
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

// Validator checks commands against the local extension registry.
type Validator struct {
	log      *zap.Logger
	registry ports.ExtensionRegistry
}

// NewValidator creates a validator.
func NewValidator(log *zap.Logger, registry ports.ExtensionRegistry) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log, registry: registry}
}

// ValidateExtension returns an *ExtensionError when id is not installed.
func (v *Validator) ValidateExtension(id string) error {
	if v.registry.IsInstalled(id) {
		return nil
	}
	v.log.Warn("extension not found",
		zap.String("extension", id),
		zap.Strings("available", v.registry.InstalledIDs()),
	)
	return &ExtensionError{ExtensionID: id, Missing: []string{id}}
}

// ValidateCommand checks the extension referenced by msg, if any.
func (v *Validator) ValidateCommand(msg remote.Message) error {
	switch m := msg.(type) {
	case remote.PlayItem:
		return v.ValidateExtension(m.ExtensionID)
	case remote.AddToQueue:
		return v.ValidateExtension(m.ExtensionID)
	case remote.AddToNext:
		return v.ValidateExtension(m.ExtensionID)
	case remote.SetQueue:
		return v.ValidateExtension(m.ExtensionID)
	default:
		return nil
	}
}

// InstalledIDs lists the local extensions.
func (v *Validator) InstalledIDs() []string {
	return v.registry.InstalledIDs()
}

// CheckCompatibility compares this device with a remote extension list.
func (v *Validator) CheckCompatibility(remoteIDs []string) Compatibility {
	result := CheckCompatibility(v.registry.InstalledIDs(), remoteIDs)
	v.log.Debug("compatibility check",
		zap.Int("common", len(result.Common)),
		zap.Int("missing_on_local", len(result.MissingOnLocal)),
		zap.Int("missing_on_remote", len(result.MissingOnRemote)),
	)
	return result
}
