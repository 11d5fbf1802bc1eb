package esign

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/types"
)

// Reference is the external reference attached to a provider document.
// New references always carry a stage; legacy ones may not.
type Reference struct {
	ContractID uuid.UUID
	Kind       types.Kind
	Stage      types.Stage
}

// String encodes the reference as "{contract}:{kind}:{stage}". An empty stage encodes as single.
func (r Reference) String() string {
	stage := r.Stage
	if stage == "" {
		stage = types.StageSingle
	}
	return fmt.Sprintf("%s:%s:%s", r.ContractID, r.Kind, stage)
}

// ParseReference decodes a reference. Besides the current format it accepts the legacy
// "{contract}:{kind}", "{contract}_{kind}" and "{contract}_{kind}_{stage}" forms, plus a bare
// contract id. Stage is empty when the reference does not carry one.
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if len(s) < 36 {
		return Reference{}, fmt.Errorf("external reference %q is too short", s)
	}
	id, err := uuid.Parse(s[:36])
	if err != nil {
		return Reference{}, fmt.Errorf("external reference %q has no contract id: %w", s, err)
	}
	ref := Reference{ContractID: id}

	rest := s[36:]
	if rest == "" {
		return ref, nil
	}
	delim := rest[:1]
	if delim != ":" && delim != "_" {
		return Reference{}, fmt.Errorf("external reference %q has unknown delimiter %q", s, delim)
	}

	parts := strings.Split(rest[1:], delim)
	if len(parts) > 2 {
		return Reference{}, fmt.Errorf("external reference %q has too many parts", s)
	}
	if ref.Kind, err = types.ParseKind(parts[0]); err != nil {
		return Reference{}, fmt.Errorf("external reference %q: %w", s, err)
	}
	if len(parts) == 2 {
		if ref.Stage, err = types.ParseStage(parts[1]); err != nil {
			return Reference{}, fmt.Errorf("external reference %q: %w", s, err)
		}
	}
	return ref, nil
}
