// internal/service/guard/guard.go
package guard

import (
	"fmt"
	"sort"

	"identity-service/internal/domain/identity"
	xerrors "identity-service/internal/pkg/errors"
	"identity-service/internal/pkg/token"
)

// CheckKind identifies one of the four requirement types. The numeric order
// is the evaluation order: cheapest and most foundational first.
type CheckKind uint8

const (
	CheckAccountKind CheckKind = iota
	CheckPermission
	CheckServiceMembership
	CheckCountryConsent
)

// Requirement is a fully resolved {kind, value} pair. "Dynamic" requirements
// are resolved by the routing layer before they get here; the chain itself
// never touches the request.
type Requirement struct {
	Check CheckKind
	// Kinds is the allowed set for CheckAccountKind.
	Kinds []identity.OwnerKind
	// Value is the permission string, service slug or country code,
	// depending on Check.
	Value string
	// Service is the contextual service for CheckCountryConsent.
	Service string
}

// RequireKind declares an account-type requirement.
func RequireKind(kinds ...identity.OwnerKind) Requirement {
	return Requirement{Check: CheckAccountKind, Kinds: kinds}
}

// RequirePermission declares a permission requirement.
func RequirePermission(permission string) Requirement {
	return Requirement{Check: CheckPermission, Value: permission}
}

// RequireService declares an ACTIVE-membership requirement for a service.
func RequireService(service string) Requirement {
	return Requirement{Check: CheckServiceMembership, Value: service}
}

// RequireCountryConsent declares that the caller must have consented to the
// country within the contextual service.
func RequireCountryConsent(service, country string) Requirement {
	return Requirement{Check: CheckCountryConsent, Service: service, Value: country}
}

// Evaluate runs the chain with AND semantics: every requirement must pass,
// checks run in the fixed CheckKind order, and the first failure
// short-circuits the rest. Failures are xerrors.ErrForbidden with the
// specific reason.
func Evaluate(claims *token.AccessClaims, requirements []Requirement) error {
	if claims == nil {
		return xerrors.Forbidden("no claims present")
	}

	ordered := append([]Requirement(nil), requirements...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Check < ordered[j].Check
	})

	for _, req := range ordered {
		if err := evaluateOne(claims, req); err != nil {
			return err
		}
	}

	return nil
}

func evaluateOne(claims *token.AccessClaims, req Requirement) error {
	switch req.Check {
	case CheckAccountKind:
		// An empty allowed set means the route declared no kind restriction.
		if len(req.Kinds) == 0 {
			return nil
		}
		for _, k := range req.Kinds {
			if claims.Kind == k {
				return nil
			}
		}
		return xerrors.Forbidden(fmt.Sprintf("account type %s is not allowed", claims.Kind))

	case CheckPermission:
		if claims.HasPermission(req.Value) {
			return nil
		}
		return xerrors.Forbidden(fmt.Sprintf("missing permission %q", req.Value))

	case CheckServiceMembership:
		membership, ok := claims.Membership(req.Value)
		if !ok {
			return xerrors.Forbidden(fmt.Sprintf("not joined to service %q", req.Value))
		}
		if membership.Status != identity.MembershipActive {
			return xerrors.Forbidden(fmt.Sprintf("access to service %q is suspended", req.Value))
		}
		return nil

	case CheckCountryConsent:
		membership, ok := claims.Membership(req.Service)
		if !ok {
			return xerrors.Forbidden(fmt.Sprintf("not joined to service %q", req.Service))
		}
		for _, country := range membership.Countries {
			if country == req.Value {
				return nil
			}
		}
		return xerrors.Forbidden(fmt.Sprintf("no consent for country %q in service %q", req.Value, req.Service))

	default:
		return xerrors.Forbidden("unknown requirement kind")
	}
}
