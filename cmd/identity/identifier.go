package identity

import "strings"

// IdentifierKind is the attribute used to locate an identity before verification.
type IdentifierKind int

const (
	IdentifierEmail IdentifierKind = iota + 1
	IdentifierPhone
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierEmail:
		return FieldNameEmail
	case IdentifierPhone:
		return FieldNamePhoneNumber
	default:
		return "none"
	}
}

// Identifier is a tagged choice: exactly one of email or phone number.
// The zero value carries no kind and is rejected with ErrMissingIdentifier.
type Identifier struct {
	kind  IdentifierKind
	value string
}

// EmailIdentifier builds an email identifier.
func EmailIdentifier(email string) Identifier {
	return Identifier{kind: IdentifierEmail, value: strings.TrimSpace(email)}
}

// PhoneIdentifier builds a phone-number identifier.
func PhoneIdentifier(phone string) Identifier {
	return Identifier{kind: IdentifierPhone, value: strings.TrimSpace(phone)}
}

// ParseIdentifier turns the two optional request fields into an Identifier.
// Both present -> ErrAmbiguousIdentifier; neither -> ErrMissingIdentifier.
// Blank strings count as absent.
func ParseIdentifier(email, phone *string) (Identifier, error) {
	const op = "identity.ParseIdentifier"

	e := trimPtr(email)
	p := trimPtr(phone)

	switch {
	case e != nil && p != nil:
		return Identifier{}, OpError{Op: op, Kind: ErrAmbiguousIdentifier, Msg: "supply either email or phone_number, not both"}
	case e != nil:
		return EmailIdentifier(*e), nil
	case p != nil:
		return PhoneIdentifier(*p), nil
	default:
		return Identifier{}, OpError{Op: op, Kind: ErrMissingIdentifier, Msg: "email or phone_number is required"}
	}
}

// Kind returns the identifier kind (zero when unset).
func (id Identifier) Kind() IdentifierKind { return id.kind }

// Value returns the raw identifier value as supplied.
func (id Identifier) Value() string { return id.value }

// IsZero reports whether no identifier was set.
func (id Identifier) IsZero() bool { return id.kind == 0 || id.value == "" }

func (id Identifier) field() Field {
	if id.kind == IdentifierPhone {
		return FieldPhoneNumber
	}
	return FieldEmail
}

// String never includes the value; identifiers are personal data.
func (id Identifier) String() string { return "identifier(" + id.kind.String() + ")" }
