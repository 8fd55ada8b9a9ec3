package model

// OwnerKind tells which identity a cart is keyed on.
type OwnerKind string

const (
	OwnerUser    OwnerKind = "user"
	OwnerSession OwnerKind = "session"
)

// OwnerKey identifies the owner of a cart: an authenticated user or an
// anonymous session.
type OwnerKey struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func UserOwner(userID string) OwnerKey {
	return OwnerKey{Kind: OwnerUser, ID: userID}
}

func SessionOwner(sessionID string) OwnerKey {
	return OwnerKey{Kind: OwnerSession, ID: sessionID}
}

// Valid reports whether the key names a known kind and a non-empty id.
func (k OwnerKey) Valid() bool {
	return (k.Kind == OwnerUser || k.Kind == OwnerSession) && k.ID != ""
}

func (k OwnerKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}
