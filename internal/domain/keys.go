package domain

// CtxKey names the request-scoped values set by the auth middleware. Gin
// stores them by their string value, so handlers may also read c.GetString.
type CtxKey string

const (
	// KeyUserID holds the verified token subject, the Supabase user id.
	KeyUserID CtxKey = "UserID"
	// KeyUserEmail holds the email claim of the verified token.
	KeyUserEmail CtxKey = "Email"
	// KeyUserRole holds the profile role loaded from the database, never a
	// token claim.
	KeyUserRole CtxKey = "Role"
)
