package domain

// User is the resolved identity of the running client instance. At most one
// exists at a time; it is replaced atomically on token refresh and destroyed
// on sign-out.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
