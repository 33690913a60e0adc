package auth

// Admins is the set of addresses allowed to use privileged endpoints.
type Admins map[string]struct{}

// NewAdmins builds the admin set.
func NewAdmins(addresses []string) Admins {
	admins := make(Admins, len(addresses))
	for _, a := range addresses {
		if a != "" {
			admins[a] = struct{}{}
		}
	}
	return admins
}

// IsAdmin reports whether cred belongs to an admin. Impersonated credentials
// never count as admin.
func (a Admins) IsAdmin(cred *Credential) bool {
	if cred == nil || cred.Impersonated() {
		return false
	}
	_, ok := a[cred.Address]
	return ok
}
