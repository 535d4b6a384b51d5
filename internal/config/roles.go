package config

// Role rights consulted by the authorization middleware. Regular users hold no
// special rights; admin-only routes declare the right they require.
var roleRights = map[string][]string{
	"user": {},
	"admin": {
		"getUsers", "deleteUser",
		"createBook", "updateBook", "deleteBook",
		"createCategory", "updateCategory", "deleteCategory",
	},
}

// RoleRights returns the rights granted to a role. Unknown roles have none.
func RoleRights(role string) []string {
	return roleRights[role]
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := roleRights[role]
	return ok
}
