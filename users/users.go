// Package users implements the in-memory user database: an immutable
// mapping from username to (password, local root, permissions), with a
// distinguished anonymous slot reachable via "", "anonymous", or "ftp".
package users

import "sync"

// Permission is an independent bit in a user's permission mask.
type Permission uint16

const (
	FileRead Permission = 1 << iota
	FileWrite
	FileAppend
	FileDelete
	FileRename
	DirList
	DirCreate
	DirDelete
	DirRename

	None     Permission = 0
	ReadOnly            = FileRead | DirList
	All                 = FileRead | FileWrite | FileAppend | FileDelete |
		FileRename | DirList | DirCreate | DirDelete | DirRename
)

// Has reports whether p contains every bit set in want.
func (p Permission) Has(want Permission) bool {
	return p&want == want
}

// anonymousKey is the single internal key under which the anonymous slot is
// stored, regardless of which of the three reserved spellings registered it.
const anonymousKey = "\x00anonymous"

func isAnonymous(username string) bool {
	return username == "" || username == "anonymous" || username == "ftp"
}

// User is an immutable account record.
type User struct {
	Username    string
	Password    string
	LocalRoot   string
	Permissions Permission
}

// Database is a thread-safe username -> User mapping.
type Database struct {
	mu    sync.Mutex
	users map[string]User
}

// NewDatabase returns an empty user database.
func NewDatabase() *Database {
	return &Database{users: make(map[string]User)}
}

// AddUser registers a named user. It returns false, making no change, if
// the username is already registered or is one of the reserved anonymous
// spellings (use AddUserAnonymous for those).
func (d *Database) AddUser(username, password, localRoot string, perms Permission) bool {
	if isAnonymous(username) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[username]; exists {
		return false
	}
	d.users[username] = User{
		Username:    username,
		Password:    password,
		LocalRoot:   localRoot,
		Permissions: perms,
	}
	return true
}

// AddUserAnonymous registers the anonymous slot. It returns false if a
// second anonymous registration is attempted.
func (d *Database) AddUserAnonymous(localRoot string, perms Permission) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[anonymousKey]; exists {
		return false
	}
	d.users[anonymousKey] = User{
		Username:    "anonymous",
		LocalRoot:   localRoot,
		Permissions: perms,
	}
	return true
}

// Roots returns the distinct local roots across every registered user,
// including the anonymous slot if registered.
func (d *Database) Roots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]bool, len(d.users))
	roots := make([]string, 0, len(d.users))
	for _, u := range d.users {
		if !seen[u.LocalRoot] {
			seen[u.LocalRoot] = true
			roots = append(roots, u.LocalRoot)
		}
	}
	return roots
}

// Lookup returns the user record matching username and password. The
// anonymous slot matches irrespective of password.
func (d *Database) Lookup(username, password string) (User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if isAnonymous(username) {
		u, ok := d.users[anonymousKey]
		return u, ok
	}

	u, ok := d.users[username]
	if !ok || u.Password != password {
		return User{}, false
	}
	return u, true
}
