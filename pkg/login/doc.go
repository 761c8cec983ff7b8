// Package login implements the session authenticator for the admin panel:
// credential verification, session establishment and teardown, CSRF token
// management, and the role/permission access gate.
package login
