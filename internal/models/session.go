package models

import "time"

// Cookie mirrors one entry of the persisted session file.
// Expires is seconds since epoch; zero or negative means a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// IsExpired reports whether the cookie carries an expiry in the past
func (c Cookie) IsExpired(now time.Time) bool {
	if c.Expires <= 0 {
		return false
	}
	return time.Unix(int64(c.Expires), 0).Before(now)
}

// Session is a marketplace authentication artifact captured from a signed-in browser
type Session struct {
	Cookies []Cookie `json:"cookies"`
}

// Usable drops expired cookies and returns the rest
func (s *Session) Usable(now time.Time) []Cookie {
	if s == nil {
		return nil
	}
	out := make([]Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if c.IsExpired(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Credentials holds a marketplace account for one user.
// EncryptedPassword is base64(nonce|ciphertext|tag) produced by the secrets box.
type Credentials struct {
	UserID            string    `json:"user_id"`
	Email             string    `json:"email"`
	EncryptedPassword string    `json:"encrypted_password"`
	Session           *Session  `json:"session,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Account is a resolved, decrypted login for one worker run
type Account struct {
	UserID   string
	Email    string
	Password string
}
