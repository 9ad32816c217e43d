package history

import (
	"bufio"
	"io"
	"strings"
)

// Mailmap canonicalizes author identities following git's .mailmap format.
// The zero value maps every identity to itself. A nil *Mailmap is valid.
type Mailmap struct {
	// byEmail maps a lower-cased commit email to its email-only entry.
	byEmail map[string]identity
	// byNameEmail maps lower-cased "name\x00email" to a name-specific entry,
	// which takes precedence over byEmail.
	byNameEmail map[string]identity
}

type identity struct {
	name  string
	email string
}

// ParseMailmap reads mailmap lines of the forms:
//
//	Proper Name <commit@email>
//	<proper@email> <commit@email>
//	Proper Name <proper@email> <commit@email>
//	Proper Name <proper@email> Commit Name <commit@email>
//
// Lines naming the same commit identity merge: a later line replaces only the
// name or email it sets.
func ParseMailmap(r io.Reader) (*Mailmap, error) {
	m := &Mailmap{
		byEmail:     make(map[string]identity),
		byNameEmail: make(map[string]identity),
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.addLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mailmap) addLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	name1, email1, rest, ok := splitIdentity(line)
	if !ok {
		return
	}
	name2, email2, _, ok := splitIdentity(rest)
	if !ok {
		// Proper Name <commit@email>, or <proper@email> alone (ignored).
		if name1 == "" {
			return
		}
		merge(m.byEmail, strings.ToLower(email1), name1, "")
		return
	}
	if name2 == "" {
		merge(m.byEmail, strings.ToLower(email2), name1, email1)
		return
	}
	merge(m.byNameEmail, nameEmailKey(name2, email2), name1, email1)
}

func merge(entries map[string]identity, key, name, email string) {
	id := entries[key]
	if name != "" {
		id.name = name
	}
	if email != "" {
		id.email = email
	}
	entries[key] = id
}

// splitIdentity parses "Name <email>" from the front of s, returning the
// remainder after the closing '>'.
func splitIdentity(s string) (name, email, rest string, ok bool) {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return "", "", "", false
	}
	end := strings.IndexByte(s[open:], '>')
	if end < 0 {
		return "", "", "", false
	}
	end += open
	return strings.TrimSpace(s[:open]), strings.TrimSpace(s[open+1 : end]), s[end+1:], true
}

func nameEmailKey(name, email string) string {
	return strings.ToLower(name) + "\x00" + strings.ToLower(email)
}

// Resolve returns the canonical name and email for a raw commit identity.
func (m *Mailmap) Resolve(name, email string) (string, string) {
	if m == nil {
		return name, email
	}
	id, ok := m.byNameEmail[nameEmailKey(name, email)]
	if !ok {
		id, ok = m.byEmail[strings.ToLower(email)]
	}
	if !ok {
		return name, email
	}
	if id.name != "" {
		name = id.name
	}
	if id.email != "" {
		email = id.email
	}
	return name, email
}

// Len returns the number of mapping entries.
func (m *Mailmap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byEmail) + len(m.byNameEmail)
}
