package session

import "crypto/rand"

// Charset is the pairing code alphabet: digits only, so codes can be read
// over the phone or typed on any keyboard.
const Charset = "0123456789"

// DefaultCodeLength is the pairing code length used when none is configured.
const DefaultCodeLength = 6

// maxGenerateAttempts bounds collision retries before the generator reports
// exhaustion.
const maxGenerateAttempts = 100

// Generator mints fixed-length numeric pairing codes.
type Generator struct {
	length int
}

// NewGenerator creates a code generator for codes of the given length.
// Non-positive lengths fall back to DefaultCodeLength.
func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &Generator{length: length}
}

// Length returns the configured code length.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a fresh code that the taken predicate rejects, retrying on
// collision. Colliding codes would merge two unrelated sessions, so the check
// is mandatory. Returns ErrCodeSpaceExhausted when no free code is found
// within the retry budget.
func (g *Generator) Generate(taken func(code string) bool) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := g.random()
		if err != nil {
			return "", err
		}
		if taken == nil || !taken(code) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Valid reports whether code has the configured length and uses only the
// code charset. Used to validate pre-chosen codes on create.
func (g *Generator) Valid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func (g *Generator) random() (string, error) {
	b := make([]byte, g.length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	code := make([]byte, g.length)
	for i := range b {
		code[i] = Charset[b[i]%byte(len(Charset))]
	}
	return string(code), nil
}
