package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Cost floors. Configurations below these are rejected outright rather
// than silently raised.
const (
	floorMemoryKB    uint32 = 8 * 1024
	floorTime        uint32 = 1
	floorParallelism uint8  = 1
	floorSaltLen     uint32 = 16
	floorKeyLen      uint32 = 16
)

var (
	errEmptyPassword = errors.New("password must not be empty")
	errBadPHC        = errors.New("malformed argon2id hash")
)

// Config holds the Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) check() error {
	switch {
	case c.Memory < floorMemoryKB:
		return errors.New("argon2 memory below floor")
	case c.Time < floorTime:
		return errors.New("argon2 time cost below floor")
	case c.Parallelism < floorParallelism:
		return errors.New("argon2 parallelism below floor")
	case c.SaltLength < floorSaltLen:
		return errors.New("argon2 salt length below floor")
	case c.KeyLength < floorKeyLen:
		return errors.New("argon2 key length below floor")
	}
	return nil
}

// Argon2 hashes and verifies passwords with Argon2id. Instances are
// immutable after construction and safe for concurrent use.
type Argon2 struct {
	cfg Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives an Argon2id key over a fresh random salt and returns it in
// PHC string form. Length and complexity policy are the caller's concern;
// the password bytes are used exactly as given.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt,
		a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key)), nil
}

// Verify recomputes the key with the parameters embedded in encoded and
// compares in constant time. The embedded parameters are held to the same
// floors as NewArgon2, so a downgraded hash fails parsing instead of
// verifying against weakened costs.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	memory, timeCost, threads, salt, want, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt,
		timeCost, memory, threads, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decodePHC(encoded string) (memory, timeCost uint32, threads uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errBadPHC
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errBadPHC
	}

	if n, _ := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); n != 3 {
		return 0, 0, 0, nil, nil, errBadPHC
	}
	if memory < floorMemoryKB || timeCost < floorTime || threads < floorParallelism {
		return 0, 0, 0, nil, nil, errBadPHC
	}

	if salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || uint32(len(salt)) < floorSaltLen {
		return 0, 0, 0, nil, nil, errBadPHC
	}
	if key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, errBadPHC
	}

	return memory, timeCost, threads, salt, key, nil
}
