package pgidentifier

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// SimpleIdentifierRegex matches identifiers in Postgres that require no quotes
	SimpleIdentifierRegex = regexp.MustCompile("^[a-z_][a-z0-9_$]*$")

	// tempNameNamespace seeds the name-based UUIDs of temporary identifiers
	tempNameNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
)

// MaxIdentifierLength is the number of bytes Postgres keeps from an identifier
const MaxIdentifierLength = 63

func IsSimpleIdentifier(val string) bool {
	return SimpleIdentifierRegex.MatchString(val)
}

const encodePostgresIdentifier = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789$_"

var postgresIdentifierEncoding = base64.NewEncoding(encodePostgresIdentifier).WithPadding(base64.NoPadding)

// NameBasedUUID builds a UUID derived from the seed, encoded to be used in Postgres identifiers. The same seed
// always yields the same value. The value cannot be used directly as an identifier and must be prefixed with a letter
func NameBasedUUID(seed string) (string, error) {
	id := uuid.NewSHA1(tempNameNamespace, []byte(seed))

	// Encode in base64 to make the UUID smaller
	binary, err := id.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshaling UUID: %w", err)
	}

	var sb strings.Builder
	encoder := base64.NewEncoder(postgresIdentifierEncoding, &sb)
	if _, err := encoder.Write(binary); err != nil {
		return "", fmt.Errorf("encoding UUID: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("closing encoder: %w", err)
	}

	return sb.String(), nil
}

// TemporaryName builds a deterministic identifier of the form <name>_<uuid> that fits in maxLen bytes.
// The name is truncated when needed; the uuid part never is.
func TemporaryName(name, seed string, maxLen int) (string, error) {
	suffix, err := NameBasedUUID(seed)
	if err != nil {
		return "", err
	}
	suffix = "_" + suffix
	if maxLen > 0 && len(name)+len(suffix) > maxLen {
		keep := maxLen - len(suffix)
		if keep < 1 {
			return "", fmt.Errorf("max length %d is too small for a temporary name", maxLen)
		}
		name = name[:keep]
	}
	return name + suffix, nil
}
