package draft

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

const localPrefix = "draft:"

// ID names a question or option inside a Draft. It is either the identity
// the store assigned (Persisted) or a client-side token handed out before
// the first save (Local). The zero ID names nothing.
type ID struct {
	persisted int64
	local     string
}

func Persisted(id int64) ID {
	return ID{persisted: id}
}

// Local returns a fresh, never-saved identifier.
func Local() ID {
	return ID{local: uuid.Must(uuid.NewV4()).String()}
}

func (id ID) IsZero() bool {
	return id.persisted == 0 && id.local == ""
}

func (id ID) IsPersisted() bool {
	return id.local == "" && id.persisted != 0
}

func (id ID) String() string {
	if id.local != "" {
		return localPrefix + id.local
	}
	return strconv.FormatInt(id.persisted, 10)
}

// ParseID reads the textual form produced by String.
func ParseID(s string) (ID, error) {
	if strings.HasPrefix(s, localPrefix) {
		token := strings.TrimPrefix(s, localPrefix)
		if token == "" {
			return ID{}, errors.Errorf("empty draft id %q", s)
		}
		return ID{local: token}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return ID{}, errors.Errorf("invalid id %q", s)
	}
	return Persisted(n), nil
}

// MarshalJSON encodes persisted ids as numbers and local ones as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.local != "" {
		return json.Marshal(id.String())
	}
	return json.Marshal(id.persisted)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = Persisted(n)
	return nil
}
